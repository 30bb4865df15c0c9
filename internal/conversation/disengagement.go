package conversation

import "strings"

var strongDisengagePhrases = []string{
	"not interested",
	"don't want",
	"do not want",
	"call me back",
	"call back me",
	"leave me alone",
	"stop messaging",
	"stop asking",
	"too many questions",
	"stop bothering",
}

// Only whole-message matches count, so "stop in Goa for a night" is not an exit.
var exitWords = map[string]struct{}{
	"bye": {}, "goodbye": {}, "stop": {}, "cancel": {}, "exit": {}, "quit": {},
}

var shortDismissive = map[string]struct{}{
	"no": {}, "nope": {}, "nah": {}, "ok": {}, "k": {},
}

const (
	minHistoryForPattern = 4
	dismissiveWindow     = 3
	dismissiveThreshold  = 2
	shortReplyLen        = 5
)

// IsDisengaged reports whether the user wants the bot to stop. history is
// ordered oldest first and does not include text.
//
// A lone "No" never disengages; it is usually an answer. Short replies only
// count once they repeat across the recent user turns.
func IsDisengaged(text string, history []Message) bool {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, phrase := range strongDisengagePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	if _, ok := exitWords[lower]; ok {
		return true
	}
	if len(history) < minHistoryForPattern {
		return false
	}

	recent := make([]string, 0, dismissiveWindow)
	for i := len(history) - 1; i >= 0 && len(recent) < dismissiveWindow; i-- {
		if history[i].Role == RoleUser {
			recent = append(recent, strings.ToLower(strings.TrimSpace(history[i].Content)))
		}
	}
	count := 0
	for _, msg := range recent {
		if _, ok := shortDismissive[msg]; ok || len(msg) < shortReplyLen {
			count++
		}
	}
	_, currentDismissive := shortDismissive[lower]
	return count >= dismissiveThreshold && currentDismissive
}
