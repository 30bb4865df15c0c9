// Command chat replays a WhatsApp conversation from the terminal against
// the full engine. Each stdin line is one inbound message; the bot's reply
// and the enquiry's progress are printed after it.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/wolfman30/travel-enquiry-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/travel-enquiry-bot/internal/config"
	"github.com/wolfman30/travel-enquiry-bot/internal/conversation"
	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

type inboundHandler interface {
	HandleInbound(ctx context.Context, msg conversation.InboundMessage) (*conversation.Response, error)
}

type enquiryFinder interface {
	FindActive(ctx context.Context, phone string) (*enquiry.Enquiry, error)
}

func main() {
	phone := flag.String("phone", "+919876543210", "sender phone in E.164")
	name := flag.String("name", "", "WhatsApp profile name")
	dump := flag.Bool("dump", false, "print the enquiry JSON after every turn")
	flag.Parse()

	_ = godotenv.Load()
	cfg := appconfig.Load()
	cfg.UseMemoryQueue = true
	logger := logging.New(cfg.LogLevel)

	app, err := bootstrap.Build(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	s := session{
		engine:  app.Engine,
		repo:    app.Enquiries,
		phone:   *phone,
		name:    *name,
		dump:    *dump,
		timeout: cfg.ReplyTimeout + cfg.SemanticExtractionTimeout,
	}
	if err := s.run(context.Background(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

type session struct {
	engine  inboundHandler
	repo    enquiryFinder
	phone   string
	name    string
	dump    bool
	timeout time.Duration
}

func (s session) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		if text == "/quit" {
			return nil
		}

		turnCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err := s.engine.HandleInbound(turnCtx, conversation.InboundMessage{
			MessageID:   "local." + uuid.NewString(),
			From:        s.phone,
			Body:        text,
			ProfileName: s.name,
			ReceivedAt:  time.Now().UTC(),
		})
		cancel()
		if err != nil {
			return fmt.Errorf("turn: %w", err)
		}

		fmt.Fprintf(out, "bot: %s\n", resp.Reply)
		fmt.Fprintf(out, "     stage=%s missing=%s\n", resp.Stage, strings.Join(resp.MissingFields, ","))
		if s.dump {
			if err := s.dumpEnquiry(ctx, out); err != nil {
				return err
			}
		}
		if resp.Disengaged {
			fmt.Fprintln(out, "(conversation closed)")
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func (s session) dumpEnquiry(ctx context.Context, out io.Writer) error {
	e, err := s.repo.FindActive(ctx, s.phone)
	if err != nil {
		fmt.Fprintf(out, "     (no active enquiry: %v)\n", err)
		return nil
	}
	raw, err := json.MarshalIndent(e, "     ", "  ")
	if err != nil {
		return fmt.Errorf("encode enquiry: %w", err)
	}
	fmt.Fprintf(out, "     %s\n", raw)
	return nil
}
