package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/travel-enquiry-bot/internal/config"
	"github.com/wolfman30/travel-enquiry-bot/internal/notify"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const (
	emailProviderSendGrid = "sendgrid"
	emailProviderSES      = "ses"
)

// BuildEmailSender picks SendGrid or SES, falling back to a logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}

	provider := emailProvider(cfg)
	switch provider {
	case emailProviderSendGrid:
		if strings.TrimSpace(cfg.SendGridAPIKey) != "" {
			return notify.NewSendGridSender(notify.SendGridConfig{
				APIKey:    cfg.SendGridAPIKey,
				FromEmail: cfg.SendGridFromEmail,
				FromName:  cfg.SendGridFromName,
			}, logger)
		}
	case emailProviderSES:
		if awsCfg != nil && strings.TrimSpace(cfg.SESFromEmail) != "" {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail:        cfg.SESFromEmail,
				FromName:         cfg.SESFromName,
				ConfigurationSet: cfg.SESConfigSet,
			}, logger)
		}
	}
	logger.Warn("no email provider configured; handoff emails are logged only", "provider", provider)
	return notify.NewStubEmailSender(logger)
}

// emailProvider resolves EMAIL_PROVIDER, inferring it from credentials when unset.
func emailProvider(cfg *appconfig.Config) string {
	if cfg.EmailProvider != "" {
		return cfg.EmailProvider
	}
	switch {
	case strings.TrimSpace(cfg.SendGridAPIKey) != "":
		return emailProviderSendGrid
	case strings.TrimSpace(cfg.SESFromEmail) != "":
		return emailProviderSES
	}
	return ""
}
