package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/travel-enquiry-bot/cmd/mainconfig"
	"github.com/wolfman30/travel-enquiry-bot/internal/archive"
	appconfig "github.com/wolfman30/travel-enquiry-bot/internal/config"
	"github.com/wolfman30/travel-enquiry-bot/internal/contacts"
	"github.com/wolfman30/travel-enquiry-bot/internal/conversation"
	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/internal/extraction"
	httpmiddleware "github.com/wolfman30/travel-enquiry-bot/internal/http/middleware"
	"github.com/wolfman30/travel-enquiry-bot/internal/llm"
	"github.com/wolfman30/travel-enquiry-bot/internal/messaging"
	"github.com/wolfman30/travel-enquiry-bot/internal/notify"
	"github.com/wolfman30/travel-enquiry-bot/internal/observability/metrics"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const memoryQueueBuffer = 256

type jobStore interface {
	conversation.JobRecorder
	conversation.JobUpdater
}

// App holds every wired component. Binaries start the pieces they need.
type App struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	Registry *prometheus.Registry

	MessagingMetrics *metrics.MessagingMetrics
	ReconcileMetrics *metrics.ReconcileMetrics

	Redis *redis.Client
	Pool  *pgxpool.Pool
	DB    *sql.DB

	Enquiries  enquiry.Repository
	Reconciler *enquiry.Reconciler
	Contacts   contacts.Store
	Processed  ProcessedStore
	Jobs       jobStore
	Engine     *conversation.Engine
	Publisher  *conversation.Publisher
	Worker     *conversation.Worker
	Sender     *messaging.WhatsAppSender
	Webhook    *messaging.WebhookHandler

	WebhookLimiter httpmiddleware.Limiter

	// MemoryQueue is set when jobs stay in-process.
	MemoryQueue bool
}

// Build wires the application from cfg. Missing infrastructure degrades to
// in-memory stand-ins so a laptop run needs no external services.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	app := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.MessagingMetrics = metrics.NewMessagingMetrics(app.Registry)
	app.ReconcileMetrics = metrics.NewReconcileMetrics(app.Registry)

	var awsCfg *aws.Config
	if needsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		awsCfg = &loaded
	}

	var err error
	app.Redis = BuildRedisClient(ctx, cfg, logger, true)
	if app.Pool, err = BuildPostgresPool(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	if app.DB, err = BuildSQLDB(cfg); err != nil {
		app.Close()
		return nil, err
	}

	llmClient, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Enquiries = BuildEnquiryRepository(app.Pool, logger)
	app.Reconciler = buildReconciler(cfg, app.Enquiries, BuildLocker(app.Redis, cfg, logger), llmClient, app.ReconcileMetrics, logger)
	app.Contacts = BuildContactsStore(app.DB, cfg, logger)
	app.Processed = BuildProcessedStore(app.Pool, app.Redis, cfg.ProcessedRetention)
	app.WebhookLimiter = BuildWebhookLimiter(app.Redis, cfg)

	app.Sender = messaging.NewWhatsAppSender(messaging.SenderConfig{
		AccessToken:   cfg.WhatsAppToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		BaseURL:       cfg.WhatsAppGraphBaseURL,
		Version:       cfg.WhatsAppGraphVersion,
	}, app.MessagingMetrics, logger)
	var messenger conversation.ReplyMessenger = app.Sender
	var textSender notify.TextSender = app.Sender
	if !whatsAppConfigured(cfg) {
		logger.Warn("whatsapp credentials missing; replies are logged only")
		messenger = logMessenger{logger: logger}
		textSender = nil
	}

	notifier := notify.NewService(BuildEmailSender(cfg, awsCfg, logger), textSender, notify.Config{
		SalesEmails: cfg.SalesNotifyEmails,
		SalesPhones: cfg.SalesNotifyPhones,
	}, logger)

	var s3Client archive.S3API
	if awsCfg != nil && cfg.HandoffArchiveBucket != "" {
		s3Client = s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
	}

	engineOpts := []conversation.EngineOption{
		conversation.WithContacts(app.Contacts),
		conversation.WithHandoffNotifier(notifier),
		conversation.WithHandoffArchiver(archive.NewStore(s3Client, cfg.HandoffArchiveBucket, logger)),
		conversation.WithTurnObserver(app.ReconcileMetrics),
		conversation.WithHistoryTurns(cfg.HistoryTurns),
		conversation.WithReplyTimeout(cfg.ReplyTimeout),
	}
	if llmClient != nil {
		engineOpts = append(engineOpts, conversation.WithReplyClient(llmClient, cfg.GroqReplyModel))
	}
	app.Engine = conversation.NewEngine(app.Reconciler, BuildHistoryStore(app.Redis), logger, engineOpts...)

	if cfg.ConversationJobsTable != "" && awsCfg != nil {
		app.Jobs = conversation.NewJobStore(dynamodb.NewFromConfig(*awsCfg), cfg.ConversationJobsTable, logger)
	} else {
		app.Jobs = conversation.NewMemoryJobStore()
	}

	workerOpts := []conversation.WorkerOption{conversation.WithConcurrency(cfg.WorkerCount)}
	if useMemoryQueue(cfg) {
		app.MemoryQueue = true
		q := conversation.NewMemoryQueue(memoryQueueBuffer)
		app.Publisher = conversation.NewPublisher(q, app.Jobs, logger)
		app.Worker = conversation.NewWorker(app.Engine, q, app.Jobs, messenger, logger, workerOpts...)
	} else {
		q := conversation.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.ConversationQueueURL)
		app.Publisher = conversation.NewPublisher(q, app.Jobs, logger)
		app.Worker = conversation.NewWorker(app.Engine, q, app.Jobs, messenger, logger, workerOpts...)
	}

	app.Webhook = messaging.NewWebhookHandler(messaging.WebhookConfig{
		VerifyToken: cfg.WhatsAppVerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
	}, app.Publisher, app.Processed, app.MessagingMetrics, logger)

	return app, nil
}

// Close releases database and cache connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}

func buildReconciler(cfg *appconfig.Config, repo enquiry.Repository, locker enquiry.KeyedLocker, client llm.Client, observer enquiry.Observer, logger *logging.Logger) *enquiry.Reconciler {
	strategy := enquiry.ParseStrategy(cfg.ExtractionStrategy)
	heuristic := extraction.NewHeuristic(strategy, extraction.WithPhoneRegion(cfg.DefaultPhoneRegion))

	var semantic enquiry.SemanticExtractor
	if client != nil {
		semantic = extraction.NewSemantic(client,
			extraction.WithSemanticModel(cfg.GroqExtractionModel),
			extraction.WithRequestTimeout(cfg.SemanticExtractionTimeout),
			extraction.WithSemanticLogger(logger),
			extraction.WithSemanticPhoneRegion(cfg.DefaultPhoneRegion),
		)
	}
	return enquiry.NewReconciler(repo, heuristic, semantic,
		enquiry.WithStrategy(strategy),
		enquiry.WithAutoCallback(cfg.AutoCallbackOnProgress),
		enquiry.WithResetClearsContactInfo(cfg.ResetClearsContactInfo),
		enquiry.WithSemanticTimeout(cfg.SemanticExtractionTimeout),
		enquiry.WithLocker(locker),
		enquiry.WithLogger(logger),
		enquiry.WithObserver(observer),
	)
}

func needsAWS(cfg *appconfig.Config) bool {
	return !useMemoryQueue(cfg) ||
		cfg.ConversationJobsTable != "" ||
		cfg.HandoffArchiveBucket != "" ||
		emailProvider(cfg) == emailProviderSES ||
		slices.Contains(fallbackProviders(cfg.LLMFallbackProvider), providerBedrock)
}

func useMemoryQueue(cfg *appconfig.Config) bool {
	return cfg.UseMemoryQueue || strings.TrimSpace(cfg.ConversationQueueURL) == ""
}

func whatsAppConfigured(cfg *appconfig.Config) bool {
	return strings.TrimSpace(cfg.WhatsAppToken) != "" && strings.TrimSpace(cfg.WhatsAppPhoneNumberID) != ""
}

// logMessenger stands in for WhatsApp when no credentials are configured.
type logMessenger struct {
	logger *logging.Logger
}

func (m logMessenger) SendReply(_ context.Context, reply conversation.OutboundReply) error {
	if strings.TrimSpace(reply.To) == "" {
		return errors.New("bootstrap: reply recipient required")
	}
	m.logger.Info("reply (not sent)", "to", reply.To, "enquiry_id", reply.EnquiryID, "body", reply.Body)
	return nil
}

// RunProcessedPurge deletes old dedup records every interval until ctx ends.
func RunProcessedPurge(ctx context.Context, store ProcessedStore, retention, interval time.Duration, logger *logging.Logger) {
	if store == nil || retention <= 0 || interval <= 0 {
		return
	}
	if logger == nil {
		logger = logging.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Warn("processed events purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("processed events purged", "count", n)
			}
		}
	}
}
