// Package bootstrap wires the configured adapters, services, and the
// fiber app together.
package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"nexus_server/adapter/out/mongodb"
	"nexus_server/adapter/out/persistence"
	"nexus_server/adapter/out/provider"
	"nexus_server/adapter/out/push"
	"nexus_server/adapter/out/stt"
	"nexus_server/config"
	"nexus_server/core/agent/llm"
	"nexus_server/core/port/in"
	"nexus_server/core/port/out"
	"nexus_server/core/service/briefing"
	"nexus_server/core/service/chat"
	"nexus_server/core/service/email"
	"nexus_server/core/service/extract"
	"nexus_server/core/service/memory"
	"nexus_server/core/service/whatsapp"
	"nexus_server/infra/database"
	"nexus_server/pkg/logger"
	"nexus_server/pkg/ratelimit"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	Users  out.UserRepository
	Alerts out.AlertRepository
	Convs  out.ConversationRepository
	Facts  out.ProfileFactRepository
	Emails out.EmailRepository
	Chats  out.WhatsAppRepository
	Bodies out.EmailBodyArchive

	// Outbound providers
	Gmail out.EmailProvider
	Push  out.PushSender
	STT   out.Transcriber

	// Agent
	LLM       *llm.Client
	Extractor *extract.Extractor
	Memory    *memory.Service

	// Services
	ChatService     in.ChatService
	AlertService    in.AlertService
	EmailService    in.EmailService
	WhatsAppService in.WhatsAppService
	BriefingService in.BriefingService
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	// Database (pgxpool, used by the readiness probe)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the repositories)
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis, optional: the brain debounce degrades to a local window
	// without it.
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("redis connection failed, debounce runs locally")
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// MongoDB, optional: raw email bodies are only archived when it is
	// configured.
	if cfg.MongoDBURL != "" {
		mongoClient, err := database.NewMongo(cfg.MongoDBURL)
		if err != nil {
			logger.WithError(err).Warn("mongodb connection failed, body archive disabled")
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			bodyAdapter := mongodb.NewEmailBodyAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := bodyAdapter.EnsureIndexes(context.Background()); err != nil {
				logger.WithError(err).Warn("mongodb index setup failed")
			}
			deps.Bodies = bodyAdapter
		}
	}

	// Repositories
	deps.Users = persistence.NewUserRepository(sqlDB)
	deps.Alerts = persistence.NewAlertRepository(sqlDB)
	deps.Convs = persistence.NewConversationRepository(sqlDB)
	deps.Facts = persistence.NewProfileFactRepository(sqlDB)
	deps.Emails = persistence.NewEmailRepository(sqlDB)
	deps.Chats = persistence.NewWhatsAppRepository(sqlDB)

	// Gmail provider
	deps.Gmail = provider.NewGmailProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	// Push: FCM when configured, a no-op sender otherwise so callers
	// never nil-check.
	if cfg.FCMProjectID != "" && cfg.FCMCredentialsFile != "" {
		sender, err := push.NewFCMSender(context.Background(), cfg.FCMProjectID, cfg.FCMCredentialsFile)
		if err != nil {
			logger.WithError(err).Warn("fcm init failed, push disabled")
			deps.Push = push.NewNoopSender()
		} else {
			deps.Push = sender
		}
	} else {
		deps.Push = push.NewNoopSender()
	}

	// Speech to text
	if cfg.OpenAIAPIKey != "" {
		deps.STT = stt.NewWhisperTranscriber(cfg.OpenAIAPIKey)
	}

	// LLM client
	deps.LLM = llm.NewClient(llm.Config{
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.LLMModel,
		MiniModel:      cfg.LLMMiniModel,
		EmbeddingModel: cfg.EmbeddingModel,
		MaxTokens:      cfg.LLMMaxTokens,
		Temperature:    cfg.LLMTemperature,
	})

	// Deterministic extractor and semantic memory
	deps.Extractor = extract.New()
	deps.Memory = memory.NewService(deps.LLM, deps.Convs, cfg.MemoryThreshold, cfg.MemoryTopK)

	webhookUserID, err := uuid.Parse(cfg.WebhookUserID)
	if err != nil {
		logger.WithError(err).Warn("invalid WEBHOOK_USER_ID, webhook messages disabled")
		webhookUserID = uuid.Nil
	}

	// Services
	deps.ChatService = chat.NewService(
		deps.LLM,
		deps.Users,
		deps.Alerts,
		deps.Convs,
		deps.Facts,
		deps.Push,
		deps.Memory,
		deps.Extractor,
		webhookUserID,
	)
	deps.AlertService = chat.NewAlertService(deps.Alerts)
	deps.EmailService = email.NewService(
		deps.Emails,
		deps.Gmail,
		deps.Bodies,
		deps.LLM,
		deps.Users,
		deps.Push,
		ratelimit.NewPacer(cfg.TriagePacing),
	)
	deps.WhatsAppService = whatsapp.NewService(
		deps.Chats,
		deps.Alerts,
		deps.LLM,
		deps.STT,
		deps.Extractor,
		ratelimit.NewDebouncer(deps.Redis, cfg.BrainDebounce),
	)
	deps.BriefingService = briefing.NewService(deps.Users, deps.Alerts, deps.Push)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return deps, cleanup, nil
}
