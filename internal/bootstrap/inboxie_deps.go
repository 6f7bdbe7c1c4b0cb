// Package bootstrap assembles the application graph.
package bootstrap

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"inboxie_server/adapter/out/graph"
	"inboxie_server/adapter/out/mongodb"
	"inboxie_server/adapter/out/persistence"
	"inboxie_server/adapter/out/provider"
	"inboxie_server/adapter/out/realtime"
	"inboxie_server/config"
	"inboxie_server/core/agent/llm"
	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/core/service/auth"
	"inboxie_server/core/service/pipeline"
	"inboxie_server/core/service/process"
	"inboxie_server/core/service/reply"
	"inboxie_server/core/service/search"
	"inboxie_server/infra/database"
	"inboxie_server/pkg/crypto"
	"inboxie_server/pkg/logger"
	"inboxie_server/pkg/ratelimit"
)

// Dependencies holds every wired component of the application.
type Dependencies struct {
	Config *config.Config

	// Infrastructure
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Neo4j   neo4j.DriverWithContext

	// Repositories
	Users   *persistence.UserAdapter
	Records *persistence.ProcessedEmailAdapter
	Tokens  *persistence.TokenAdapter
	Vectors *persistence.VectorAdapter
	Bodies  *mongodb.BodyAdapter
	Tones   *graph.ToneAdapter

	// Providers
	Gmail *provider.GmailAdapter

	// Realtime
	Progress *realtime.ProgressAdapter

	// Rate limiting
	APILimiter *ratelimit.SlidingWindowLimiter

	// Agent
	LLM *llm.Client

	// Services
	ProcessService *process.Service
	ReplyService   *reply.Service
	SearchService  *search.Service
	OAuthService   *auth.Service
}

// NewDependencies builds the full graph. The returned cleanup closes every
// connection that was opened, in reverse order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	log := logger.Default()

	// PostgreSQL (pgxpool for pgvector, sqlx for row-mapped adapters)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis: run guard, OAuth state, API rate limiting. Optional, the
	// dependents all fail open.
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Redis connection failed, run guard and rate limiting degraded")
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// MongoDB: message body cache. Optional, reply drafting refetches on miss.
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			log.WithError(err).Warn("MongoDB connection failed, body cache disabled")
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				_ = mongoClient.Disconnect(context.Background())
			})

			deps.Bodies = mongodb.NewBodyAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := deps.Bodies.EnsureIndexes(context.Background()); err != nil {
				log.WithError(err).Warn("MongoDB index creation failed")
			}
		}
	}

	// Neo4j: tone profiles. Optional, drafting works without a profile.
	if cfg.Neo4jURL != "" {
		driver, err := graph.NewDriver(cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
		if err != nil {
			log.WithError(err).Warn("Neo4j connection failed, tone profiles disabled")
		} else {
			deps.Neo4j = driver
			cleanups = append(cleanups, func() {
				_ = driver.Close(context.Background())
			})

			deps.Tones = graph.NewToneAdapter(driver, "")
			if err := deps.Tones.EnsureIndexes(context.Background()); err != nil {
				log.WithError(err).Warn("Neo4j index creation failed")
			}
		}
	}

	// Token encryption
	var encryptor *crypto.Encryptor
	if cfg.EncryptionKey != "" {
		encryptor, err = crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	// Repositories
	deps.Users = persistence.NewUserAdapter(sqlDB)
	deps.Records = persistence.NewProcessedEmailAdapter(sqlDB)
	deps.Tokens = persistence.NewTokenAdapter(sqlDB, encryptor, log)
	deps.Vectors = persistence.NewVectorAdapter(db)

	// Provider
	deps.Gmail = provider.NewGmailAdapter(provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, log)

	// Realtime
	zlog := zerolog.New(os.Stderr).With().Timestamp().Logger()
	deps.Progress = realtime.NewProgressAdapter(zlog)

	// Rate limiting
	deps.APILimiter = ratelimit.NewSlidingWindowLimiter(deps.Redis, cfg.APIRequestsPerSecond, cfg.APIBurstSize)

	// LLM
	deps.LLM = llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	})

	// Pipeline
	fetcher := pipeline.NewFetcher(deps.Gmail, deps.Records, pipeline.FetcherConfig{
		PageSize:     cfg.PipelinePageSize,
		FetchCeiling: cfg.PipelineFetchCeiling,
	}, log)

	classifier := pipeline.NewClassifier(deps.LLM, pipeline.ClassifierConfig{
		ChunkSize:   cfg.PipelineChunkSize,
		ChunkDelay:  cfg.PipelineChunkDelay,
		ReplyWindow: cfg.PipelineReplyWindow,
		CallTimeout: cfg.LLMTimeout,
	}, log)

	reconciler := pipeline.NewReconciler(deps.Gmail, log)

	labelBucket := ratelimit.NewTokenBucket(cfg.PipelineLabelRate, cfg.PipelineLabelRate)
	applier := pipeline.NewApplier(deps.Gmail, deps.Records, deps.Users, labelBucket, pipeline.ApplierConfig{
		PersistChunk: cfg.PipelinePersistChunks,
	}, log)

	// Services
	deps.SearchService = search.NewService(deps.LLM, deps.Vectors, log)
	applier.SetIndexer(deps.SearchService)
	if deps.Bodies != nil {
		applier.SetBodyCache(deps.Bodies)
	}

	guard := ratelimit.NewRunGuard(deps.Redis, cfg.RunLockTTL)
	orchestrator := pipeline.NewOrchestrator(
		fetcher, classifier, reconciler, applier,
		deps.Users, guard, deps.Progress,
		pipeline.OrchestratorConfig{
			BatchSize:  cfg.PipelineBatchSize,
			MaxBatches: cfg.PipelineMaxBatches,
			BatchDelay: cfg.PipelineBatchDelay,
		}, log)

	deps.ProcessService = process.NewService(orchestrator, deps.Tokens, deps.Gmail, deps.Records, deps.Users, log)
	deps.ReplyService = reply.NewService(deps.Gmail, deps.LLM, deps.Records, bodiesOrNoop(deps.Bodies, log), tonesOrNoop(deps.Tones, log), log)
	deps.OAuthService = auth.NewService(deps.Gmail, deps.Tokens, deps.Redis, log)

	return deps, cleanup, nil
}

// Degraded-mode stand-ins keep reply drafting usable when an optional
// backend is down. Body misses refetch from the provider; tone analysis
// results are simply not retained.

type noopBodies struct{}

func (noopBodies) Save(context.Context, uuid.UUID, string, string) error { return nil }
func (noopBodies) Get(context.Context, uuid.UUID, string) (string, error) {
	return "", nil
}

type noopTones struct{}

func (noopTones) Save(context.Context, *domain.ToneProfile) error { return nil }
func (noopTones) Get(context.Context, uuid.UUID) (*domain.ToneProfile, error) {
	return nil, nil
}

func bodiesOrNoop(bodies *mongodb.BodyAdapter, log *logger.Logger) out.MessageBodyRepository {
	if bodies == nil {
		log.Warn("body cache disabled, reply drafting will refetch bodies")
		return noopBodies{}
	}
	return bodies
}

func tonesOrNoop(tones *graph.ToneAdapter, log *logger.Logger) out.ToneProfileStore {
	if tones == nil {
		log.Warn("tone store disabled, tone profiles will not persist")
		return noopTones{}
	}
	return tones
}
