// Package app wires configuration, stores and providers into the services
// shared by the HTTP server and the ops CLI.
package app

import (
	"context"

	"github.com/edulive/session-knowledge/internal/config"
	"github.com/edulive/session-knowledge/internal/daily"
	"github.com/edulive/session-knowledge/internal/database"
	"github.com/edulive/session-knowledge/internal/jobs"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/openai"
	"github.com/edulive/session-knowledge/internal/redis"
	"github.com/edulive/session-knowledge/internal/repository"
	"github.com/edulive/session-knowledge/internal/service"
	"github.com/edulive/session-knowledge/internal/sse"
	"github.com/edulive/session-knowledge/internal/storage"
)

type App struct {
	Config *config.Config

	Users    repository.UserRepository
	Sessions repository.SessionRepository
	Chunks   repository.ChunkRepository

	Broker *sse.Broker
	Queue  *jobs.Queue

	SessionService *service.SessionService
	Orchestrator   *service.TranscriptionOrchestrator
	WebhookRouter  *service.WebhookRouter
	Questions      *service.QuestionService
}

// New builds every service. It opens no connections of its own; the caller
// owns db, redisClient and the returned Broker.
func New(cfg *config.Config, db *database.DB, redisClient *redis.Client) *App {
	users := repository.NewUserRepository(db.DB)
	sessions := repository.NewSessionRepository(db.DB)
	transcripts := repository.NewTranscriptRepository(db.DB)
	chunks := repository.NewChunkRepository(db.DB)
	index := repository.NewIndexRepository(db, transcripts, chunks)
	access := service.NewAccessService(repository.NewCourseAccessRepository(db.DB))

	broker := sse.NewBroker(redisClient)
	queue := jobs.NewQueue(redisClient.Client)
	locker := redis.NewSessionLocker(redisClient.Client, config.PipelineLockTTL)

	dailyClient := daily.NewClient(cfg.DailyAPIKey, cfg.DailyAPIURL)
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	store := storage.NewClient(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)

	sessionService := service.NewSessionService(sessions, access, dailyClient, queue, broker, service.SessionConfig{
		MaxParticipants: cfg.RoomMaxParticipants,
		RoomExpiry:      cfg.RoomExpiry(),
		ProcessingDelay: cfg.ProcessingInitialDelay(),
		EndGrace:        cfg.SessionEndGrace(),
	})

	acquirer := service.NewRecordingAcquirer(dailyClient, store, sessions, broker, cfg.MaxRecordingBytes)
	indexer := service.NewEmbeddingIndexer(openaiClient, cfg.EmbeddingModel, cfg.EmbeddingBatchSize)
	orchestrator := service.NewTranscriptionOrchestrator(
		sessions, acquirer, openaiClient, indexer, index, locker, queue, broker,
		service.OrchestratorConfig{
			TranscriptionModel: cfg.TranscriptionModel,
			ChunkMaxChars:      cfg.ChunkMaxChars,
			RetryDelay:         cfg.ProcessingRetryDelay(),
		},
	)

	webhookRouter := service.NewWebhookRouter(sessions, orchestrator, queue, service.WebhookRouterConfig{
		Deferred:     cfg.Deferred(),
		InitialDelay: cfg.ProcessingInitialDelay(),
	})

	retrieval := service.NewRetrievalEngine(openaiClient, cfg.EmbeddingModel, chunks, service.RetrievalConfig{
		TopK:          cfg.RetrievalTopK,
		MinSimilarity: cfg.RetrievalMinSimilarity,
	})
	composer := service.NewAnswerComposer(openaiClient, service.ComposerConfig{
		Model:        cfg.ChatModel,
		HistoryTurns: cfg.HistoryTurns,
		Temperature:  config.AnswerTemperature,
		MaxTokens:    config.AnswerMaxTokens,
	})
	questions := service.NewQuestionService(sessions, access, retrieval, composer, store, broker)

	return &App{
		Config:         cfg,
		Users:          users,
		Sessions:       sessions,
		Chunks:         chunks,
		Broker:         broker,
		Queue:          queue,
		SessionService: sessionService,
		Orchestrator:   orchestrator,
		WebhookRouter:  webhookRouter,
		Questions:      questions,
	}
}

// RegisterJobs binds queued job types to their handlers.
func (a *App) RegisterJobs(runner *jobs.Runner) {
	runner.Register(model.JobTypeProcessRecording, func(ctx context.Context, job model.Job) error {
		_, err := a.Orchestrator.Run(ctx, job)
		return err
	})
}
