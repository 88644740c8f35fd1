package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/api/handler"
	"github.com/open-zapdesk/zapdesk/internal/app"
	"github.com/open-zapdesk/zapdesk/internal/config"
	"github.com/open-zapdesk/zapdesk/internal/integration"
	"github.com/open-zapdesk/zapdesk/internal/integration/flowbuilder"
	"github.com/open-zapdesk/zapdesk/internal/integration/openai"
	"github.com/open-zapdesk/zapdesk/internal/integration/typebot"
	integration_webhook "github.com/open-zapdesk/zapdesk/internal/integration/webhook"
	"github.com/open-zapdesk/zapdesk/internal/logger"
	"github.com/open-zapdesk/zapdesk/internal/pipeline"
	"github.com/open-zapdesk/zapdesk/internal/pkg/debounce"
	"github.com/open-zapdesk/zapdesk/internal/realtime"
	"github.com/open-zapdesk/zapdesk/internal/server"
	"github.com/open-zapdesk/zapdesk/internal/service/ack"
	"github.com/open-zapdesk/zapdesk/internal/service/hours"
	"github.com/open-zapdesk/zapdesk/internal/service/routing"
	ticket_service "github.com/open-zapdesk/zapdesk/internal/service/ticket"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/transport"
	whatsmeow_transport "github.com/open-zapdesk/zapdesk/internal/transport/whatsmeow"
)

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	logr.Info("iniciando aplicação",
		zap.String("env", cfg.App.Env),
		zap.String("log_level", cfg.Log.Level),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Storage.Driver),
	)

	repos, err := storage.NewRepositories(cfg, logr)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var emitter realtime.Emitter
	if repos.RedisClient != nil {
		emitter = realtime.NewRedisEmitter(repos.RedisClient.RDB())
	} else {
		emitter = realtime.NewMemoryEmitter()
	}

	pgConnString := ""
	if cfg.Storage.Driver == "postgres" || cfg.Storage.Driver == "" {
		pgConnString = cfg.DB.DSN()
	}
	sessionManager := whatsmeow_transport.NewManager(repos.Connection, pgConnString, logr)

	debounceTable := debounce.NewTable(time.Duration(cfg.Pipeline.DebounceMs) * time.Millisecond)

	gate := hours.NewGate(repos.Queue, repos.Ticket, repos.Cache, sessionManager, cfg.Bot, logr)

	logr.Debug("registrando backends de integração")
	dispatcher := integration.NewDispatcher(
		repos.Ticket,
		repos.Message,
		sessionManager,
		cfg.Integration,
		logr,
		typebot.New(repos.Cache, repos.Queue, logr),
		openai.New(repos.Message, repos.Queue, logr),
		flowbuilder.New(repos.Flow, logr),
		integration_webhook.New(logr),
	)

	resolver := ticket_service.NewResolver(repos.Contact, repos.Ticket, repos.Tracking, repos.Locker, logr)

	engine := routing.NewEngine(routing.EngineParams{
		Contacts:     repos.Contact,
		Tickets:      repos.Ticket,
		Tracking:     repos.Tracking,
		Messages:     repos.Message,
		Queues:       repos.Queue,
		Integrations: repos.Integration,
		Flows:        repos.Flow,
		Ratings:      repos.Rating,
		Gate:         gate,
		Dispatcher:   dispatcher,
		Sender:       sessionManager,
		Debounce:     debounceTable,
		Emitter:      emitter,
		Config:       cfg.Bot,
		Log:          logr,
	})

	acks := ack.NewService(repos.Message, emitter, logr)

	pipelineHandler := pipeline.NewHandler(
		repos.Company,
		repos.Connection,
		repos.Message,
		repos.Ticket,
		repos.EnvelopeLog,
		resolver,
		engine,
		acks,
		emitter,
		logr,
	)

	dedupWindow := time.Duration(cfg.Pipeline.DedupWindowSeconds) * time.Second
	gateway := pipeline.NewGateway(
		repos.EnvelopeLog,
		resolver,
		repos.Cache,
		repos.JobQueue,
		pipelineHandler,
		dedupWindow,
		logr,
	)

	sessionManager.SetHandlers(
		func(ctx context.Context, envelopes []transport.Envelope) {
			gateway.Ingest(ctx, envelopes)
		},
		func(ctx context.Context, updates []transport.StatusUpdate) {
			for _, upd := range updates {
				gateway.IngestAck(ctx, upd)
			}
		},
	)

	pool := pipeline.NewPool(repos.JobQueue, pipelineHandler, logr, cfg.Pipeline.Workers)
	pool.Start(context.Background())
	logr.Info("pipeline iniciado", zap.Int("workers", cfg.Pipeline.Workers))

	router := server.NewRouter(server.Options{
		Env:               cfg.App.Env,
		AuthSecret:        cfg.JWT.Secret,
		HealthHandler:     handler.NewHealthHandler(),
		IngestHandler:     handler.NewIngestHandler(repos.Connection, gateway, logr),
		TicketHandler:     handler.NewTicketHandler(repos.Ticket, repos.Contact, repos.Connection, engine, logr),
		ConnectionHandler: handler.NewConnectionHandler(repos.Connection, sessionManager, logr),
	})

	application := app.New(cfg, logr, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := application.Run(context.Background()); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logr.Info("sinal de encerramento recebido")
	case err := <-errCh:
		logr.Error("servidor finalizado com erro", zap.Error(err))
	}

	logr.Info("iniciando shutdown graceful")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool.Stop()
	debounceTable.Stop()

	if err := repos.JobQueue.Close(); err != nil {
		logr.Warn("erro ao fechar fila de jobs", zap.Error(err))
	}
	if repos.RedisClient != nil {
		if err := repos.RedisClient.Close(); err != nil {
			logr.Warn("erro ao fechar conexão Redis", zap.Error(err))
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		logr.Error("erro ao encerrar servidor", zap.Error(err))
	} else {
		logr.Info("servidor encerrado com sucesso")
	}
}
