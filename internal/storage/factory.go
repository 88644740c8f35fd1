package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/config"
	"github.com/open-zapdesk/zapdesk/internal/pkg/cache"
	cache_memory "github.com/open-zapdesk/zapdesk/internal/pkg/cache/memory"
	cache_redis "github.com/open-zapdesk/zapdesk/internal/pkg/cache/redis"
	"github.com/open-zapdesk/zapdesk/internal/pkg/queue"
	queue_memory "github.com/open-zapdesk/zapdesk/internal/pkg/queue/memory"
	queue_rabbit "github.com/open-zapdesk/zapdesk/internal/pkg/queue/rabbitmq"
	queue_redis "github.com/open-zapdesk/zapdesk/internal/pkg/queue/redis"
	"github.com/open-zapdesk/zapdesk/internal/storage/memory"
	"github.com/open-zapdesk/zapdesk/internal/storage/postgres"
	storage_redis "github.com/open-zapdesk/zapdesk/internal/storage/redis"
)

// Locker serializa a seção crítica de lookup-or-create de tickets.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

type Repositories struct {
	Company     CompanyRepository
	Connection  ConnectionRepository
	Contact     ContactRepository
	Ticket      TicketRepository
	Tracking    TicketTrackingRepository
	Message     MessageRepository
	Queue       QueueRepository
	Integration IntegrationRepository
	Rating      RatingRepository
	Flow        FlowRepository
	EnvelopeLog EnvelopeLogRepository

	JobQueue    queue.Queue
	Cache       cache.Cache
	Locker      Locker
	RedisClient *storage_redis.Client // Pode ser nil se Redis estiver desabilitado
}

func NewRepositories(cfg config.Config, log *zap.Logger) (*Repositories, error) {
	log.Info("inicializando repositórios", zap.String("driver", cfg.Storage.Driver))

	dedupWindow := time.Duration(cfg.Pipeline.DedupWindowSeconds) * time.Second

	var (
		jobQueue   queue.Queue
		dataCache  cache.Cache
		locker     Locker
		storeRedis *storage_redis.Client
		err        error
	)

	if cfg.Redis.Enabled {
		log.Info("inicializando Redis...")
		storeRedis, err = storage_redis.New(cfg.Redis, log)
		if err != nil {
			log.Error("erro ao conectar com Redis", zap.Error(err))
			return nil, err
		}

		rdb := storeRedis.RDB()
		jobQueue = queue_redis.NewQueue(rdb, "pipeline:jobs")
		dataCache = cache_redis.NewCache(rdb, "zapdesk")
		locker = storage_redis.NewLocker(storeRedis, 10*time.Second)
		log.Info("Redis conectado, fila, cache e locks configurados")
	} else {
		log.Info("usando implementações em memória (Redis desabilitado)")
		jobQueue = queue_memory.NewQueue(10000)
		dataCache = cache_memory.NewCache(dedupWindow)
		locker = memory.NewLocker()
	}

	// Rabbit, quando habilitado, substitui o driver da fila durável; dedup e
	// locks continuam no Redis/memória.
	if cfg.Rabbit.Enabled && cfg.Rabbit.URL != "" {
		log.Info("inicializando RabbitMQ...", zap.String("queue", cfg.Rabbit.Queue))
		jobQueue, err = queue_rabbit.NewQueue(cfg.Rabbit.URL, cfg.Rabbit.Queue, dedupWindow)
		if err != nil {
			log.Error("erro ao conectar com RabbitMQ", zap.Error(err))
			return nil, err
		}
	}

	switch cfg.Storage.Driver {
	case "postgres", "":
		log.Debug("criando conexão com PostgreSQL")
		db, err := postgres.New(cfg.DB, log)
		if err != nil {
			log.Error("erro ao conectar com PostgreSQL", zap.Error(err))
			return nil, err
		}

		log.Info("repositórios PostgreSQL criados com sucesso")
		return &Repositories{
			Company:     postgres.NewCompanyRepository(db),
			Connection:  postgres.NewConnectionRepository(db),
			Contact:     postgres.NewContactRepository(db),
			Ticket:      postgres.NewTicketRepository(db),
			Tracking:    postgres.NewTicketTrackingRepository(db),
			Message:     postgres.NewMessageRepository(db),
			Queue:       postgres.NewQueueRepository(db),
			Integration: postgres.NewIntegrationRepository(db),
			Rating:      postgres.NewRatingRepository(db),
			Flow:        postgres.NewFlowRepository(db),
			EnvelopeLog: postgres.NewEnvelopeLogRepository(db),
			JobQueue:    jobQueue,
			Cache:       dataCache,
			Locker:      locker,
			RedisClient: storeRedis,
		}, nil

	case "memory":
		log.Info("repositórios em memória criados (modo degradado/testes)")
		store := memory.NewStore()
		return &Repositories{
			Company:     memory.NewCompanyRepository(store),
			Connection:  memory.NewConnectionRepository(store),
			Contact:     memory.NewContactRepository(store),
			Ticket:      memory.NewTicketRepository(store),
			Tracking:    memory.NewTicketTrackingRepository(store),
			Message:     memory.NewMessageRepository(store),
			Queue:       memory.NewQueueRepository(store),
			Integration: memory.NewIntegrationRepository(store),
			Rating:      memory.NewRatingRepository(store),
			Flow:        memory.NewFlowRepository(store),
			EnvelopeLog: memory.NewEnvelopeLogRepository(store),
			JobQueue:    jobQueue,
			Cache:       dataCache,
			Locker:      locker,
			RedisClient: storeRedis,
		}, nil

	default:
		log.Error("driver de storage desconhecido", zap.String("driver", cfg.Storage.Driver))
		return nil, &ErrUnknownDriver{Driver: cfg.Storage.Driver}
	}
}

type ErrUnknownDriver struct {
	Driver string
}

func (e *ErrUnknownDriver) Error() string {
	return "storage: driver desconhecido: " + e.Driver
}
