package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/pkg/cache"
	"github.com/open-zapdesk/zapdesk/internal/pkg/queue"
	"github.com/open-zapdesk/zapdesk/internal/service/ticket"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

// Gateway é a porta de entrada do pipeline: audita, filtra stubs, deduplica
// e enfileira um job por envelope sobrevivente. Com a fila indisponível o
// processamento degrada para síncrono no mesmo caminho de código.
type Gateway struct {
	envelopeLogs storage.EnvelopeLogRepository
	resolver     *ticket.Resolver
	cache        cache.Cache
	jobs         queue.Queue
	handler      *Handler
	dedupWindow  time.Duration
	log          *zap.Logger
}

func NewGateway(
	envelopeLogs storage.EnvelopeLogRepository,
	resolver *ticket.Resolver,
	c cache.Cache,
	jobs queue.Queue,
	handler *Handler,
	dedupWindow time.Duration,
	log *zap.Logger,
) *Gateway {
	return &Gateway{
		envelopeLogs: envelopeLogs,
		resolver:     resolver,
		cache:        c,
		jobs:         jobs,
		handler:      handler,
		dedupWindow:  dedupWindow,
		log:          log,
	}
}

// Ingest processa um lote de envelopes. Falha em um envelope nunca derruba
// o lote; cada um é tratado de forma independente.
func (g *Gateway) Ingest(ctx context.Context, envs []transport.Envelope) {
	for _, env := range envs {
		if err := g.ingestOne(ctx, env); err != nil {
			g.log.Error("gateway: falha ao ingerir envelope",
				zap.String("wid", env.WID),
				zap.String("connectionId", env.ConnectionID),
				zap.Error(err))
		}
	}
}

func (g *Gateway) ingestOne(ctx context.Context, env transport.Envelope) error {
	audited := g.audit(ctx, env)

	// stubs administrativos não geram roteamento; revogação vira redação
	// pelo caminho de ack
	switch env.StubType {
	case transport.StubNone:
	case transport.StubRevoke:
		g.IngestAck(ctx, transport.StatusUpdate{
			WID:          env.WID,
			ConnectionID: env.ConnectionID,
			CompanyID:    env.CompanyID,
			Status:       string(model.AckDeleted),
			Timestamp:    env.Timestamp,
		})
		return nil
	default:
		g.log.Debug("gateway: stub descartado",
			zap.String("wid", env.WID), zap.String("stubType", string(env.StubType)))
		return nil
	}

	added, err := g.cache.AddOnce(ctx, dedupKey(env.CompanyID, env.WID), g.dedupWindow)
	if err != nil {
		// cache fora do ar: processa mesmo assim; a unicidade do wid no
		// storage segura a duplicata
		g.log.Warn("gateway: cache de dedup indisponível", zap.Error(err))
	} else if !added {
		g.log.Debug("gateway: envelope duplicado descartado", zap.String("wid", env.WID))
		return nil
	}

	contact, err := g.resolver.ResolveContact(ctx, env)
	if err != nil {
		return fmt.Errorf("gateway: resolver contato: %w", err)
	}

	g.bumpUnread(ctx, env, contact)

	if !audited {
		// sem cópia de auditoria o worker não teria de onde re-buscar o
		// payload; processa em linha com o envelope que já temos
		g.handler.ProcessEnvelope(ctx, env)
		return nil
	}

	job := queue.Job{
		ID:           queue.JobID(env.ConnectionID, queue.JobHandleMessage, env.WID),
		Name:         queue.JobHandleMessage,
		Priority:     5,
		CompanyID:    env.CompanyID,
		ConnectionID: env.ConnectionID,
		MessageID:    env.WID,
		ContactID:    contact.ID,
		CreatedAt:    time.Now(),
	}
	if err := g.jobs.Enqueue(ctx, job); err != nil {
		if errors.Is(err, queue.ErrDuplicate) {
			g.log.Debug("gateway: job já enfileirado", zap.String("jobId", job.ID))
			return nil
		}
		g.log.Warn("gateway: fila indisponível, processando em linha",
			zap.String("wid", env.WID), zap.Error(err))
		g.handler.ProcessEnvelope(ctx, env)
	}
	return nil
}

// IngestAck enfileira a atualização de status; com a fila fora, aplica direto.
func (g *Gateway) IngestAck(ctx context.Context, upd transport.StatusUpdate) {
	job := queue.Job{
		ID:           queue.JobID(upd.ConnectionID, queue.JobHandleMessageAck, upd.WID+"-"+upd.Status),
		Name:         queue.JobHandleMessageAck,
		Priority:     7,
		CompanyID:    upd.CompanyID,
		ConnectionID: upd.ConnectionID,
		MessageID:    upd.WID,
		Status:       upd.Status,
		CreatedAt:    time.Now(),
	}
	if err := g.jobs.Enqueue(ctx, job); err != nil && !errors.Is(err, queue.ErrDuplicate) {
		g.log.Warn("gateway: fila indisponível para ack, aplicando em linha",
			zap.String("wid", upd.WID), zap.Error(err))
		g.handler.ProcessAck(ctx, upd)
	}
}

// audit grava a cópia bruta do envelope; devolve false quando não conseguiu.
func (g *Gateway) audit(ctx context.Context, env transport.Envelope) bool {
	payload, err := transport.EncodeEnvelope(env)
	if err != nil {
		g.log.Error("gateway: falha ao serializar envelope", zap.String("wid", env.WID), zap.Error(err))
		return false
	}
	_, err = g.envelopeLogs.Create(ctx, model.EnvelopeLog{
		CompanyID:    env.CompanyID,
		ConnectionID: env.ConnectionID,
		WID:          env.WID,
		Payload:      string(payload),
	})
	if err != nil {
		g.log.Error("gateway: falha ao gravar auditoria", zap.String("wid", env.WID), zap.Error(err))
		return false
	}
	return true
}

// bumpUnread mantém o contador de não-lidas por contato: mensagem nossa
// zera, mensagem do contato incrementa atomicamente.
func (g *Gateway) bumpUnread(ctx context.Context, env transport.Envelope, contact model.Contact) {
	key := unreadKey(env.CompanyID, contact.ID)
	var err error
	if env.FromMe {
		err = g.cache.Set(ctx, key, "0", 0)
	} else {
		_, err = g.cache.Incr(ctx, key)
	}
	if err != nil {
		g.log.Warn("gateway: falha no contador de não-lidas",
			zap.String("contactId", contact.ID), zap.Error(err))
	}
}

func dedupKey(companyID, wid string) string {
	return fmt.Sprintf("dedup:%s:%s", companyID, wid)
}

func unreadKey(companyID, contactID string) string {
	return fmt.Sprintf("unread:%s:%s", companyID, contactID)
}
