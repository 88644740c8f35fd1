package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/pkg/queue"
	"github.com/open-zapdesk/zapdesk/internal/realtime"
	"github.com/open-zapdesk/zapdesk/internal/service/ack"
	"github.com/open-zapdesk/zapdesk/internal/service/routing"
	"github.com/open-zapdesk/zapdesk/internal/service/ticket"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

// Handler executa as unidades de trabalho do pipeline. É o mesmo código nos
// dois modos: puxado da fila pelo pool ou chamado em linha pelo gateway.
type Handler struct {
	companies    storage.CompanyRepository
	connections  storage.ConnectionRepository
	messages     storage.MessageRepository
	tickets      storage.TicketRepository
	envelopeLogs storage.EnvelopeLogRepository

	resolver *ticket.Resolver
	engine   *routing.Engine
	acks     *ack.Service
	emitter  realtime.Emitter
	log      *zap.Logger
}

func NewHandler(
	companies storage.CompanyRepository,
	connections storage.ConnectionRepository,
	messages storage.MessageRepository,
	tickets storage.TicketRepository,
	envelopeLogs storage.EnvelopeLogRepository,
	resolver *ticket.Resolver,
	engine *routing.Engine,
	acks *ack.Service,
	emitter realtime.Emitter,
	log *zap.Logger,
) *Handler {
	return &Handler{
		companies:    companies,
		connections:  connections,
		messages:     messages,
		tickets:      tickets,
		envelopeLogs: envelopeLogs,
		resolver:     resolver,
		engine:       engine,
		acks:         acks,
		emitter:      emitter,
		log:          log,
	}
}

// HandleJob é o ponto de entrada dos workers. Nenhuma classe de erro pode
// derrubar o worker: pânico e erro terminam no log, nunca propagam.
func (h *Handler) HandleJob(ctx context.Context, job *queue.Job) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("pipeline: pânico no processamento do job",
				zap.String("jobId", job.ID), zap.Any("panic", r))
		}
	}()

	switch job.Name {
	case queue.JobHandleMessage:
		h.handleMessageJob(ctx, job)
	case queue.JobHandleMessageAck:
		h.ProcessAck(ctx, transport.StatusUpdate{
			WID:          job.MessageID,
			ConnectionID: job.ConnectionID,
			CompanyID:    job.CompanyID,
			Status:       job.Status,
			Timestamp:    job.CreatedAt,
		})
	default:
		h.log.Warn("pipeline: job com nome desconhecido",
			zap.String("jobId", job.ID), zap.String("name", job.Name))
	}
}

func (h *Handler) handleMessageJob(ctx context.Context, job *queue.Job) {
	logEntry, err := h.envelopeLogs.GetByWID(ctx, job.CompanyID, job.MessageID)
	if err != nil {
		h.log.Error("pipeline: envelope do job não encontrado",
			zap.String("jobId", job.ID), zap.Error(err))
		return
	}
	env, err := transport.DecodeEnvelope([]byte(logEntry.Payload))
	if err != nil {
		h.log.Error("pipeline: envelope do job ilegível",
			zap.String("jobId", job.ID), zap.Error(err))
		return
	}
	h.ProcessEnvelope(ctx, env)
}

// ProcessEnvelope leva um envelope do estado bruto até a transição de
// roteamento. Erros são logados com contexto completo e o envelope é
// pulado, nunca derruba o worker.
func (h *Handler) ProcessEnvelope(ctx context.Context, env transport.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("pipeline: pânico no processamento do envelope",
				zap.String("wid", env.WID), zap.Any("panic", r))
		}
	}()

	if err := h.processEnvelope(ctx, env); err != nil {
		h.log.Error("pipeline: falha ao processar envelope",
			zap.String("wid", env.WID),
			zap.String("connectionId", env.ConnectionID),
			zap.String("companyId", env.CompanyID),
			zap.Error(err))
	}
}

func (h *Handler) processEnvelope(ctx context.Context, env transport.Envelope) error {
	company, err := h.companies.GetByID(ctx, env.CompanyID)
	if err != nil {
		return fmt.Errorf("carregar empresa: %w", err)
	}
	conn, err := h.connections.GetByID(ctx, env.ConnectionID)
	if err != nil {
		return fmt.Errorf("carregar conexão: %w", err)
	}

	// edição de protocolo só muta o corpo já gravado, sem roteamento
	if edit, ok := env.Content.(transport.Edit); ok {
		return h.applyEdit(ctx, env, edit)
	}

	body, mediaType, mediaURL, known := describeContent(env.Content)
	if !known {
		h.log.Warn("pipeline: tipo de mensagem desconhecido, envelope pulado",
			zap.String("wid", env.WID),
			zap.String("kind", contentKind(env.Content)))
		return nil
	}

	contact, err := h.resolver.ResolveContact(ctx, env)
	if err != nil {
		return err
	}

	tkt, created, err := h.resolver.FindOrCreate(ctx, env, contact)
	if err != nil {
		return err
	}
	if created {
		h.emitTicket(ctx, tkt, realtime.ActionCreate)
	}

	msg, err := h.messages.Create(ctx, model.Message{
		ID:        uuid.NewString(),
		WID:       env.WID,
		TicketID:  tkt.ID,
		ContactID: contact.ID,
		CompanyID: env.CompanyID,
		Body:      body,
		MediaType: mediaType,
		MediaURL:  mediaURL,
		Ack:       model.AckDelivered,
		FromMe:    env.FromMe,
		QuotedWID: env.QuotedWID,
	})
	if errors.Is(err, storage.ErrConflict) {
		// wid já gravado: reentrega depois da janela de dedup; nada a mutar
		h.log.Debug("pipeline: mensagem já persistida", zap.String("wid", env.WID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("persistir mensagem: %w", err)
	}

	tkt.LastMessage = truncate(body, 255)
	tkt.FromMe = env.FromMe
	tkt, err = h.tickets.Update(ctx, tkt)
	if err != nil {
		return fmt.Errorf("atualizar última mensagem: %w", err)
	}

	h.emitMessage(ctx, msg, realtime.ActionCreate)
	if !created {
		h.emitTicket(ctx, tkt, realtime.ActionUpdate)
	}

	return h.engine.Handle(ctx, env, tkt, contact, company, conn)
}

// ProcessAck aplica uma confirmação de entrega, com a mesma contenção de
// erros do caminho de mensagens.
func (h *Handler) ProcessAck(ctx context.Context, upd transport.StatusUpdate) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("pipeline: pânico no processamento do ack",
				zap.String("wid", upd.WID), zap.Any("panic", r))
		}
	}()

	if err := h.acks.Apply(ctx, upd); err != nil {
		h.log.Error("pipeline: falha ao aplicar ack",
			zap.String("wid", upd.WID), zap.String("status", upd.Status), zap.Error(err))
	}
}

func (h *Handler) applyEdit(ctx context.Context, env transport.Envelope, edit transport.Edit) error {
	msg, err := h.messages.GetByWID(ctx, env.CompanyID, edit.TargetWID)
	if errors.Is(err, storage.ErrNotFound) {
		h.log.Debug("pipeline: edição para mensagem desconhecida",
			zap.String("targetWid", edit.TargetWID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("carregar mensagem editada: %w", err)
	}

	msg.Body = edit.NewBody
	msg.IsEdited = true
	if err := h.messages.Update(ctx, msg); err != nil {
		return fmt.Errorf("aplicar edição: %w", err)
	}
	h.emitMessage(ctx, msg, realtime.ActionUpdate)
	return nil
}

func (h *Handler) emitTicket(ctx context.Context, tkt model.Ticket, action string) {
	err := h.emitter.Emit(ctx, tkt.CompanyID, realtime.Event{
		Name:    realtime.EventTicket,
		Action:  action,
		Payload: tkt,
	})
	if err != nil {
		h.log.Warn("pipeline: falha ao notificar UI", zap.String("ticketId", tkt.ID), zap.Error(err))
	}
}

func (h *Handler) emitMessage(ctx context.Context, msg model.Message, action string) {
	err := h.emitter.Emit(ctx, msg.CompanyID, realtime.Event{
		Name:    realtime.EventAppMessage,
		Action:  action,
		Payload: msg,
	})
	if err != nil {
		h.log.Warn("pipeline: falha ao notificar UI", zap.String("wid", msg.WID), zap.Error(err))
	}
}

func describeContent(content transport.Content) (body, mediaType, mediaURL string, known bool) {
	switch c := content.(type) {
	case transport.Text:
		return c.Body, "chat", "", true
	case transport.Media:
		return c.Caption, c.MediaKind, c.URL, true
	default:
		return "", "", "", false
	}
}

func contentKind(content transport.Content) string {
	if content == nil {
		return "nil"
	}
	return content.Kind()
}

// truncate corta em limite de runa; cortar no meio de um caractere
// multibyte geraria UTF-8 inválido e o postgres rejeitaria o update.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
