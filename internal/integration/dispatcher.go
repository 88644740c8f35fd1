package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/config"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

// Dispatcher roteia a rodada para o backend do tipo configurado e aplica a
// decisão ao ticket. Falha de backend nunca escapa: o contato recebe uma
// mensagem neutra e a conversa segue em modo integração.
type Dispatcher struct {
	backends map[model.IntegrationType]Backend
	tickets  storage.TicketRepository
	messages storage.MessageRepository
	sender   transport.Sender
	timeout  time.Duration
	// pausa entre respostas consecutivas quando a integração não define a sua
	replyDelay time.Duration
	log        *zap.Logger
}

func NewDispatcher(
	tickets storage.TicketRepository,
	messages storage.MessageRepository,
	sender transport.Sender,
	cfg config.IntegrationConfig,
	log *zap.Logger,
	backends ...Backend,
) *Dispatcher {
	byType := make(map[model.IntegrationType]Backend, len(backends))
	for _, b := range backends {
		byType[b.Type()] = b
	}
	return &Dispatcher{
		backends: byType,
		tickets:  tickets,
		messages: messages,
		sender:     sender,
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		replyDelay: time.Duration(cfg.WebhookDelayMs) * time.Millisecond,
		log:        log,
	}
}

// Dispatch executa uma rodada. O erro de retorno cobre apenas falhas de
// persistência; erros do backend são contidos aqui dentro.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	backend, ok := d.backends[req.Integration.Type]
	if !ok {
		d.log.Error("integração com tipo sem backend registrado",
			zap.String("integrationId", req.Integration.ID),
			zap.String("type", string(req.Integration.Type)))
		d.sendNeutralFailure(ctx, req)
		return nil
	}

	res, err := d.run(ctx, backend, req)
	if err != nil {
		d.log.Error("backend de integração falhou",
			zap.String("integrationId", req.Integration.ID),
			zap.String("type", string(req.Integration.Type)),
			zap.String("ticketId", req.Ticket.ID),
			zap.Error(err))
		d.sendNeutralFailure(ctx, req)
		return nil
	}

	d.sendReplies(ctx, req, res.Replies)
	return d.applyResult(ctx, req, res)
}

// run aplica o timeout e converte pânico do backend em erro.
func (d *Dispatcher) run(ctx context.Context, backend Backend, req Request) (res Result, err error) {
	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return backend.Handle(runCtx, req)
}

func (d *Dispatcher) sendReplies(ctx context.Context, req Request, replies []string) {
	delay := time.Duration(req.Integration.DelayMs) * time.Millisecond
	if delay == 0 {
		delay = d.replyDelay
	}
	for i, body := range replies {
		if body == "" {
			continue
		}
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		wid, err := d.sender.SendText(ctx, req.Connection.ID, req.Contact.RemoteID, body)
		if err != nil {
			d.log.Error("integração: falha ao enviar resposta",
				zap.String("ticketId", req.Ticket.ID), zap.Error(err))
			continue
		}
		// a resposta do backend também entra no histórico: é o lado
		// "assistant" da janela de contexto
		_, err = d.messages.Create(ctx, model.Message{
			ID:        uuid.NewString(),
			WID:       wid,
			TicketID:  req.Ticket.ID,
			ContactID: req.Contact.ID,
			CompanyID: req.Company.ID,
			Body:      body,
			MediaType: "chat",
			Ack:       model.AckSent,
			FromMe:    true,
		})
		if err != nil {
			d.log.Warn("integração: falha ao gravar resposta enviada",
				zap.String("ticketId", req.Ticket.ID), zap.Error(err))
		}
	}
}

func (d *Dispatcher) applyResult(ctx context.Context, req Request, res Result) error {
	ticket := req.Ticket
	changed := false

	switch {
	case res.TransferQueueID != "":
		ticket.QueueID = res.TransferQueueID
		ticket.UseIntegration = false
		ticket.IntegrationID = ""
		ticket.FlowStoppedAt = ""
		ticket.FlowWebhookID = ""
		ticket.Status = model.TicketStatusPending
		changed = true
		d.log.Info("integração transferiu para fila",
			zap.String("ticketId", ticket.ID), zap.String("queueId", res.TransferQueueID))
	case res.Done:
		ticket.UseIntegration = false
		ticket.IntegrationID = ""
		ticket.FlowStoppedAt = ""
		ticket.FlowWebhookID = ""
		changed = true
	default:
		if res.FlowStoppedAt != "" && res.FlowStoppedAt != ticket.FlowStoppedAt {
			ticket.FlowStoppedAt = res.FlowStoppedAt
			changed = true
		}
		if res.ResumeFlowID != "" && res.ResumeFlowID != ticket.FlowWebhookID {
			ticket.FlowWebhookID = res.ResumeFlowID
			changed = true
		}
	}

	if !changed {
		return nil
	}
	if _, err := d.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) sendNeutralFailure(ctx context.Context, req Request) {
	if _, err := d.sender.SendText(ctx, req.Connection.ID, req.Contact.RemoteID, FailureMessage); err != nil {
		d.log.Error("integração: falha ao enviar mensagem neutra",
			zap.String("ticketId", req.Ticket.ID), zap.Error(err))
	}
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("integration: backend panic: %v", e.value)
}
