package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/config"
	"github.com/open-zapdesk/zapdesk/internal/integration"
	"github.com/open-zapdesk/zapdesk/internal/pkg/debounce"
	"github.com/open-zapdesk/zapdesk/internal/realtime"
	"github.com/open-zapdesk/zapdesk/internal/service/hours"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

// Engine é a máquina de estados da conversa: decide entre menu de filas,
// consentimento, avaliação, integração ou silêncio (atendimento humano).
type Engine struct {
	contacts     storage.ContactRepository
	tickets      storage.TicketRepository
	tracking     storage.TicketTrackingRepository
	messages     storage.MessageRepository
	queues       storage.QueueRepository
	integrations storage.IntegrationRepository
	flows        storage.FlowRepository
	ratings      storage.RatingRepository

	gate       *hours.Gate
	dispatcher *integration.Dispatcher
	sender     transport.Sender
	debounce   *debounce.Table
	emitter    realtime.Emitter
	cfg        config.BotConfig
	log        *zap.Logger
	now        func() time.Time
}

type EngineParams struct {
	Contacts     storage.ContactRepository
	Tickets      storage.TicketRepository
	Tracking     storage.TicketTrackingRepository
	Messages     storage.MessageRepository
	Queues       storage.QueueRepository
	Integrations storage.IntegrationRepository
	Flows        storage.FlowRepository
	Ratings      storage.RatingRepository

	Gate       *hours.Gate
	Dispatcher *integration.Dispatcher
	Sender     transport.Sender
	Debounce   *debounce.Table
	Emitter    realtime.Emitter
	Config     config.BotConfig
	Log        *zap.Logger
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		contacts:     p.Contacts,
		tickets:      p.Tickets,
		tracking:     p.Tracking,
		messages:     p.Messages,
		queues:       p.Queues,
		integrations: p.Integrations,
		flows:        p.Flows,
		ratings:      p.Ratings,
		gate:         p.Gate,
		dispatcher:   p.Dispatcher,
		sender:       p.Sender,
		debounce:     p.Debounce,
		emitter:      p.Emitter,
		cfg:          p.Config,
		log:          p.Log,
		now:          time.Now,
	}
}

// Handle processa uma mensagem recebida já persistida e decide a transição.
// Edições de protocolo nunca chegam aqui; são aplicadas direto no histórico.
func (e *Engine) Handle(ctx context.Context, env transport.Envelope, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection) error {
	body := bodyOf(env.Content)

	// mensagens nossas e contatos com bot desativado só atualizam o histórico
	if env.FromMe || contact.DisableBot || ticket.IsGroup {
		return nil
	}

	switch ticket.Status {
	case model.TicketStatusNPS:
		return e.handleRating(ctx, ticket, contact, conn, body)
	case model.TicketStatusLGPD:
		return e.handleConsent(ctx, env, ticket, contact, company, conn, body)
	case model.TicketStatusClosed, model.TicketStatusInterrupted:
		return nil
	}

	// agente humano atendendo: o bot sai do caminho
	if ticket.UserID != "" && ticket.Status == model.TicketStatusOpen {
		return nil
	}

	// consentimento pendente precede qualquer automação
	if company.EnableLGPD && contact.AcceptedLGPD == nil {
		return e.beginConsent(ctx, ticket, contact, company, conn)
	}

	inHours, err := e.gate.Allow(ctx, company, conn, &ticket, contact)
	if err != nil {
		return err
	}
	if !inHours {
		return nil
	}

	if ticket.UseIntegration {
		return e.dispatchIntegration(ctx, ticket, contact, company, conn, body)
	}

	if ticket.QueueID == "" {
		return e.handleUnrouted(ctx, ticket, contact, company, conn, body)
	}
	if ticket.ChatbotQueueID != "" {
		return e.handleSubMenu(ctx, ticket, contact, company, conn, body)
	}

	// roteado e aguardando humano
	return nil
}

// dispatchIntegration delega a rodada ao backend configurado. Um ponteiro de
// retomada de fluxo tem precedência sobre a integração original: o fluxo
// continua de onde parou em vez de a integração recomeçar do zero.
func (e *Engine) dispatchIntegration(ctx context.Context, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection, body string) error {
	var (
		cfg model.QueueIntegration
		err error
	)
	if ticket.FlowWebhookID != "" {
		cfg = model.QueueIntegration{
			ID:        "flow:" + ticket.FlowWebhookID,
			CompanyID: company.ID,
			Type:      model.IntegrationTypeFlowBuilder,
			FlowID:    ticket.FlowWebhookID,
		}
	} else {
		if ticket.IntegrationID == "" {
			e.log.Warn("ticket em modo integração sem integração associada",
				zap.String("ticketId", ticket.ID))
			return nil
		}
		cfg, err = e.integrations.GetByID(ctx, ticket.IntegrationID)
		if err != nil {
			return fmt.Errorf("routing: carregar integração %s: %w", ticket.IntegrationID, err)
		}
	}

	return e.dispatcher.Dispatch(ctx, integration.Request{
		Integration: cfg,
		Company:     company,
		Connection:  conn,
		Ticket:      ticket,
		Contact:     contact,
		Body:        body,
	})
}

// CloseByAgent encerra o ticket sem pedido de avaliação.
func (e *Engine) CloseByAgent(ctx context.Context, ticket model.Ticket) error {
	return e.close(ctx, ticket, false)
}

// close encerra o ticket. O flag botClosed marca encerramentos feitos pelo
// próprio bot (opção Sair), visíveis para o agente.
func (e *Engine) close(ctx context.Context, ticket model.Ticket, botClosed bool) error {
	ticket.Status = model.TicketStatusClosed
	ticket.IsBotClosed = botClosed
	ticket.ChatbotQueueID = ""
	ticket.UseIntegration = false
	updated, err := e.tickets.Update(ctx, ticket)
	if err != nil {
		return fmt.Errorf("routing: fechar ticket: %w", err)
	}

	if tracking, terr := e.tracking.GetByTicket(ctx, ticket.ID); terr == nil {
		now := e.now()
		tracking.FinishedAt = &now
		if _, uerr := e.tracking.Update(ctx, tracking); uerr != nil {
			e.log.Warn("routing: falha ao finalizar tracking",
				zap.String("ticketId", ticket.ID), zap.Error(uerr))
		}
	}

	e.emitTicket(ctx, updated, realtime.ActionUpdate)
	return nil
}

func (e *Engine) emitTicket(ctx context.Context, ticket model.Ticket, action string) {
	err := e.emitter.Emit(ctx, ticket.CompanyID, realtime.Event{
		Name:    realtime.EventTicket,
		Action:  action,
		Payload: ticket,
	})
	if err != nil {
		e.log.Warn("routing: falha ao notificar UI",
			zap.String("ticketId", ticket.ID), zap.Error(err))
	}
}

// sendTracked envia texto ao contato e grava a saída no histórico, para a
// janela de contexto dos backends enxergar os dois lados da conversa.
func (e *Engine) sendTracked(ctx context.Context, conn model.Connection, ticket model.Ticket, contact model.Contact, body string) {
	wid, err := e.sender.SendText(ctx, conn.ID, contact.RemoteID, body)
	if err != nil {
		e.log.Error("routing: falha ao enviar mensagem",
			zap.String("ticketId", ticket.ID), zap.Error(err))
		return
	}
	_, err = e.messages.Create(ctx, model.Message{
		ID:        uuid.NewString(),
		WID:       wid,
		TicketID:  ticket.ID,
		ContactID: contact.ID,
		CompanyID: ticket.CompanyID,
		Body:      body,
		MediaType: "chat",
		Ack:       model.AckSent,
		FromMe:    true,
	})
	if err != nil {
		e.log.Warn("routing: falha ao gravar mensagem enviada",
			zap.String("ticketId", ticket.ID), zap.Error(err))
	}
}

// sendDebounced agenda o envio colapsando disparos rápidos para o mesmo
// ticket em um único envio depois do período quieto.
func (e *Engine) sendDebounced(conn model.Connection, ticket model.Ticket, contact model.Contact, body string) {
	e.debounce.Trigger("send:"+ticket.ID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		e.sendTracked(ctx, conn, ticket, contact, body)
	})
}

func bodyOf(content transport.Content) string {
	switch c := content.(type) {
	case transport.Text:
		return c.Body
	case transport.Media:
		return c.Caption
	default:
		return ""
	}
}
