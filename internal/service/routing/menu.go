package routing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/realtime"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

const exitOption = "sair"

// handleUnrouted cobre a conversa antes da escolha de fila: primeiro toque
// apresenta o menu (ou roteia direto); toques seguintes interpretam a
// resposta como seleção 1-based.
func (e *Engine) handleUnrouted(ctx context.Context, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection, body string) error {
	tracking, err := e.tracking.GetByTicket(ctx, ticket.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("routing: carregar tracking: %w", err)
	}

	menuPresented := err == nil && tracking.ChatbotAt != nil
	if !menuPresented {
		return e.firstTouch(ctx, ticket, contact, company, conn, body)
	}

	queues, err := e.queues.ListByIDs(ctx, conn.QueueIDs)
	if err != nil {
		return fmt.Errorf("routing: carregar filas: %w", err)
	}

	choice := strings.TrimSpace(body)
	if strings.EqualFold(choice, exitOption) {
		return e.close(ctx, ticket, true)
	}
	if n, ok := parseSelection(choice, len(queues)); ok {
		return e.chooseQueue(ctx, ticket, contact, company, conn, queues[n-1])
	}

	// fora do intervalo ou não numérico: sem seleção; reapresenta até o teto
	return e.presentMenu(ctx, ticket, contact, company, conn, queues)
}

// firstTouch decide o destino de uma conversa recém-criada.
func (e *Engine) firstTouch(ctx context.Context, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection, body string) error {
	if handled, err := e.tryPhraseFlow(ctx, ticket, contact, company, conn, body); handled || err != nil {
		return err
	}

	if conn.IntegrationID != "" {
		return e.startIntegration(ctx, ticket, contact, company, conn, conn.IntegrationID, body)
	}

	queues, err := e.queues.ListByIDs(ctx, conn.QueueIDs)
	if err != nil {
		return fmt.Errorf("routing: carregar filas: %w", err)
	}

	switch {
	case len(queues) == 0:
		// conexão sem filas: fica pendente para triagem manual
		return nil
	case len(queues) == 1 && len(queues[0].Options) == 0 && queues[0].IntegrationID == "":
		// fila única sem chatbot: roteia sem mostrar menu
		if conn.Greeting != "" {
			e.sendDebounced(conn, ticket, contact, conn.Greeting)
		}
		return e.chooseQueue(ctx, ticket, contact, company, conn, queues[0])
	default:
		return e.presentMenu(ctx, ticket, contact, company, conn, queues)
	}
}

// presentMenu envia (com debounce) o menu numerado de filas e registra o
// momento em que o chatbot assumiu. Respeita o teto de reapresentações.
func (e *Engine) presentMenu(ctx context.Context, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection, queues []model.Queue) error {
	maxUses := company.MaxUseBotQueues
	if maxUses <= 0 {
		maxUses = e.cfg.MaxUseBotQueues
	}
	if ticket.AmountUsedBotQueues >= maxUses {
		e.log.Debug("routing: teto de reapresentações do menu atingido",
			zap.String("ticketId", ticket.ID))
		return nil
	}

	ticket.AmountUsedBotQueues++
	updated, err := e.tickets.Update(ctx, ticket)
	if err != nil {
		return fmt.Errorf("routing: contabilizar uso do menu: %w", err)
	}

	if err := e.markChatbot(ctx, ticket.ID); err != nil {
		return err
	}

	var sb strings.Builder
	if conn.Greeting != "" {
		sb.WriteString(conn.Greeting)
		sb.WriteString("\n\n")
	}
	for i, q := range queues {
		fmt.Fprintf(&sb, "*[ %d ]* - %s\n", i+1, q.Name)
	}
	sb.WriteString("*[ Sair ]* - Encerrar atendimento")

	e.sendDebounced(conn, updated, contact, sb.String())
	return nil
}

// chooseQueue finaliza a seleção: integração de fila, sub-menu ou roteamento
// direto com saudação e anexo opcionais.
func (e *Engine) chooseQueue(ctx context.Context, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection, queue model.Queue) error {
	ticket.QueueID = queue.ID

	// o horário da fila escolhida pode estar fechado mesmo com a empresa aberta
	if company.ScheduleType == model.ScheduleTypeQueue {
		inHours, err := e.gate.Allow(ctx, company, conn, &ticket, contact)
		if err != nil {
			return err
		}
		if !inHours {
			if _, uerr := e.tickets.Update(ctx, ticket); uerr != nil {
				return fmt.Errorf("routing: atribuir fila: %w", uerr)
			}
			return nil
		}
	}

	if queue.IntegrationID != "" {
		ticket.ChatbotQueueID = ""
		return e.startIntegration(ctx, ticket, contact, company, conn, queue.IntegrationID, "")
	}

	if len(queue.Options) > 0 {
		ticket.ChatbotQueueID = queue.ID
		updated, err := e.tickets.Update(ctx, ticket)
		if err != nil {
			return fmt.Errorf("routing: apresentar sub-menu: %w", err)
		}
		e.emitTicket(ctx, updated, realtime.ActionUpdate)
		e.sendDebounced(conn, updated, contact, buildSubMenu(queue))
		return nil
	}

	return e.finalizeQueue(ctx, ticket, contact, conn, queue)
}

// handleSubMenu interpreta a resposta ao sub-menu de uma fila (um nível só).
func (e *Engine) handleSubMenu(ctx context.Context, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection, body string) error {
	queue, err := e.queues.GetByID(ctx, ticket.ChatbotQueueID)
	if err != nil {
		return fmt.Errorf("routing: carregar fila do sub-menu: %w", err)
	}

	choice := strings.TrimSpace(body)
	if strings.EqualFold(choice, exitOption) {
		return e.close(ctx, ticket, true)
	}
	if option, ok := pickOption(queue.Options, choice); ok {
		ticket.ChatbotQueueID = ""
		if option.Message != "" {
			e.sendDebounced(conn, ticket, contact, option.Message)
		}
		return e.finalizeQueue(ctx, ticket, contact, conn, queue)
	}

	// reapresenta o sub-menu até o teto
	maxUses := company.MaxUseBotQueues
	if maxUses <= 0 {
		maxUses = e.cfg.MaxUseBotQueues
	}
	if ticket.AmountUsedBotQueues >= maxUses {
		return nil
	}
	ticket.AmountUsedBotQueues++
	updated, err := e.tickets.Update(ctx, ticket)
	if err != nil {
		return fmt.Errorf("routing: contabilizar uso do sub-menu: %w", err)
	}
	e.sendDebounced(conn, updated, contact, buildSubMenu(queue))
	return nil
}

// finalizeQueue grava o roteamento e emite os efeitos da fila: saudação,
// anexo e fechamento-no-contato quando configurado.
func (e *Engine) finalizeQueue(ctx context.Context, ticket model.Ticket, contact model.Contact, conn model.Connection, queue model.Queue) error {
	ticket.QueueID = queue.ID
	ticket.Status = model.TicketStatusPending
	updated, err := e.tickets.Update(ctx, ticket)
	if err != nil {
		return fmt.Errorf("routing: rotear para fila: %w", err)
	}
	e.emitTicket(ctx, updated, realtime.ActionUpdate)
	e.log.Info("ticket roteado para fila",
		zap.String("ticketId", ticket.ID), zap.String("queueId", queue.ID))

	if queue.Greeting != "" {
		e.sendDebounced(conn, updated, contact, queue.Greeting)
	}
	if queue.AttachmentURL != "" {
		if _, err := e.sender.SendAttachment(ctx, conn.ID, contact.RemoteID, queue.AttachmentURL, ""); err != nil {
			e.log.Error("routing: falha ao enviar anexo da fila",
				zap.String("ticketId", ticket.ID), zap.Error(err))
		}
	}

	if queue.CloseTicket {
		return e.close(ctx, updated, true)
	}
	return nil
}

// startIntegration liga o modo integração no ticket e já despacha a rodada.
func (e *Engine) startIntegration(ctx context.Context, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection, integrationID, body string) error {
	ticket.UseIntegration = true
	ticket.IntegrationID = integrationID
	updated, err := e.tickets.Update(ctx, ticket)
	if err != nil {
		return fmt.Errorf("routing: ligar modo integração: %w", err)
	}
	if err := e.markChatbot(ctx, ticket.ID); err != nil {
		return err
	}
	e.emitTicket(ctx, updated, realtime.ActionUpdate)
	return e.dispatchIntegration(ctx, updated, contact, company, conn, body)
}

// tryPhraseFlow procura, na ordem da lista, um fluxo cuja frase-gatilho
// aparece no corpo; o primeiro match vence e assume a conversa.
func (e *Engine) tryPhraseFlow(ctx context.Context, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection, body string) (bool, error) {
	text := strings.ToLower(strings.TrimSpace(body))
	if text == "" {
		return false, nil
	}

	flows, err := e.flows.ListByCompany(ctx, company.ID)
	if err != nil {
		return false, fmt.Errorf("routing: carregar fluxos: %w", err)
	}

	for _, flow := range flows {
		for _, phrase := range flow.TriggerPhrases {
			p := strings.ToLower(strings.TrimSpace(phrase))
			if p == "" || !strings.Contains(text, p) {
				continue
			}
			ticket.UseIntegration = true
			ticket.FlowWebhookID = flow.ID
			updated, uerr := e.tickets.Update(ctx, ticket)
			if uerr != nil {
				return false, fmt.Errorf("routing: ligar fluxo por frase: %w", uerr)
			}
			if merr := e.markChatbot(ctx, ticket.ID); merr != nil {
				return false, merr
			}
			e.log.Info("fluxo disparado por frase",
				zap.String("ticketId", ticket.ID),
				zap.String("flowId", flow.ID),
				zap.String("phrase", phrase))
			return true, e.dispatchIntegration(ctx, updated, contact, company, conn, body)
		}
	}
	return false, nil
}

// markChatbot registra o instante em que o bot assumiu a conversa.
func (e *Engine) markChatbot(ctx context.Context, ticketID string) error {
	tracking, err := e.tracking.GetByTicket(ctx, ticketID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("routing: carregar tracking: %w", err)
	}
	if tracking.ChatbotAt != nil {
		return nil
	}
	now := e.now()
	tracking.ChatbotAt = &now
	if _, err := e.tracking.Update(ctx, tracking); err != nil {
		return fmt.Errorf("routing: marcar chatbotAt: %w", err)
	}
	return nil
}

func buildSubMenu(queue model.Queue) string {
	var sb strings.Builder
	for _, opt := range queue.Options {
		fmt.Fprintf(&sb, "*[ %d ]* - %s\n", opt.Position, opt.Title)
	}
	sb.WriteString("*[ Sair ]* - Encerrar atendimento")
	return sb.String()
}

// pickOption resolve a seleção pelo Position declarado da opção, que é o
// número mostrado no sub-menu.
func pickOption(options []model.QueueOption, body string) (model.QueueOption, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return model.QueueOption{}, false
	}
	for _, opt := range options {
		if opt.Position == n {
			return opt, true
		}
	}
	return model.QueueOption{}, false
}

// parseSelection valida uma seleção 1-based dentro do tamanho do menu.
func parseSelection(body string, size int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || n < 1 || n > size {
		return 0, false
	}
	return n, true
}
