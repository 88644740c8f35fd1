package routing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/realtime"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

const (
	consentDefaultMessage = "Para continuarmos o atendimento, precisamos do seu consentimento para o tratamento dos seus dados pessoais."
	consentPrompt         = "*[ 1 ]* - Aceito\n*[ 2 ]* - Não aceito"
)

// beginConsent envia a mensagem de consentimento (com link opcional) e o
// prompt binário, e move o ticket para o estado lgpd.
func (e *Engine) beginConsent(ctx context.Context, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection) error {
	ticket.Status = model.TicketStatusLGPD
	updated, err := e.tickets.Update(ctx, ticket)
	if err != nil {
		return fmt.Errorf("routing: iniciar consentimento: %w", err)
	}
	e.emitTicket(ctx, updated, realtime.ActionUpdate)

	msg := company.LGPDMessage
	if msg == "" {
		msg = consentDefaultMessage
	}
	if company.LGPDLink != "" {
		msg += "\n\n" + company.LGPDLink
	}
	msg += "\n\n" + consentPrompt

	e.sendDebounced(conn, updated, contact, msg)
	return nil
}

// handleConsent interpreta a resposta binária: aceite registra o timestamp
// e segue para o roteamento; recusa fecha e destrói o tracking; qualquer
// outra coisa reconvida até o teto de uso do bot.
func (e *Engine) handleConsent(ctx context.Context, env transport.Envelope, ticket model.Ticket, contact model.Contact, company model.Company, conn model.Connection, body string) error {
	switch strings.TrimSpace(body) {
	case "1":
		now := e.now()
		contact.AcceptedLGPD = &now
		updatedContact, err := e.contacts.Update(ctx, contact)
		if err != nil {
			return fmt.Errorf("routing: registrar consentimento: %w", err)
		}
		ticket.Status = model.TicketStatusPending
		updated, err := e.tickets.Update(ctx, ticket)
		if err != nil {
			return fmt.Errorf("routing: retomar após consentimento: %w", err)
		}
		e.emitTicket(ctx, updated, realtime.ActionUpdate)
		e.log.Info("consentimento aceito",
			zap.String("ticketId", ticket.ID), zap.String("contactId", contact.ID))

		// segue direto para o roteamento normal da conversa
		return e.Handle(ctx, env, updated, updatedContact, company, conn)

	case "2":
		e.log.Info("consentimento recusado", zap.String("ticketId", ticket.ID))
		if err := e.tracking.DeleteByTicket(ctx, ticket.ID); err != nil {
			e.log.Warn("routing: falha ao destruir tracking após recusa",
				zap.String("ticketId", ticket.ID), zap.Error(err))
		}
		ticket.Status = model.TicketStatusClosed
		ticket.IsBotClosed = true
		updated, err := e.tickets.Update(ctx, ticket)
		if err != nil {
			return fmt.Errorf("routing: fechar após recusa: %w", err)
		}
		e.emitTicket(ctx, updated, realtime.ActionUpdate)
		return nil

	default:
		maxUses := company.MaxUseBotQueues
		if maxUses <= 0 {
			maxUses = e.cfg.MaxUseBotQueues
		}
		if ticket.AmountUsedBotQueues >= maxUses {
			// teto atingido: deixa a conversa como está
			return nil
		}
		ticket.AmountUsedBotQueues++
		updated, err := e.tickets.Update(ctx, ticket)
		if err != nil {
			return fmt.Errorf("routing: contabilizar reconvite de consentimento: %w", err)
		}

		msg := company.LGPDMessage
		if msg == "" {
			msg = consentDefaultMessage
		}
		e.sendDebounced(conn, updated, contact, msg+"\n\n"+consentPrompt)
		return nil
	}
}
