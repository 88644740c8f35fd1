package routing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/realtime"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

const (
	ratingPrompt = "Avalie o nosso atendimento respondendo com uma nota de *0* a *10*."
	ratingThanks = "Obrigado pela sua avaliação! 🙏"
)

// BeginRating move o ticket para o estado de avaliação depois que o agente
// encerra o atendimento, e envia o convite de nota.
func (e *Engine) BeginRating(ctx context.Context, ticket model.Ticket, contact model.Contact, conn model.Connection) error {
	ticket.Status = model.TicketStatusNPS
	ticket.AmountUsedBotQueuesNPS = 0
	updated, err := e.tickets.Update(ctx, ticket)
	if err != nil {
		return fmt.Errorf("routing: iniciar avaliação: %w", err)
	}

	if tracking, terr := e.tracking.GetByTicket(ctx, ticket.ID); terr == nil {
		now := e.now()
		tracking.ClosedAt = &now
		tracking.UserID = ticket.UserID
		if _, uerr := e.tracking.Update(ctx, tracking); uerr != nil {
			e.log.Warn("routing: falha ao marcar closedAt",
				zap.String("ticketId", ticket.ID), zap.Error(uerr))
		}
	}

	e.emitTicket(ctx, updated, realtime.ActionUpdate)
	e.sendTracked(ctx, conn, updated, contact, ratingPrompt)
	return nil
}

// handleRating interpreta a resposta do contato em estado de avaliação.
// Nota fora de [0,10] é grampeada; resposta não numérica reconvida até o
// teto de tentativas e depois desiste em silêncio.
func (e *Engine) handleRating(ctx context.Context, ticket model.Ticket, contact model.Contact, conn model.Connection, body string) error {
	rate, ok := parseRating(body)
	if !ok {
		ticket.AmountUsedBotQueuesNPS++
		updated, err := e.tickets.Update(ctx, ticket)
		if err != nil {
			return fmt.Errorf("routing: contabilizar tentativa de avaliação: %w", err)
		}
		if updated.AmountUsedBotQueuesNPS >= e.cfg.MaxNPSAttempts {
			// desiste em silêncio
			return e.finishRating(ctx, updated, false)
		}
		e.sendDebounced(conn, updated, contact, ratingPrompt)
		return nil
	}

	if _, err := e.ratings.Create(ctx, model.UserRating{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		CompanyID: ticket.CompanyID,
		UserID:    ticket.UserID,
		Rate:      rate,
	}); err != nil {
		return fmt.Errorf("routing: gravar avaliação: %w", err)
	}
	e.log.Info("avaliação registrada",
		zap.String("ticketId", ticket.ID), zap.Int("rate", rate))

	e.sendTracked(ctx, conn, ticket, contact, ratingThanks)
	return e.finishRating(ctx, ticket, true)
}

func (e *Engine) finishRating(ctx context.Context, ticket model.Ticket, rated bool) error {
	ticket.Status = model.TicketStatusClosed
	updated, err := e.tickets.Update(ctx, ticket)
	if err != nil {
		return fmt.Errorf("routing: encerrar avaliação: %w", err)
	}

	if tracking, terr := e.tracking.GetByTicket(ctx, ticket.ID); terr == nil {
		now := e.now()
		if rated {
			tracking.RatingAt = &now
		}
		tracking.FinishedAt = &now
		if _, uerr := e.tracking.Update(ctx, tracking); uerr != nil {
			e.log.Warn("routing: falha ao finalizar tracking de avaliação",
				zap.String("ticketId", ticket.ID), zap.Error(uerr))
		}
	}

	e.emitTicket(ctx, updated, realtime.ActionUpdate)
	return nil
}

// parseRating extrai a nota e grampeia em [0,10].
func parseRating(body string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return 0, false
	}
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return n, true
}
