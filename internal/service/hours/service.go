package hours

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/config"
	"github.com/open-zapdesk/zapdesk/internal/pkg/cache"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

// DefaultOutOfHoursMsg é usada quando nenhuma fonte configurou mensagem própria.
const DefaultOutOfHoursMsg = "Estamos fora do horário de atendimento. Assim que possível retornaremos o seu contato."

// Gate decide se a conversa pode seguir para o bot/fila neste instante e
// cuida da resposta de fora-de-horário com supressão por cooldown.
type Gate struct {
	queues  storage.QueueRepository
	tickets storage.TicketRepository
	cache   cache.Cache
	sender  transport.Sender
	cfg     config.BotConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewGate(
	queues storage.QueueRepository,
	tickets storage.TicketRepository,
	c cache.Cache,
	sender transport.Sender,
	cfg config.BotConfig,
	log *zap.Logger,
) *Gate {
	return &Gate{
		queues:  queues,
		tickets: tickets,
		cache:   c,
		sender:  sender,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Allow devolve true quando a conversa está dentro do horário de atendimento.
// Fora do horário envia a mensagem configurada no máximo uma vez por janela
// de cooldown e marca o ticket como IsOutOfHour.
func (g *Gate) Allow(ctx context.Context, company model.Company, conn model.Connection, ticket *model.Ticket, contact model.Contact) (bool, error) {
	schedules, msg, err := g.resolveSource(ctx, company, conn, *ticket)
	if err != nil {
		return false, err
	}
	if schedules == nil {
		// verificação desabilitada
		return true, nil
	}

	if InActivity(schedules, g.now()) {
		if ticket.IsOutOfHour {
			ticket.IsOutOfHour = false
			if _, err := g.tickets.Update(ctx, *ticket); err != nil {
				return true, fmt.Errorf("hours: limpar isOutOfHour: %w", err)
			}
		}
		return true, nil
	}

	ticket.IsOutOfHour = true
	if _, err := g.tickets.Update(ctx, *ticket); err != nil {
		return false, fmt.Errorf("hours: marcar isOutOfHour: %w", err)
	}

	cooldown := time.Duration(company.TimeUseBotQueues) * time.Minute
	if cooldown <= 0 {
		cooldown = time.Duration(g.cfg.TimeUseBotQueues) * time.Minute
	}
	key := fmt.Sprintf("outofhours:%s", ticket.ID)
	first, err := g.cache.AddOnce(ctx, key, cooldown)
	if err != nil {
		g.log.Warn("hours: cache indisponível, enviando aviso mesmo assim",
			zap.String("ticketId", ticket.ID), zap.Error(err))
		first = true
	}
	if !first {
		return false, nil
	}

	if msg == "" {
		msg = DefaultOutOfHoursMsg
	}
	if _, err := g.sender.SendText(ctx, conn.ID, contact.RemoteID, msg); err != nil {
		g.log.Error("hours: falha ao enviar aviso de fora de horário",
			zap.String("ticketId", ticket.ID), zap.Error(err))
	}
	return false, nil
}

// resolveSource escolhe a tabela semanal e a mensagem conforme o escopo
// configurado na empresa. Devolve schedules nil quando a checagem está
// desabilitada ou a fonte escolhida não tem tabela.
func (g *Gate) resolveSource(ctx context.Context, company model.Company, conn model.Connection, ticket model.Ticket) ([]model.Schedule, string, error) {
	switch company.ScheduleType {
	case model.ScheduleTypeCompany:
		return company.Schedules, company.OutOfHoursMsg, nil
	case model.ScheduleTypeQueue:
		if ticket.QueueID == "" {
			// antes da seleção de fila não há fonte; não bloqueia
			return nil, "", nil
		}
		queue, err := g.queues.GetByID(ctx, ticket.QueueID)
		if err != nil {
			return nil, "", fmt.Errorf("hours: carregar fila %s: %w", ticket.QueueID, err)
		}
		msg := queue.OutOfHoursMsg
		if msg == "" {
			msg = company.OutOfHoursMsg
		}
		return queue.Schedules, msg, nil
	case model.ScheduleTypeConnection:
		msg := conn.OutOfHoursMsg
		if msg == "" {
			msg = company.OutOfHoursMsg
		}
		return conn.Schedules, msg, nil
	default:
		return nil, "", nil
	}
}
