package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type ticketRepo struct {
	db *DB
}

func NewTicketRepository(db *DB) *ticketRepo {
	return &ticketRepo{db: db}
}

const ticketColumns = `id, status, company_id, contact_id, connection_id, queue_id, user_id,
	integration_id, use_integration, chatbot_queue_id, flow_webhook_id, flow_stopped_at,
	is_group, is_bot_closed, is_out_of_hour, from_me, last_message,
	amount_used_bot_queues, amount_used_bot_queues_nps, created_at, updated_at`

func (r *ticketRepo) scan(row interface{ Scan(...any) error }) (model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(
		&t.ID, &t.Status, &t.CompanyID, &t.ContactID, &t.ConnectionID, &t.QueueID, &t.UserID,
		&t.IntegrationID, &t.UseIntegration, &t.ChatbotQueueID, &t.FlowWebhookID, &t.FlowStoppedAt,
		&t.IsGroup, &t.IsBotClosed, &t.IsOutOfHour, &t.FromMe, &t.LastMessage,
		&t.AmountUsedBotQueues, &t.AmountUsedBotQueuesNPS, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return model.Ticket{}, translateErr(err)
	}
	return t, nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	return r.scan(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *ticketRepo) FindOpenByContact(ctx context.Context, contactID, connectionID string) (model.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE contact_id = $1 AND connection_id = $2
		  AND status IN ('open', 'pending', 'nps', 'lgpd')
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scan(r.db.Pool.QueryRow(ctx, query, contactID, connectionID))
}

func (r *ticketRepo) Create(ctx context.Context, ticket model.Ticket) (model.Ticket, error) {
	if ticket.ID == "" {
		ticket.ID = uuid.New().String()
	}
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt

	// o índice parcial único em (contact_id, connection_id) para status
	// open/pending transforma corridas de criação em ErrConflict
	query := `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		ticket.ID, ticket.Status, ticket.CompanyID, ticket.ContactID, ticket.ConnectionID,
		ticket.QueueID, ticket.UserID, ticket.IntegrationID, ticket.UseIntegration,
		ticket.ChatbotQueueID, ticket.FlowWebhookID, ticket.FlowStoppedAt,
		ticket.IsGroup, ticket.IsBotClosed, ticket.IsOutOfHour, ticket.FromMe, ticket.LastMessage,
		ticket.AmountUsedBotQueues, ticket.AmountUsedBotQueuesNPS, ticket.CreatedAt, ticket.UpdatedAt,
	)
	if err != nil {
		return model.Ticket{}, translateErr(err)
	}
	return ticket, nil
}

func (r *ticketRepo) Update(ctx context.Context, ticket model.Ticket) (model.Ticket, error) {
	ticket.UpdatedAt = time.Now()

	query := `
		UPDATE tickets
		SET status = $1, queue_id = $2, user_id = $3, integration_id = $4,
		    use_integration = $5, chatbot_queue_id = $6, flow_webhook_id = $7,
		    flow_stopped_at = $8, is_bot_closed = $9, is_out_of_hour = $10,
		    last_message = $11, amount_used_bot_queues = $12,
		    amount_used_bot_queues_nps = $13, updated_at = $14
		WHERE id = $15
	`
	_, err := r.db.Pool.Exec(ctx, query,
		ticket.Status, ticket.QueueID, ticket.UserID, ticket.IntegrationID,
		ticket.UseIntegration, ticket.ChatbotQueueID, ticket.FlowWebhookID,
		ticket.FlowStoppedAt, ticket.IsBotClosed, ticket.IsOutOfHour,
		ticket.LastMessage, ticket.AmountUsedBotQueues,
		ticket.AmountUsedBotQueuesNPS, ticket.UpdatedAt, ticket.ID,
	)
	if err != nil {
		return model.Ticket{}, translateErr(err)
	}
	return ticket, nil
}
