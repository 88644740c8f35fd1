package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type messageRepo struct {
	db *DB
}

func NewMessageRepository(db *DB) *messageRepo {
	return &messageRepo{db: db}
}

const messageColumns = `id, wid, ticket_id, contact_id, company_id, body, media_type, media_url,
	ack, from_me, is_edited, is_deleted, quoted_wid, created_at, updated_at`

func (r *messageRepo) scan(row interface{ Scan(...any) error }) (model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID, &m.WID, &m.TicketID, &m.ContactID, &m.CompanyID, &m.Body, &m.MediaType, &m.MediaURL,
		&m.Ack, &m.FromMe, &m.IsEdited, &m.IsDeleted, &m.QuotedWID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return model.Message{}, translateErr(err)
	}
	return m, nil
}

func (r *messageRepo) GetByWID(ctx context.Context, companyID, wid string) (model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE company_id = $1 AND wid = $2`
	return r.scan(r.db.Pool.QueryRow(ctx, query, companyID, wid))
}

func (r *messageRepo) Create(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Ack == "" {
		msg.Ack = model.AckPending
	}
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt

	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		msg.ID, msg.WID, msg.TicketID, msg.ContactID, msg.CompanyID, msg.Body,
		msg.MediaType, msg.MediaURL, msg.Ack, msg.FromMe, msg.IsEdited, msg.IsDeleted,
		msg.QuotedWID, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		return model.Message{}, translateErr(err)
	}
	return msg, nil
}

func (r *messageRepo) Update(ctx context.Context, msg model.Message) error {
	msg.UpdatedAt = time.Now()

	query := `
		UPDATE messages
		SET body = $1, ack = $2, is_edited = $3, is_deleted = $4, updated_at = $5
		WHERE id = $6
	`
	_, err := r.db.Pool.Exec(ctx, query,
		msg.Body, msg.Ack, msg.IsEdited, msg.IsDeleted, msg.UpdatedAt, msg.ID,
	)
	return translateErr(err)
}

func (r *messageRepo) UpdateAckByWID(ctx context.Context, companyID, wid string, ack model.AckStatus) error {
	query := `
		UPDATE messages
		SET ack = $1, updated_at = NOW()
		WHERE company_id = $2 AND wid = $3
	`
	_, err := r.db.Pool.Exec(ctx, query, ack, companyID, wid)
	return translateErr(err)
}

func (r *messageRepo) ListRecentByTicket(ctx context.Context, ticketID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT ` + messageColumns + `
		FROM (
			SELECT ` + messageColumns + `
			FROM messages
			WHERE ticket_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, ticketID, limit)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, translateErr(rows.Err())
}
