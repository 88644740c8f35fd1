package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type trackingRepo struct {
	db *DB
}

func NewTicketTrackingRepository(db *DB) *trackingRepo {
	return &trackingRepo{db: db}
}

const trackingColumns = `id, ticket_id, company_id, user_id, chatbot_at, rating_at, closed_at, finished_at, created_at, updated_at`

func (r *trackingRepo) GetByTicket(ctx context.Context, ticketID string) (model.TicketTracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM ticket_trackings WHERE ticket_id = $1 ORDER BY created_at DESC LIMIT 1`

	var t model.TicketTracking
	err := r.db.Pool.QueryRow(ctx, query, ticketID).Scan(
		&t.ID, &t.TicketID, &t.CompanyID, &t.UserID,
		&t.ChatbotAt, &t.RatingAt, &t.ClosedAt, &t.FinishedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return model.TicketTracking{}, translateErr(err)
	}
	return t, nil
}

func (r *trackingRepo) Create(ctx context.Context, tracking model.TicketTracking) (model.TicketTracking, error) {
	if tracking.ID == "" {
		tracking.ID = uuid.New().String()
	}
	tracking.CreatedAt = time.Now()
	tracking.UpdatedAt = tracking.CreatedAt

	query := `
		INSERT INTO ticket_trackings (` + trackingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		tracking.ID, tracking.TicketID, tracking.CompanyID, tracking.UserID,
		tracking.ChatbotAt, tracking.RatingAt, tracking.ClosedAt, tracking.FinishedAt,
		tracking.CreatedAt, tracking.UpdatedAt,
	)
	if err != nil {
		return model.TicketTracking{}, translateErr(err)
	}
	return tracking, nil
}

func (r *trackingRepo) Update(ctx context.Context, tracking model.TicketTracking) (model.TicketTracking, error) {
	tracking.UpdatedAt = time.Now()

	query := `
		UPDATE ticket_trackings
		SET user_id = $1, chatbot_at = $2, rating_at = $3, closed_at = $4,
		    finished_at = $5, updated_at = $6
		WHERE id = $7
	`
	_, err := r.db.Pool.Exec(ctx, query,
		tracking.UserID, tracking.ChatbotAt, tracking.RatingAt, tracking.ClosedAt,
		tracking.FinishedAt, tracking.UpdatedAt, tracking.ID,
	)
	if err != nil {
		return model.TicketTracking{}, translateErr(err)
	}
	return tracking, nil
}

func (r *trackingRepo) DeleteByTicket(ctx context.Context, ticketID string) error {
	query := `DELETE FROM ticket_trackings WHERE ticket_id = $1`
	_, err := r.db.Pool.Exec(ctx, query, ticketID)
	return translateErr(err)
}
