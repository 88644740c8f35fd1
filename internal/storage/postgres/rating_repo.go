package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type ratingRepo struct {
	db *DB
}

func NewRatingRepository(db *DB) *ratingRepo {
	return &ratingRepo{db: db}
}

func (r *ratingRepo) Create(ctx context.Context, rating model.UserRating) (model.UserRating, error) {
	if rating.ID == "" {
		rating.ID = uuid.New().String()
	}
	rating.CreatedAt = time.Now()

	query := `
		INSERT INTO user_ratings (id, ticket_id, company_id, user_id, rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		rating.ID, rating.TicketID, rating.CompanyID, rating.UserID, rating.Rate, rating.CreatedAt,
	)
	if err != nil {
		return model.UserRating{}, translateErr(err)
	}
	return rating, nil
}
