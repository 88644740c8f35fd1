package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type envelopeLogRepo struct {
	db *DB
}

func NewEnvelopeLogRepository(db *DB) *envelopeLogRepo {
	return &envelopeLogRepo{db: db}
}

func (r *envelopeLogRepo) Create(ctx context.Context, log model.EnvelopeLog) (model.EnvelopeLog, error) {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.CreatedAt = time.Now()

	query := `
		INSERT INTO envelope_logs (id, company_id, connection_id, wid, payload, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		log.ID, log.CompanyID, log.ConnectionID, log.WID, log.Payload, log.CreatedAt,
	)
	if err != nil {
		return model.EnvelopeLog{}, translateErr(err)
	}
	return log, nil
}

func (r *envelopeLogRepo) GetByWID(ctx context.Context, companyID, wid string) (model.EnvelopeLog, error) {
	query := `
		SELECT id, company_id, connection_id, wid, payload, created_at
		FROM envelope_logs
		WHERE company_id = $1 AND wid = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var log model.EnvelopeLog
	err := r.db.Pool.QueryRow(ctx, query, companyID, wid).Scan(
		&log.ID, &log.CompanyID, &log.ConnectionID, &log.WID, &log.Payload, &log.CreatedAt,
	)
	if err != nil {
		return model.EnvelopeLog{}, translateErr(err)
	}
	return log, nil
}
