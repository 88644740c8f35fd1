package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type queueRepo struct {
	db *DB
}

func NewQueueRepository(db *DB) *queueRepo {
	return &queueRepo{db: db}
}

const queueColumns = `id, company_id, name, greeting, out_of_hours_msg, schedule_type,
	schedules, integration_id, close_ticket, attachment_url, options, created_at, updated_at`

func (r *queueRepo) scan(row interface{ Scan(...any) error }) (model.Queue, error) {
	var q model.Queue
	var schedules, options []byte
	err := row.Scan(
		&q.ID, &q.CompanyID, &q.Name, &q.Greeting, &q.OutOfHoursMsg, &q.ScheduleType,
		&schedules, &q.IntegrationID, &q.CloseTicket, &q.AttachmentURL, &options,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return model.Queue{}, translateErr(err)
	}
	if len(schedules) > 0 {
		_ = json.Unmarshal(schedules, &q.Schedules)
	}
	if len(options) > 0 {
		_ = json.Unmarshal(options, &q.Options)
	}
	return q, nil
}

func (r *queueRepo) GetByID(ctx context.Context, id string) (model.Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM queues WHERE id = $1`
	return r.scan(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *queueRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Queue, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + queueColumns + ` FROM queues WHERE id = ANY($1) ORDER BY array_position($1, id)`
	rows, err := r.db.Pool.Query(ctx, query, ids)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var queues []model.Queue
	for rows.Next() {
		q, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}
	return queues, translateErr(rows.Err())
}

func (r *queueRepo) ListByCompany(ctx context.Context, companyID string) ([]model.Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM queues WHERE company_id = $1 ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var queues []model.Queue
	for rows.Next() {
		q, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}
	return queues, translateErr(rows.Err())
}

func (r *queueRepo) Create(ctx context.Context, queue model.Queue) (model.Queue, error) {
	if queue.ID == "" {
		queue.ID = uuid.New().String()
	}
	queue.CreatedAt = time.Now()
	queue.UpdatedAt = queue.CreatedAt

	schedules, err := json.Marshal(queue.Schedules)
	if err != nil {
		return model.Queue{}, err
	}
	options, err := json.Marshal(queue.Options)
	if err != nil {
		return model.Queue{}, err
	}

	query := `
		INSERT INTO queues (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11::jsonb, $12, $13)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		queue.ID, queue.CompanyID, queue.Name, queue.Greeting, queue.OutOfHoursMsg,
		queue.ScheduleType, schedules, queue.IntegrationID, queue.CloseTicket,
		queue.AttachmentURL, options, queue.CreatedAt, queue.UpdatedAt,
	)
	if err != nil {
		return model.Queue{}, translateErr(err)
	}
	return queue, nil
}
