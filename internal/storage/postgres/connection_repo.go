package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type connectionRepo struct {
	db *DB
}

func NewConnectionRepository(db *DB) *connectionRepo {
	return &connectionRepo{db: db}
}

const connectionColumns = `id, name, company_id, status, jid, greeting, queue_ids,
	integration_id, schedule_type, schedules, out_of_hours_msg, session_blob, created_at, updated_at`

func (r *connectionRepo) scan(row interface{ Scan(...any) error }) (model.Connection, error) {
	var c model.Connection
	var queueIDs, schedules []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.CompanyID, &c.Status, &c.JID, &c.Greeting, &queueIDs,
		&c.IntegrationID, &c.ScheduleType, &schedules, &c.OutOfHoursMsg, &c.SessionBlob,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return model.Connection{}, translateErr(err)
	}
	if len(queueIDs) > 0 {
		_ = json.Unmarshal(queueIDs, &c.QueueIDs)
	}
	if len(schedules) > 0 {
		_ = json.Unmarshal(schedules, &c.Schedules)
	}
	return c, nil
}

func (r *connectionRepo) GetByID(ctx context.Context, id string) (model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	return r.scan(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *connectionRepo) ListByCompany(ctx context.Context, companyID string) ([]model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE company_id = $1 ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var conns []model.Connection
	for rows.Next() {
		conn, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, translateErr(rows.Err())
}

func (r *connectionRepo) Create(ctx context.Context, conn model.Connection) (model.Connection, error) {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	if conn.Status == "" {
		conn.Status = model.ConnectionStatusPending
	}
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt

	queueIDs, err := json.Marshal(conn.QueueIDs)
	if err != nil {
		return model.Connection{}, err
	}
	schedules, err := json.Marshal(conn.Schedules)
	if err != nil {
		return model.Connection{}, err
	}

	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10::jsonb, $11, $12, $13, $14)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		conn.ID, conn.Name, conn.CompanyID, conn.Status, conn.JID, conn.Greeting, queueIDs,
		conn.IntegrationID, conn.ScheduleType, schedules, conn.OutOfHoursMsg, conn.SessionBlob,
		conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		return model.Connection{}, translateErr(err)
	}
	return conn, nil
}

func (r *connectionRepo) Update(ctx context.Context, conn model.Connection) (model.Connection, error) {
	conn.UpdatedAt = time.Now()

	queueIDs, err := json.Marshal(conn.QueueIDs)
	if err != nil {
		return model.Connection{}, err
	}
	schedules, err := json.Marshal(conn.Schedules)
	if err != nil {
		return model.Connection{}, err
	}

	query := `
		UPDATE connections
		SET name = $1, status = $2, jid = $3, greeting = $4, queue_ids = $5::jsonb,
		    integration_id = $6, schedule_type = $7, schedules = $8::jsonb,
		    out_of_hours_msg = $9, session_blob = $10, updated_at = $11
		WHERE id = $12
	`
	_, err = r.db.Pool.Exec(ctx, query,
		conn.Name, conn.Status, conn.JID, conn.Greeting, queueIDs,
		conn.IntegrationID, conn.ScheduleType, schedules,
		conn.OutOfHoursMsg, conn.SessionBlob, conn.UpdatedAt, conn.ID,
	)
	if err != nil {
		return model.Connection{}, translateErr(err)
	}
	return conn, nil
}

func (r *connectionRepo) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error {
	query := `UPDATE connections SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Pool.Exec(ctx, query, status, id)
	return translateErr(err)
}
