package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type flowRepo struct {
	db *DB
}

func NewFlowRepository(db *DB) *flowRepo {
	return &flowRepo{db: db}
}

func (r *flowRepo) scan(row interface{ Scan(...any) error }) (model.Flow, error) {
	var f model.Flow
	var nodes, edges, phrases []byte
	err := row.Scan(&f.ID, &f.CompanyID, &f.Name, &nodes, &edges, &phrases, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return model.Flow{}, translateErr(err)
	}
	if len(nodes) > 0 {
		_ = json.Unmarshal(nodes, &f.Nodes)
	}
	if len(edges) > 0 {
		_ = json.Unmarshal(edges, &f.Edges)
	}
	if len(phrases) > 0 {
		_ = json.Unmarshal(phrases, &f.TriggerPhrases)
	}
	return f, nil
}

func (r *flowRepo) GetByID(ctx context.Context, id string) (model.Flow, error) {
	query := `SELECT id, company_id, name, nodes, edges, trigger_phrases, created_at, updated_at FROM flows WHERE id = $1`
	return r.scan(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *flowRepo) ListByCompany(ctx context.Context, companyID string) ([]model.Flow, error) {
	query := `SELECT id, company_id, name, nodes, edges, trigger_phrases, created_at, updated_at
		FROM flows WHERE company_id = $1 ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var flows []model.Flow
	for rows.Next() {
		f, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, translateErr(rows.Err())
}

func (r *flowRepo) Create(ctx context.Context, flow model.Flow) (model.Flow, error) {
	if flow.ID == "" {
		flow.ID = uuid.New().String()
	}
	flow.CreatedAt = time.Now()
	flow.UpdatedAt = flow.CreatedAt

	nodes, err := json.Marshal(flow.Nodes)
	if err != nil {
		return model.Flow{}, err
	}
	edges, err := json.Marshal(flow.Edges)
	if err != nil {
		return model.Flow{}, err
	}
	phrases, err := json.Marshal(flow.TriggerPhrases)
	if err != nil {
		return model.Flow{}, err
	}

	query := `
		INSERT INTO flows (id, company_id, name, nodes, edges, trigger_phrases, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7, $8)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		flow.ID, flow.CompanyID, flow.Name, nodes, edges, phrases, flow.CreatedAt, flow.UpdatedAt,
	)
	if err != nil {
		return model.Flow{}, translateErr(err)
	}
	return flow, nil
}
