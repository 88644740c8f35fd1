package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type integrationRepo struct {
	db *DB
}

func NewIntegrationRepository(db *DB) *integrationRepo {
	return &integrationRepo{db: db}
}

const integrationColumns = `id, company_id, name, type, base_url, api_key, prompt, model,
	max_tokens, temperature, max_messages, typebot_slug, flow_id, webhook_url,
	webhook_secret, delay_ms, created_at, updated_at`

func (r *integrationRepo) GetByID(ctx context.Context, id string) (model.QueueIntegration, error) {
	query := `SELECT ` + integrationColumns + ` FROM queue_integrations WHERE id = $1`

	var i model.QueueIntegration
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&i.ID, &i.CompanyID, &i.Name, &i.Type, &i.BaseURL, &i.APIKey, &i.Prompt, &i.Model,
		&i.MaxTokens, &i.Temperature, &i.MaxMessages, &i.TypebotSlug, &i.FlowID, &i.WebhookURL,
		&i.WebhookSecret, &i.DelayMs, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return model.QueueIntegration{}, translateErr(err)
	}
	return i, nil
}

func (r *integrationRepo) Create(ctx context.Context, integration model.QueueIntegration) (model.QueueIntegration, error) {
	if integration.ID == "" {
		integration.ID = uuid.New().String()
	}
	integration.CreatedAt = time.Now()
	integration.UpdatedAt = integration.CreatedAt

	query := `
		INSERT INTO queue_integrations (` + integrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		integration.ID, integration.CompanyID, integration.Name, integration.Type,
		integration.BaseURL, integration.APIKey, integration.Prompt, integration.Model,
		integration.MaxTokens, integration.Temperature, integration.MaxMessages,
		integration.TypebotSlug, integration.FlowID, integration.WebhookURL,
		integration.WebhookSecret, integration.DelayMs, integration.CreatedAt, integration.UpdatedAt,
	)
	if err != nil {
		return model.QueueIntegration{}, translateErr(err)
	}
	return integration, nil
}
