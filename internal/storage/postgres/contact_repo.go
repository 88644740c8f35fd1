package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type contactRepo struct {
	db *DB
}

func NewContactRepository(db *DB) *contactRepo {
	return &contactRepo{db: db}
}

const contactColumns = `id, remote_id, name, company_id, is_group, disable_bot, lgpd_accepted_at, created_at, updated_at`

func (r *contactRepo) scan(row interface{ Scan(...any) error }) (model.Contact, error) {
	var c model.Contact
	err := row.Scan(&c.ID, &c.RemoteID, &c.Name, &c.CompanyID, &c.IsGroup, &c.DisableBot, &c.AcceptedLGPD, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Contact{}, translateErr(err)
	}
	return c, nil
}

func (r *contactRepo) GetByID(ctx context.Context, id string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	return r.scan(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *contactRepo) GetByRemoteID(ctx context.Context, companyID, remoteID string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE company_id = $1 AND remote_id = $2`
	return r.scan(r.db.Pool.QueryRow(ctx, query, companyID, remoteID))
}

func (r *contactRepo) Create(ctx context.Context, contact model.Contact) (model.Contact, error) {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	contact.CreatedAt = time.Now()
	contact.UpdatedAt = contact.CreatedAt

	query := `
		INSERT INTO contacts (` + contactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		contact.ID, contact.RemoteID, contact.Name, contact.CompanyID,
		contact.IsGroup, contact.DisableBot, contact.AcceptedLGPD,
		contact.CreatedAt, contact.UpdatedAt,
	)
	if err != nil {
		return model.Contact{}, translateErr(err)
	}
	return contact, nil
}

func (r *contactRepo) Update(ctx context.Context, contact model.Contact) (model.Contact, error) {
	contact.UpdatedAt = time.Now()

	query := `
		UPDATE contacts
		SET name = $1, disable_bot = $2, lgpd_accepted_at = $3, updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.Pool.Exec(ctx, query,
		contact.Name, contact.DisableBot, contact.AcceptedLGPD, contact.UpdatedAt, contact.ID,
	)
	if err != nil {
		return model.Contact{}, translateErr(err)
	}
	return contact, nil
}
