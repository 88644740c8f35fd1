package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type companyRepo struct {
	db *DB
}

func NewCompanyRepository(db *DB) *companyRepo {
	return &companyRepo{db: db}
}

func (r *companyRepo) GetByID(ctx context.Context, id string) (model.Company, error) {
	query := `
		SELECT id, name, schedule_type, schedules, out_of_hours_msg,
		       enable_lgpd, lgpd_message, lgpd_link,
		       max_use_bot_queues, time_use_bot_queues, created_at, updated_at
		FROM companies WHERE id = $1
	`

	var c model.Company
	var schedules []byte
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.ScheduleType, &schedules, &c.OutOfHoursMsg,
		&c.EnableLGPD, &c.LGPDMessage, &c.LGPDLink,
		&c.MaxUseBotQueues, &c.TimeUseBotQueues, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return model.Company{}, translateErr(err)
	}
	if len(schedules) > 0 {
		_ = json.Unmarshal(schedules, &c.Schedules)
	}
	return c, nil
}

func (r *companyRepo) Create(ctx context.Context, company model.Company) (model.Company, error) {
	if company.ID == "" {
		company.ID = uuid.New().String()
	}
	if company.ScheduleType == "" {
		company.ScheduleType = model.ScheduleTypeDisabled
	}
	company.CreatedAt = time.Now()
	company.UpdatedAt = company.CreatedAt

	schedules, err := json.Marshal(company.Schedules)
	if err != nil {
		return model.Company{}, err
	}

	query := `
		INSERT INTO companies (id, name, schedule_type, schedules, out_of_hours_msg,
		                       enable_lgpd, lgpd_message, lgpd_link,
		                       max_use_bot_queues, time_use_bot_queues, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		company.ID, company.Name, company.ScheduleType, schedules, company.OutOfHoursMsg,
		company.EnableLGPD, company.LGPDMessage, company.LGPDLink,
		company.MaxUseBotQueues, company.TimeUseBotQueues, company.CreatedAt, company.UpdatedAt,
	)
	if err != nil {
		return model.Company{}, translateErr(err)
	}
	return company, nil
}

func (r *companyRepo) Update(ctx context.Context, company model.Company) (model.Company, error) {
	company.UpdatedAt = time.Now()

	schedules, err := json.Marshal(company.Schedules)
	if err != nil {
		return model.Company{}, err
	}

	query := `
		UPDATE companies
		SET name = $1, schedule_type = $2, schedules = $3::jsonb, out_of_hours_msg = $4,
		    enable_lgpd = $5, lgpd_message = $6, lgpd_link = $7,
		    max_use_bot_queues = $8, time_use_bot_queues = $9, updated_at = $10
		WHERE id = $11
	`
	_, err = r.db.Pool.Exec(ctx, query,
		company.Name, company.ScheduleType, schedules, company.OutOfHoursMsg,
		company.EnableLGPD, company.LGPDMessage, company.LGPDLink,
		company.MaxUseBotQueues, company.TimeUseBotQueues, company.UpdatedAt, company.ID,
	)
	if err != nil {
		return model.Company{}, translateErr(err)
	}
	return company, nil
}
