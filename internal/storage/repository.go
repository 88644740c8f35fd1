package storage

import (
	"context"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

// Os sentinelas são definidos em model para que os drivers não importem
// este pacote; os aliases preservam o uso via storage.ErrNotFound.
var (
	ErrNotFound = model.ErrNotFound
	ErrConflict = model.ErrConflict
)

type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (model.Company, error)
	Create(ctx context.Context, company model.Company) (model.Company, error)
	Update(ctx context.Context, company model.Company) (model.Company, error)
}

type ConnectionRepository interface {
	GetByID(ctx context.Context, id string) (model.Connection, error)
	ListByCompany(ctx context.Context, companyID string) ([]model.Connection, error)
	Create(ctx context.Context, conn model.Connection) (model.Connection, error)
	Update(ctx context.Context, conn model.Connection) (model.Connection, error)
	UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error
}

type ContactRepository interface {
	GetByID(ctx context.Context, id string) (model.Contact, error)
	GetByRemoteID(ctx context.Context, companyID, remoteID string) (model.Contact, error)
	Create(ctx context.Context, contact model.Contact) (model.Contact, error)
	Update(ctx context.Context, contact model.Contact) (model.Contact, error)
}

type TicketRepository interface {
	GetByID(ctx context.Context, id string) (model.Ticket, error)
	// FindOpenByContact devolve o ticket open/pending/nps/lgpd corrente
	// para (contato, conexão), ou ErrNotFound.
	FindOpenByContact(ctx context.Context, contactID, connectionID string) (model.Ticket, error)
	Create(ctx context.Context, ticket model.Ticket) (model.Ticket, error)
	Update(ctx context.Context, ticket model.Ticket) (model.Ticket, error)
}

type TicketTrackingRepository interface {
	GetByTicket(ctx context.Context, ticketID string) (model.TicketTracking, error)
	Create(ctx context.Context, tracking model.TicketTracking) (model.TicketTracking, error)
	Update(ctx context.Context, tracking model.TicketTracking) (model.TicketTracking, error)
	DeleteByTicket(ctx context.Context, ticketID string) error
}

type MessageRepository interface {
	GetByWID(ctx context.Context, companyID, wid string) (model.Message, error)
	Create(ctx context.Context, msg model.Message) (model.Message, error)
	Update(ctx context.Context, msg model.Message) error
	UpdateAckByWID(ctx context.Context, companyID, wid string, ack model.AckStatus) error
	// ListRecentByTicket devolve as últimas N mensagens em ordem cronológica,
	// usadas como janela de contexto do backend generativo.
	ListRecentByTicket(ctx context.Context, ticketID string, limit int) ([]model.Message, error)
}

type QueueRepository interface {
	GetByID(ctx context.Context, id string) (model.Queue, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Queue, error)
	ListByCompany(ctx context.Context, companyID string) ([]model.Queue, error)
	Create(ctx context.Context, queue model.Queue) (model.Queue, error)
}

type IntegrationRepository interface {
	GetByID(ctx context.Context, id string) (model.QueueIntegration, error)
	Create(ctx context.Context, integration model.QueueIntegration) (model.QueueIntegration, error)
}

type RatingRepository interface {
	Create(ctx context.Context, rating model.UserRating) (model.UserRating, error)
}

type FlowRepository interface {
	GetByID(ctx context.Context, id string) (model.Flow, error)
	ListByCompany(ctx context.Context, companyID string) ([]model.Flow, error)
	Create(ctx context.Context, flow model.Flow) (model.Flow, error)
}

type EnvelopeLogRepository interface {
	Create(ctx context.Context, log model.EnvelopeLog) (model.EnvelopeLog, error)
	// GetByWID devolve a cópia bruta mais recente do envelope; é de onde o
	// worker re-busca o payload referenciado pelo job.
	GetByWID(ctx context.Context, companyID, wid string) (model.EnvelopeLog, error)
}
