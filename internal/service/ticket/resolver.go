package ticket

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

// Resolver materializa contato e ticket para cada envelope recebido.
// A seção lookup-or-create roda sob lock por conversa; a restrição de
// unicidade do storage é a última linha de defesa contra corrida entre nós.
type Resolver struct {
	contacts storage.ContactRepository
	tickets  storage.TicketRepository
	tracking storage.TicketTrackingRepository
	locker   storage.Locker
	log      *zap.Logger
}

func NewResolver(
	contacts storage.ContactRepository,
	tickets storage.TicketRepository,
	tracking storage.TicketTrackingRepository,
	locker storage.Locker,
	log *zap.Logger,
) *Resolver {
	return &Resolver{
		contacts: contacts,
		tickets:  tickets,
		tracking: tracking,
		locker:   locker,
		log:      log,
	}
}

// ResolveContact devolve o contato da conversa, criando-o se necessário.
// Em grupos a identidade da conversa é o grupo, não o remetente.
func (r *Resolver) ResolveContact(ctx context.Context, env transport.Envelope) (model.Contact, error) {
	remoteID := env.RemoteID
	name := env.SenderName
	if env.IsGroup {
		remoteID = env.GroupID
		name = env.GroupName
	}
	if name == "" {
		name = remoteID
	}

	contact, err := r.contacts.GetByRemoteID(ctx, env.CompanyID, remoteID)
	if errors.Is(err, storage.ErrNotFound) {
		contact, err = r.contacts.Create(ctx, model.Contact{
			ID:        uuid.NewString(),
			RemoteID:  remoteID,
			Name:      name,
			CompanyID: env.CompanyID,
			IsGroup:   env.IsGroup,
		})
		if errors.Is(err, storage.ErrConflict) {
			// outro worker criou primeiro
			return r.contacts.GetByRemoteID(ctx, env.CompanyID, remoteID)
		}
		return contact, err
	}
	if err != nil {
		return model.Contact{}, fmt.Errorf("ticket: resolver contato: %w", err)
	}

	if name != "" && name != remoteID && contact.Name != name {
		contact.Name = name
		if updated, uerr := r.contacts.Update(ctx, contact); uerr == nil {
			contact = updated
		} else {
			r.log.Warn("ticket: falha ao atualizar nome do contato",
				zap.String("contactId", contact.ID), zap.Error(uerr))
		}
	}
	return contact, nil
}

// FindOrCreate devolve o ticket ativo da conversa, criando um novo quando
// não existe. Criado é true apenas quando o ticket acabou de nascer.
func (r *Resolver) FindOrCreate(ctx context.Context, env transport.Envelope, contact model.Contact) (model.Ticket, bool, error) {
	var (
		result  model.Ticket
		created bool
	)

	key := fmt.Sprintf("lock:ticket:%s:%s:%s", env.CompanyID, contact.ID, env.ConnectionID)
	err := r.locker.WithLock(ctx, key, func() error {
		existing, err := r.tickets.FindOpenByContact(ctx, contact.ID, env.ConnectionID)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("ticket: buscar ticket ativo: %w", err)
		}

		result, err = r.createWithTracking(ctx, env, contact)
		if errors.Is(err, storage.ErrConflict) {
			// corrida entre nós: o índice do storage rejeitou o segundo
			// ticket, então o vencedor já está lá. Uma releitura basta.
			result, err = r.tickets.FindOpenByContact(ctx, contact.ID, env.ConnectionID)
			return err
		}
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return model.Ticket{}, false, err
	}
	return result, created, nil
}

func (r *Resolver) createWithTracking(ctx context.Context, env transport.Envelope, contact model.Contact) (model.Ticket, error) {
	ticket, err := r.tickets.Create(ctx, model.Ticket{
		ID:           uuid.NewString(),
		Status:       model.TicketStatusPending,
		CompanyID:    env.CompanyID,
		ContactID:    contact.ID,
		ConnectionID: env.ConnectionID,
		IsGroup:      contact.IsGroup,
		FromMe:       env.FromMe,
	})
	if err != nil {
		return model.Ticket{}, err
	}

	if _, err := r.tracking.Create(ctx, model.TicketTracking{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		CompanyID: env.CompanyID,
	}); err != nil {
		r.log.Error("ticket: falha ao criar tracking",
			zap.String("ticketId", ticket.ID), zap.Error(err))
	}

	r.log.Info("ticket criado",
		zap.String("ticketId", ticket.ID),
		zap.String("contactId", contact.ID),
		zap.String("connectionId", env.ConnectionID))
	return ticket, nil
}
