package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

// Store guarda tudo em mapas protegidos por um RWMutex. Serve de driver
// degradado (sem postgres) e de fake nos testes. As mesmas restrições do
// postgres valem aqui: wid único por company e no máximo um ticket
// open/pending por (contato, conexão).
type Store struct {
	mu           sync.RWMutex
	companies    map[string]model.Company
	connections  map[string]model.Connection
	contacts     map[string]model.Contact
	tickets      map[string]model.Ticket
	trackings    map[string]model.TicketTracking
	messages     map[string]model.Message
	queues       map[string]model.Queue
	integrations map[string]model.QueueIntegration
	ratings      map[string]model.UserRating
	flows        map[string]model.Flow
	envelopeLogs map[string]model.EnvelopeLog
	seq          int64
}

func NewStore() *Store {
	return &Store{
		companies:    make(map[string]model.Company),
		connections:  make(map[string]model.Connection),
		contacts:     make(map[string]model.Contact),
		tickets:      make(map[string]model.Ticket),
		trackings:    make(map[string]model.TicketTracking),
		messages:     make(map[string]model.Message),
		queues:       make(map[string]model.Queue),
		integrations: make(map[string]model.QueueIntegration),
		ratings:      make(map[string]model.UserRating),
		flows:        make(map[string]model.Flow),
		envelopeLogs: make(map[string]model.EnvelopeLog),
	}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

// --- CompanyRepository ---

type CompanyRepo struct{ s *Store }

func NewCompanyRepository(s *Store) *CompanyRepo { return &CompanyRepo{s: s} }

func (r *CompanyRepo) GetByID(ctx context.Context, id string) (model.Company, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.companies[id]
	if !ok {
		return model.Company{}, model.ErrNotFound
	}
	return c, nil
}

func (r *CompanyRepo) Create(ctx context.Context, company model.Company) (model.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	company.ID = newID(company.ID)
	if company.ScheduleType == "" {
		company.ScheduleType = model.ScheduleTypeDisabled
	}
	company.CreatedAt = time.Now()
	company.UpdatedAt = company.CreatedAt
	r.s.companies[company.ID] = company
	return company, nil
}

func (r *CompanyRepo) Update(ctx context.Context, company model.Company) (model.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.companies[company.ID]; !ok {
		return model.Company{}, model.ErrNotFound
	}
	company.UpdatedAt = time.Now()
	r.s.companies[company.ID] = company
	return company, nil
}

// --- ConnectionRepository ---

type ConnectionRepo struct{ s *Store }

func NewConnectionRepository(s *Store) *ConnectionRepo { return &ConnectionRepo{s: s} }

func (r *ConnectionRepo) GetByID(ctx context.Context, id string) (model.Connection, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.connections[id]
	if !ok {
		return model.Connection{}, model.ErrNotFound
	}
	return c, nil
}

func (r *ConnectionRepo) ListByCompany(ctx context.Context, companyID string) ([]model.Connection, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var conns []model.Connection
	for _, c := range r.s.connections {
		if c.CompanyID == companyID {
			conns = append(conns, c)
		}
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].CreatedAt.Before(conns[j].CreatedAt) })
	return conns, nil
}

func (r *ConnectionRepo) Create(ctx context.Context, conn model.Connection) (model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	conn.ID = newID(conn.ID)
	if conn.Status == "" {
		conn.Status = model.ConnectionStatusPending
	}
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt
	r.s.connections[conn.ID] = conn
	return conn, nil
}

func (r *ConnectionRepo) Update(ctx context.Context, conn model.Connection) (model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.connections[conn.ID]; !ok {
		return model.Connection{}, model.ErrNotFound
	}
	conn.UpdatedAt = time.Now()
	r.s.connections[conn.ID] = conn
	return conn, nil
}

func (r *ConnectionRepo) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	conn, ok := r.s.connections[id]
	if !ok {
		return model.ErrNotFound
	}
	conn.Status = status
	conn.UpdatedAt = time.Now()
	r.s.connections[id] = conn
	return nil
}

// --- ContactRepository ---

type ContactRepo struct{ s *Store }

func NewContactRepository(s *Store) *ContactRepo { return &ContactRepo{s: s} }

func (r *ContactRepo) GetByID(ctx context.Context, id string) (model.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.contacts[id]
	if !ok {
		return model.Contact{}, model.ErrNotFound
	}
	return c, nil
}

func (r *ContactRepo) GetByRemoteID(ctx context.Context, companyID, remoteID string) (model.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.contacts {
		if c.CompanyID == companyID && c.RemoteID == remoteID {
			return c, nil
		}
	}
	return model.Contact{}, model.ErrNotFound
}

func (r *ContactRepo) Create(ctx context.Context, contact model.Contact) (model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.contacts {
		if c.CompanyID == contact.CompanyID && c.RemoteID == contact.RemoteID {
			return model.Contact{}, model.ErrConflict
		}
	}
	contact.ID = newID(contact.ID)
	contact.CreatedAt = time.Now()
	contact.UpdatedAt = contact.CreatedAt
	r.s.contacts[contact.ID] = contact
	return contact, nil
}

func (r *ContactRepo) Update(ctx context.Context, contact model.Contact) (model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.contacts[contact.ID]; !ok {
		return model.Contact{}, model.ErrNotFound
	}
	contact.UpdatedAt = time.Now()
	r.s.contacts[contact.ID] = contact
	return contact, nil
}

// --- TicketRepository ---

type TicketRepo struct{ s *Store }

func NewTicketRepository(s *Store) *TicketRepo { return &TicketRepo{s: s} }

func isActive(status model.TicketStatus) bool {
	switch status {
	case model.TicketStatusOpen, model.TicketStatusPending, model.TicketStatusNPS, model.TicketStatusLGPD:
		return true
	}
	return false
}

func (r *TicketRepo) GetByID(ctx context.Context, id string) (model.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return model.Ticket{}, model.ErrNotFound
	}
	return t, nil
}

func (r *TicketRepo) FindOpenByContact(ctx context.Context, contactID, connectionID string) (model.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *model.Ticket
	for _, t := range r.s.tickets {
		t := t
		if t.ContactID == contactID && t.ConnectionID == connectionID && isActive(t.Status) {
			if found == nil || t.CreatedAt.After(found.CreatedAt) {
				found = &t
			}
		}
	}
	if found == nil {
		return model.Ticket{}, model.ErrNotFound
	}
	return *found, nil
}

func (r *TicketRepo) Create(ctx context.Context, ticket model.Ticket) (model.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if isActive(ticket.Status) {
		for _, t := range r.s.tickets {
			if t.ContactID == ticket.ContactID && t.ConnectionID == ticket.ConnectionID && isActive(t.Status) {
				return model.Ticket{}, model.ErrConflict
			}
		}
	}
	ticket.ID = newID(ticket.ID)
	r.s.seq++
	ticket.CreatedAt = time.Now().Add(time.Duration(r.s.seq)) // ordem estável mesmo no mesmo instante
	ticket.UpdatedAt = ticket.CreatedAt
	r.s.tickets[ticket.ID] = ticket
	return ticket, nil
}

func (r *TicketRepo) Update(ctx context.Context, ticket model.Ticket) (model.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[ticket.ID]; !ok {
		return model.Ticket{}, model.ErrNotFound
	}
	ticket.UpdatedAt = time.Now()
	r.s.tickets[ticket.ID] = ticket
	return ticket, nil
}

// --- TicketTrackingRepository ---

type TrackingRepo struct{ s *Store }

func NewTicketTrackingRepository(s *Store) *TrackingRepo { return &TrackingRepo{s: s} }

func (r *TrackingRepo) GetByTicket(ctx context.Context, ticketID string) (model.TicketTracking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *model.TicketTracking
	for _, t := range r.s.trackings {
		t := t
		if t.TicketID == ticketID {
			if found == nil || t.CreatedAt.After(found.CreatedAt) {
				found = &t
			}
		}
	}
	if found == nil {
		return model.TicketTracking{}, model.ErrNotFound
	}
	return *found, nil
}

func (r *TrackingRepo) Create(ctx context.Context, tracking model.TicketTracking) (model.TicketTracking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tracking.ID = newID(tracking.ID)
	tracking.CreatedAt = time.Now()
	tracking.UpdatedAt = tracking.CreatedAt
	r.s.trackings[tracking.ID] = tracking
	return tracking, nil
}

func (r *TrackingRepo) Update(ctx context.Context, tracking model.TicketTracking) (model.TicketTracking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.trackings[tracking.ID]; !ok {
		return model.TicketTracking{}, model.ErrNotFound
	}
	tracking.UpdatedAt = time.Now()
	r.s.trackings[tracking.ID] = tracking
	return tracking, nil
}

func (r *TrackingRepo) DeleteByTicket(ctx context.Context, ticketID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.trackings {
		if t.TicketID == ticketID {
			delete(r.s.trackings, id)
		}
	}
	return nil
}

// --- MessageRepository ---

type MessageRepo struct{ s *Store }

func NewMessageRepository(s *Store) *MessageRepo { return &MessageRepo{s: s} }

func (r *MessageRepo) GetByWID(ctx context.Context, companyID, wid string) (model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.messages {
		if m.CompanyID == companyID && m.WID == wid {
			return m, nil
		}
	}
	return model.Message{}, model.ErrNotFound
}

func (r *MessageRepo) Create(ctx context.Context, msg model.Message) (model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.CompanyID == msg.CompanyID && m.WID == msg.WID {
			return model.Message{}, model.ErrConflict
		}
	}
	msg.ID = newID(msg.ID)
	if msg.Ack == "" {
		msg.Ack = model.AckPending
	}
	r.s.seq++
	msg.CreatedAt = time.Now().Add(time.Duration(r.s.seq))
	msg.UpdatedAt = msg.CreatedAt
	r.s.messages[msg.ID] = msg
	return msg, nil
}

func (r *MessageRepo) Update(ctx context.Context, msg model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[msg.ID]; !ok {
		return model.ErrNotFound
	}
	msg.UpdatedAt = time.Now()
	r.s.messages[msg.ID] = msg
	return nil
}

func (r *MessageRepo) UpdateAckByWID(ctx context.Context, companyID, wid string, ack model.AckStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, m := range r.s.messages {
		if m.CompanyID == companyID && m.WID == wid {
			m.Ack = ack
			m.UpdatedAt = time.Now()
			r.s.messages[id] = m
			return nil
		}
	}
	return model.ErrNotFound
}

func (r *MessageRepo) ListRecentByTicket(ctx context.Context, ticketID string, limit int) ([]model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	var msgs []model.Message
	for _, m := range r.s.messages {
		if m.TicketID == ticketID {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// --- QueueRepository ---

type QueueRepo struct{ s *Store }

func NewQueueRepository(s *Store) *QueueRepo { return &QueueRepo{s: s} }

func (r *QueueRepo) GetByID(ctx context.Context, id string) (model.Queue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q, ok := r.s.queues[id]
	if !ok {
		return model.Queue{}, model.ErrNotFound
	}
	return q, nil
}

func (r *QueueRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Queue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var queues []model.Queue
	for _, id := range ids {
		if q, ok := r.s.queues[id]; ok {
			queues = append(queues, q)
		}
	}
	return queues, nil
}

func (r *QueueRepo) ListByCompany(ctx context.Context, companyID string) ([]model.Queue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var queues []model.Queue
	for _, q := range r.s.queues {
		if q.CompanyID == companyID {
			queues = append(queues, q)
		}
	}
	sort.Slice(queues, func(i, j int) bool { return queues[i].CreatedAt.Before(queues[j].CreatedAt) })
	return queues, nil
}

func (r *QueueRepo) Create(ctx context.Context, queue model.Queue) (model.Queue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	queue.ID = newID(queue.ID)
	r.s.seq++
	queue.CreatedAt = time.Now().Add(time.Duration(r.s.seq))
	queue.UpdatedAt = queue.CreatedAt
	r.s.queues[queue.ID] = queue
	return queue, nil
}

// --- IntegrationRepository ---

type IntegrationRepo struct{ s *Store }

func NewIntegrationRepository(s *Store) *IntegrationRepo { return &IntegrationRepo{s: s} }

func (r *IntegrationRepo) GetByID(ctx context.Context, id string) (model.QueueIntegration, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	i, ok := r.s.integrations[id]
	if !ok {
		return model.QueueIntegration{}, model.ErrNotFound
	}
	return i, nil
}

func (r *IntegrationRepo) Create(ctx context.Context, integration model.QueueIntegration) (model.QueueIntegration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	integration.ID = newID(integration.ID)
	integration.CreatedAt = time.Now()
	integration.UpdatedAt = integration.CreatedAt
	r.s.integrations[integration.ID] = integration
	return integration, nil
}

// --- RatingRepository ---

type RatingRepo struct{ s *Store }

func NewRatingRepository(s *Store) *RatingRepo { return &RatingRepo{s: s} }

func (r *RatingRepo) Create(ctx context.Context, rating model.UserRating) (model.UserRating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rating.ID = newID(rating.ID)
	rating.CreatedAt = time.Now()
	r.s.ratings[rating.ID] = rating
	return rating, nil
}

// ListRatings existe para inspeção nos testes.
func (s *Store) ListRatings() []model.UserRating {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ratings []model.UserRating
	for _, r := range s.ratings {
		ratings = append(ratings, r)
	}
	return ratings
}

// --- FlowRepository ---

type FlowRepo struct{ s *Store }

func NewFlowRepository(s *Store) *FlowRepo { return &FlowRepo{s: s} }

func (r *FlowRepo) GetByID(ctx context.Context, id string) (model.Flow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.flows[id]
	if !ok {
		return model.Flow{}, model.ErrNotFound
	}
	return f, nil
}

func (r *FlowRepo) ListByCompany(ctx context.Context, companyID string) ([]model.Flow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var flows []model.Flow
	for _, f := range r.s.flows {
		if f.CompanyID == companyID {
			flows = append(flows, f)
		}
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].CreatedAt.Before(flows[j].CreatedAt) })
	return flows, nil
}

func (r *FlowRepo) Create(ctx context.Context, flow model.Flow) (model.Flow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	flow.ID = newID(flow.ID)
	r.s.seq++
	flow.CreatedAt = time.Now().Add(time.Duration(r.s.seq))
	flow.UpdatedAt = flow.CreatedAt
	r.s.flows[flow.ID] = flow
	return flow, nil
}

// --- EnvelopeLogRepository ---

type EnvelopeLogRepo struct{ s *Store }

func NewEnvelopeLogRepository(s *Store) *EnvelopeLogRepo { return &EnvelopeLogRepo{s: s} }

func (r *EnvelopeLogRepo) Create(ctx context.Context, log model.EnvelopeLog) (model.EnvelopeLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	log.ID = newID(log.ID)
	log.CreatedAt = time.Now()
	r.s.envelopeLogs[log.ID] = log
	return log, nil
}

func (r *EnvelopeLogRepo) GetByWID(ctx context.Context, companyID, wid string) (model.EnvelopeLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var (
		found  model.EnvelopeLog
		hasOne bool
	)
	for _, log := range r.s.envelopeLogs {
		if log.CompanyID != companyID || log.WID != wid {
			continue
		}
		if !hasOne || log.CreatedAt.After(found.CreatedAt) {
			found = log
			hasOne = true
		}
	}
	if !hasOne {
		return model.EnvelopeLog{}, model.ErrNotFound
	}
	return found, nil
}
