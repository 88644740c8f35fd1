package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/config"
	"github.com/open-zapdesk/zapdesk/internal/storage/memory"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	seq  int
}

func (f *fakeSender) SendText(ctx context.Context, connectionID, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.sent = append(f.sent, body)
	return fmt.Sprintf("wid-out-%d", f.seq), nil
}

func (f *fakeSender) SendAttachment(ctx context.Context, connectionID, to, url, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("wid-out-%d", f.seq), nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// stubBackend devolve um resultado fixo, erro ou pânico conforme configurado.
type stubBackend struct {
	kind   model.IntegrationType
	result Result
	err    error
	panics bool
}

func (b *stubBackend) Type() model.IntegrationType { return b.kind }

func (b *stubBackend) Handle(ctx context.Context, req Request) (Result, error) {
	if b.panics {
		panic("backend explodiu")
	}
	return b.result, b.err
}

type dispatcherFixture struct {
	store  *memory.Store
	sender *fakeSender
	ticket model.Ticket
}

func newDispatcherFixture(t *testing.T, backends ...Backend) (*Dispatcher, *dispatcherFixture) {
	t.Helper()
	store := memory.NewStore()
	sender := &fakeSender{}

	ticket, err := memory.NewTicketRepository(store).Create(context.Background(), model.Ticket{
		Status:         model.TicketStatusPending,
		CompanyID:      "company1",
		ContactID:      "contact1",
		ConnectionID:   "conn1",
		UseIntegration: true,
		IntegrationID:  "int1",
	})
	require.NoError(t, err)

	d := NewDispatcher(
		memory.NewTicketRepository(store),
		memory.NewMessageRepository(store),
		sender,
		config.IntegrationConfig{TimeoutSeconds: 2},
		zap.NewNop(),
		backends...,
	)
	return d, &dispatcherFixture{store: store, sender: sender, ticket: ticket}
}

func (fx *dispatcherFixture) request(kind model.IntegrationType) Request {
	return Request{
		Integration: model.QueueIntegration{ID: "int1", CompanyID: "company1", Type: kind},
		Company:     model.Company{ID: "company1"},
		Connection:  model.Connection{ID: "conn1"},
		Ticket:      fx.ticket,
		Contact:     model.Contact{ID: "contact1", RemoteID: "5511999990000"},
		Body:        "oi",
	}
}

func (fx *dispatcherFixture) currentTicket(t *testing.T) model.Ticket {
	t.Helper()
	ticket, err := memory.NewTicketRepository(fx.store).GetByID(context.Background(), fx.ticket.ID)
	require.NoError(t, err)
	return ticket
}

func TestDispatchSendsAndPersistsReplies(t *testing.T) {
	backend := &stubBackend{
		kind:   model.IntegrationTypeOpenAI,
		result: Result{Replies: []string{"Olá!", "Como posso ajudar?"}},
	}
	d, fx := newDispatcherFixture(t, backend)

	require.NoError(t, d.Dispatch(context.Background(), fx.request(model.IntegrationTypeOpenAI)))

	assert.Equal(t, []string{"Olá!", "Como posso ajudar?"}, fx.sender.messages())

	// as respostas entram no histórico como FromMe para a janela de contexto
	history, err := memory.NewMessageRepository(fx.store).ListRecentByTicket(context.Background(), fx.ticket.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, msg := range history {
		assert.True(t, msg.FromMe)
		assert.Equal(t, model.AckSent, msg.Ack)
	}

	// sem transferência nem done o ticket continua em modo integração
	assert.True(t, fx.currentTicket(t).UseIntegration)
}

func TestDispatchFailingBackendSendsNeutralMessage(t *testing.T) {
	backend := &stubBackend{kind: model.IntegrationTypeOpenAI, err: errors.New("api fora do ar")}
	d, fx := newDispatcherFixture(t, backend)

	require.NoError(t, d.Dispatch(context.Background(), fx.request(model.IntegrationTypeOpenAI)))

	sent := fx.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, FailureMessage, sent[0])

	// a conversa segue em modo integração para a próxima tentativa
	ticket := fx.currentTicket(t)
	assert.True(t, ticket.UseIntegration)
	assert.Equal(t, "int1", ticket.IntegrationID)
}

func TestDispatchContainsBackendPanic(t *testing.T) {
	backend := &stubBackend{kind: model.IntegrationTypeWebhook, panics: true}
	d, fx := newDispatcherFixture(t, backend)

	require.NotPanics(t, func() {
		require.NoError(t, d.Dispatch(context.Background(), fx.request(model.IntegrationTypeWebhook)))
	})
	assert.Equal(t, []string{FailureMessage}, fx.sender.messages())
}

func TestDispatchMissingBackendSendsNeutralMessage(t *testing.T) {
	d, fx := newDispatcherFixture(t) // nenhum backend registrado

	require.NoError(t, d.Dispatch(context.Background(), fx.request(model.IntegrationTypeTypebot)))
	assert.Equal(t, []string{FailureMessage}, fx.sender.messages())
}

func TestDispatchTransferHandsOffToQueue(t *testing.T) {
	backend := &stubBackend{
		kind:   model.IntegrationTypeTypebot,
		result: Result{Replies: []string{"Transferindo você para o time."}, TransferQueueID: "queue7"},
	}
	d, fx := newDispatcherFixture(t, backend)

	require.NoError(t, d.Dispatch(context.Background(), fx.request(model.IntegrationTypeTypebot)))

	ticket := fx.currentTicket(t)
	assert.Equal(t, "queue7", ticket.QueueID)
	assert.False(t, ticket.UseIntegration)
	assert.Empty(t, ticket.IntegrationID)
	assert.Equal(t, model.TicketStatusPending, ticket.Status)
}

func TestDispatchDoneTurnsIntegrationOff(t *testing.T) {
	backend := &stubBackend{
		kind:   model.IntegrationTypeFlowBuilder,
		result: Result{Replies: []string{"Até logo!"}, Done: true},
	}
	d, fx := newDispatcherFixture(t, backend)

	require.NoError(t, d.Dispatch(context.Background(), fx.request(model.IntegrationTypeFlowBuilder)))

	ticket := fx.currentTicket(t)
	assert.False(t, ticket.UseIntegration)
	assert.Empty(t, ticket.IntegrationID)
	assert.Empty(t, ticket.QueueID)
}

func TestDispatchPersistsFlowPause(t *testing.T) {
	backend := &stubBackend{
		kind:   model.IntegrationTypeFlowBuilder,
		result: Result{Replies: []string{"Qual seu CPF?"}, FlowStoppedAt: "node42"},
	}
	d, fx := newDispatcherFixture(t, backend)

	require.NoError(t, d.Dispatch(context.Background(), fx.request(model.IntegrationTypeFlowBuilder)))

	ticket := fx.currentTicket(t)
	assert.Equal(t, "node42", ticket.FlowStoppedAt)
	assert.True(t, ticket.UseIntegration)
}

func TestPickQueue(t *testing.T) {
	queues := []model.Queue{
		{ID: "q1", Name: "Vendas"},
		{ID: "q2", Name: "Suporte Técnico"},
	}

	got, ok := PickQueue(queues, "suporte técnico")
	require.True(t, ok)
	assert.Equal(t, "q2", got.ID)

	// match parcial
	got, ok = PickQueue(queues, "suporte")
	require.True(t, ok)
	assert.Equal(t, "q2", got.ID)

	// nome desconhecido cai na primeira fila
	got, ok = PickQueue(queues, "jurídico")
	require.True(t, ok)
	assert.Equal(t, "q1", got.ID)

	_, ok = PickQueue(nil, "vendas")
	assert.False(t, ok)
}

func TestDispatchDefaultDelayBetweenReplies(t *testing.T) {
	backend := &stubBackend{
		kind:   model.IntegrationTypeWebhook,
		result: Result{Replies: []string{"primeira", "segunda"}},
	}
	store := memory.NewStore()
	sender := &fakeSender{}
	ticket, err := memory.NewTicketRepository(store).Create(context.Background(), model.Ticket{
		Status:         model.TicketStatusPending,
		CompanyID:      "company1",
		ContactID:      "contact1",
		ConnectionID:   "conn1",
		UseIntegration: true,
		IntegrationID:  "int1",
	})
	require.NoError(t, err)

	// sem DelayMs na integração, vale o padrão do servidor
	d := NewDispatcher(
		memory.NewTicketRepository(store),
		memory.NewMessageRepository(store),
		sender,
		config.IntegrationConfig{TimeoutSeconds: 2, WebhookDelayMs: 40},
		zap.NewNop(),
		backend,
	)

	req := Request{
		Integration: model.QueueIntegration{ID: "int1", CompanyID: "company1", Type: model.IntegrationTypeWebhook},
		Company:     model.Company{ID: "company1"},
		Connection:  model.Connection{ID: "conn1"},
		Ticket:      ticket,
		Contact:     model.Contact{ID: "contact1", RemoteID: "5511999990000"},
		Body:        "oi",
	}

	start := time.Now()
	require.NoError(t, d.Dispatch(context.Background(), req))
	elapsed := time.Since(start)

	assert.Equal(t, []string{"primeira", "segunda"}, sender.messages())
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond, "a pausa padrão separa respostas consecutivas")
}
