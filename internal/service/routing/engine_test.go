package routing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/config"
	"github.com/open-zapdesk/zapdesk/internal/integration"
	"github.com/open-zapdesk/zapdesk/internal/integration/flowbuilder"
	cache_memory "github.com/open-zapdesk/zapdesk/internal/pkg/cache/memory"
	"github.com/open-zapdesk/zapdesk/internal/pkg/debounce"
	"github.com/open-zapdesk/zapdesk/internal/realtime"
	"github.com/open-zapdesk/zapdesk/internal/service/hours"
	"github.com/open-zapdesk/zapdesk/internal/storage/memory"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
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
	f.sent = append(f.sent, "attachment:"+url)
	return fmt.Sprintf("wid-out-%d", f.seq), nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type engineFixture struct {
	engine  *Engine
	store   *memory.Store
	sender  *fakeSender
	emitter *realtime.MemoryEmitter
	company model.Company
	conn    model.Connection
	contact model.Contact
	ticket  model.Ticket
}

// newEngineFixture monta o motor com storage em memória, sender fake e
// debounce curto. As filas passadas já entram vinculadas à conexão.
func newEngineFixture(t *testing.T, queues ...model.Queue) *engineFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	sender := &fakeSender{}
	emitter := realtime.NewMemoryEmitter()

	company, err := memory.NewCompanyRepository(store).Create(ctx, model.Company{
		Name:             "Acme",
		MaxUseBotQueues:  3,
		TimeUseBotQueues: 15,
	})
	require.NoError(t, err)

	queueRepo := memory.NewQueueRepository(store)
	var queueIDs []string
	for _, q := range queues {
		q.CompanyID = company.ID
		created, err := queueRepo.Create(ctx, q)
		require.NoError(t, err)
		queueIDs = append(queueIDs, created.ID)
	}

	conn, err := memory.NewConnectionRepository(store).Create(ctx, model.Connection{
		Name:      "principal",
		CompanyID: company.ID,
		QueueIDs:  queueIDs,
	})
	require.NoError(t, err)

	contact, err := memory.NewContactRepository(store).Create(ctx, model.Contact{
		RemoteID:  "5511999990000",
		Name:      "Maria",
		CompanyID: company.ID,
	})
	require.NoError(t, err)

	ticket, err := memory.NewTicketRepository(store).Create(ctx, model.Ticket{
		Status:       model.TicketStatusPending,
		CompanyID:    company.ID,
		ContactID:    contact.ID,
		ConnectionID: conn.ID,
	})
	require.NoError(t, err)

	_, err = memory.NewTicketTrackingRepository(store).Create(ctx, model.TicketTracking{
		TicketID:  ticket.ID,
		CompanyID: company.ID,
	})
	require.NoError(t, err)

	log := zap.NewNop()
	cfg := config.BotConfig{MaxNPSAttempts: 3, MaxUseBotQueues: 3, TimeUseBotQueues: 15}
	tickets := memory.NewTicketRepository(store)
	messages := memory.NewMessageRepository(store)

	table := debounce.NewTable(time.Millisecond)
	t.Cleanup(table.Stop)

	gate := hours.NewGate(queueRepo, tickets, cache_memory.NewCache(time.Minute), sender, cfg, log)
	dispatcher := integration.NewDispatcher(
		tickets,
		messages,
		sender,
		config.IntegrationConfig{TimeoutSeconds: 5},
		log,
		flowbuilder.New(memory.NewFlowRepository(store), log),
	)

	engine := NewEngine(EngineParams{
		Contacts:     memory.NewContactRepository(store),
		Tickets:      tickets,
		Tracking:     memory.NewTicketTrackingRepository(store),
		Messages:     messages,
		Queues:       queueRepo,
		Integrations: memory.NewIntegrationRepository(store),
		Flows:        memory.NewFlowRepository(store),
		Ratings:      memory.NewRatingRepository(store),
		Gate:         gate,
		Dispatcher:   dispatcher,
		Sender:       sender,
		Debounce:     table,
		Emitter:      emitter,
		Config:       cfg,
		Log:          log,
	})

	return &engineFixture{
		engine:  engine,
		store:   store,
		sender:  sender,
		emitter: emitter,
		company: company,
		conn:    conn,
		contact: contact,
		ticket:  ticket,
	}
}

var widSeq int

// handle injeta uma mensagem de texto do contato, sempre com o estado mais
// recente de ticket e contato.
func (fx *engineFixture) handle(t *testing.T, body string) {
	t.Helper()
	ctx := context.Background()

	ticket, err := memory.NewTicketRepository(fx.store).GetByID(ctx, fx.ticket.ID)
	require.NoError(t, err)
	contact, err := memory.NewContactRepository(fx.store).GetByID(ctx, fx.contact.ID)
	require.NoError(t, err)

	widSeq++
	env := transport.Envelope{
		WID:          fmt.Sprintf("wid-in-%d", widSeq),
		CompanyID:    fx.company.ID,
		ConnectionID: fx.conn.ID,
		RemoteID:     contact.RemoteID,
		Timestamp:    time.Now(),
		Content:      transport.Text{Body: body},
	}
	require.NoError(t, fx.engine.Handle(ctx, env, ticket, contact, fx.company, fx.conn))
}

// waitSends espera os envios agendados pelo debounce dispararem.
func (fx *engineFixture) waitSends() {
	time.Sleep(60 * time.Millisecond)
}

func (fx *engineFixture) currentTicket(t *testing.T) model.Ticket {
	t.Helper()
	ticket, err := memory.NewTicketRepository(fx.store).GetByID(context.Background(), fx.ticket.ID)
	require.NoError(t, err)
	return ticket
}

func (fx *engineFixture) currentTracking(t *testing.T) (model.TicketTracking, error) {
	t.Helper()
	return memory.NewTicketTrackingRepository(fx.store).GetByTicket(context.Background(), fx.ticket.ID)
}

func twoQueues() []model.Queue {
	return []model.Queue{
		{Name: "Vendas", Greeting: "Você está falando com Vendas."},
		{Name: "Suporte", Greeting: "Você está falando com Suporte."},
	}
}

func TestFirstTouchPresentsMenu(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)

	fx.handle(t, "oi")
	fx.waitSends()

	sent := fx.sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "*[ 1 ]* - Vendas")
	assert.Contains(t, sent[0], "*[ 2 ]* - Suporte")
	assert.Contains(t, sent[0], "*[ Sair ]* - Encerrar atendimento")

	ticket := fx.currentTicket(t)
	assert.Equal(t, 1, ticket.AmountUsedBotQueues)
	assert.Empty(t, ticket.QueueID)

	tracking, err := fx.currentTracking(t)
	require.NoError(t, err)
	assert.NotNil(t, tracking.ChatbotAt, "apresentar o menu marca o chatbot como ativo")
}

func TestMenuSelectionRoutesToQueue(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)

	fx.handle(t, "oi")
	fx.waitSends()

	fx.handle(t, "2")
	fx.waitSends()

	ticket := fx.currentTicket(t)
	assert.NotEmpty(t, ticket.QueueID)
	assert.Equal(t, model.TicketStatusPending, ticket.Status)

	queue, err := memory.NewQueueRepository(fx.store).GetByID(context.Background(), ticket.QueueID)
	require.NoError(t, err)
	assert.Equal(t, "Suporte", queue.Name)

	sent := fx.sender.messages()
	assert.Contains(t, sent, "Você está falando com Suporte.")
}

func TestMenuInvalidSelectionRepresentsUpToCap(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)

	fx.handle(t, "oi") // 1ª apresentação
	fx.waitSends()
	fx.handle(t, "9") // fora do intervalo: 2ª apresentação
	fx.waitSends()
	fx.handle(t, "banana") // 3ª apresentação, atinge o teto
	fx.waitSends()

	before := len(fx.sender.messages())
	assert.Equal(t, 3, before)
	assert.Equal(t, 3, fx.currentTicket(t).AmountUsedBotQueues)

	// teto atingido: mais uma resposta inválida não reapresenta
	fx.handle(t, "9")
	fx.waitSends()
	assert.Len(t, fx.sender.messages(), before)
	assert.Empty(t, fx.currentTicket(t).QueueID)
}

func TestMenuExitClosesTicket(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)

	fx.handle(t, "oi")
	fx.waitSends()
	fx.handle(t, "Sair")

	ticket := fx.currentTicket(t)
	assert.Equal(t, model.TicketStatusClosed, ticket.Status)
	assert.True(t, ticket.IsBotClosed)

	tracking, err := fx.currentTracking(t)
	require.NoError(t, err)
	assert.NotNil(t, tracking.FinishedAt)
}

func TestSingleQueueRoutesWithoutMenu(t *testing.T) {
	fx := newEngineFixture(t, model.Queue{Name: "Geral", Greeting: "Bem-vindo!"})

	fx.handle(t, "oi")
	fx.waitSends()

	ticket := fx.currentTicket(t)
	assert.NotEmpty(t, ticket.QueueID)
	sent := fx.sender.messages()
	assert.Contains(t, sent, "Bem-vindo!")
	for _, msg := range sent {
		assert.NotContains(t, msg, "*[ 1 ]*", "fila única não apresenta menu")
	}
}

func TestSubMenuOptionRoutes(t *testing.T) {
	fx := newEngineFixture(t,
		model.Queue{Name: "Vendas"},
		model.Queue{
			Name: "Suporte",
			Options: []model.QueueOption{
				{Title: "Financeiro", Position: 1},
				{Title: "Técnico", Message: "Descreva o problema técnico.", Position: 2},
			},
		},
	)

	fx.handle(t, "oi")
	fx.waitSends()
	fx.handle(t, "2") // Suporte tem sub-menu
	fx.waitSends()

	ticket := fx.currentTicket(t)
	assert.NotEmpty(t, ticket.ChatbotQueueID)
	sent := fx.sender.messages()
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[len(sent)-1], "*[ 2 ]* - Técnico")

	fx.handle(t, "2")
	fx.waitSends()

	ticket = fx.currentTicket(t)
	assert.Empty(t, ticket.ChatbotQueueID)
	assert.NotEmpty(t, ticket.QueueID)
	assert.Contains(t, fx.sender.messages(), "Descreva o problema técnico.")
}

func TestFromMeAndDisabledBotAreIgnored(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	ctx := context.Background()

	env := transport.Envelope{
		WID:          "wid-fromme",
		CompanyID:    fx.company.ID,
		ConnectionID: fx.conn.ID,
		RemoteID:     fx.contact.RemoteID,
		FromMe:       true,
		Content:      transport.Text{Body: "resposta do agente pelo celular"},
	}
	require.NoError(t, fx.engine.Handle(ctx, env, fx.ticket, fx.contact, fx.company, fx.conn))

	fx.contact.DisableBot = true
	_, err := memory.NewContactRepository(fx.store).Update(ctx, fx.contact)
	require.NoError(t, err)
	fx.handle(t, "oi")

	fx.waitSends()
	assert.Empty(t, fx.sender.messages())
	assert.Equal(t, 0, fx.currentTicket(t).AmountUsedBotQueues)
}

func TestAgentOwnedTicketSilencesBot(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	ctx := context.Background()

	fx.ticket.Status = model.TicketStatusOpen
	fx.ticket.UserID = "user1"
	_, err := memory.NewTicketRepository(fx.store).Update(ctx, fx.ticket)
	require.NoError(t, err)

	fx.handle(t, "oi")
	fx.waitSends()
	assert.Empty(t, fx.sender.messages())
}

func TestQueueWithCloseTicketEndsConversation(t *testing.T) {
	fx := newEngineFixture(t, model.Queue{
		Name:        "Autoatendimento",
		Greeting:    "Segue a segunda via do boleto.",
		CloseTicket: true,
	})

	fx.handle(t, "oi")
	fx.waitSends()

	ticket := fx.currentTicket(t)
	assert.Equal(t, model.TicketStatusClosed, ticket.Status)
	assert.True(t, ticket.IsBotClosed)
}

func TestQueueAttachmentIsSent(t *testing.T) {
	fx := newEngineFixture(t, model.Queue{
		Name:          "Catálogo",
		AttachmentURL: "https://cdn.acme.com/catalogo.pdf",
	})

	fx.handle(t, "oi")
	fx.waitSends()

	assert.Contains(t, fx.sender.messages(), "attachment:https://cdn.acme.com/catalogo.pdf")
}

func TestPhraseTriggeredFlowTakesOver(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	ctx := context.Background()

	flow, err := memory.NewFlowRepository(fx.store).Create(ctx, model.Flow{
		CompanyID:      fx.company.ID,
		Name:           "Orçamento",
		TriggerPhrases: []string{"orçamento"},
		Nodes: []model.FlowNode{
			{ID: "n1", Kind: model.FlowNodeStart},
			{ID: "n2", Kind: model.FlowNodeMessage, Text: "Vamos montar seu orçamento."},
			{ID: "n3", Kind: model.FlowNodeQuestion, Text: "Qual produto você procura?"},
		},
		Edges: []model.FlowConnection{
			{Source: "n1", Target: "n2"},
			{Source: "n2", Target: "n3"},
		},
	})
	require.NoError(t, err)

	fx.handle(t, "Quero um ORÇAMENTO por favor")
	fx.waitSends()

	ticket := fx.currentTicket(t)
	assert.True(t, ticket.UseIntegration)
	assert.Equal(t, flow.ID, ticket.FlowWebhookID)
	assert.Equal(t, "n3", ticket.FlowStoppedAt, "fluxo pausa na pergunta")

	sent := fx.sender.messages()
	assert.Contains(t, sent, "Vamos montar seu orçamento.")
	assert.Contains(t, sent, "Qual produto você procura?")

	// a próxima mensagem retoma o fluxo depois da pergunta (sem nó seguinte,
	// o fluxo termina e o modo integração desliga)
	fx.handle(t, "Notebook")
	fx.waitSends()

	ticket = fx.currentTicket(t)
	assert.False(t, ticket.UseIntegration)
	assert.Empty(t, ticket.FlowStoppedAt)
	assert.Empty(t, ticket.FlowWebhookID)
}
