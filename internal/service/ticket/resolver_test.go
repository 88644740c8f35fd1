package ticket

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/storage/memory"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

func newResolverFixture() (*Resolver, *memory.Store) {
	store := memory.NewStore()
	resolver := NewResolver(
		memory.NewContactRepository(store),
		memory.NewTicketRepository(store),
		memory.NewTicketTrackingRepository(store),
		memory.NewLocker(),
		zap.NewNop(),
	)
	return resolver, store
}

func envelope(wid string) transport.Envelope {
	return transport.Envelope{
		WID:          wid,
		CompanyID:    "company1",
		ConnectionID: "conn1",
		RemoteID:     "5511999990000",
		SenderName:   "Maria",
		Content:      transport.Text{Body: "oi"},
	}
}

func TestResolveContactCreatesOnFirstMessage(t *testing.T) {
	resolver, _ := newResolverFixture()
	ctx := context.Background()

	contact, err := resolver.ResolveContact(ctx, envelope("wid1"))
	require.NoError(t, err)
	assert.Equal(t, "5511999990000", contact.RemoteID)
	assert.Equal(t, "Maria", contact.Name)
	assert.Equal(t, "company1", contact.CompanyID)
	assert.False(t, contact.IsGroup)

	// segunda resolução reaproveita o mesmo contato
	again, err := resolver.ResolveContact(ctx, envelope("wid2"))
	require.NoError(t, err)
	assert.Equal(t, contact.ID, again.ID)
}

func TestResolveContactRefreshesName(t *testing.T) {
	resolver, _ := newResolverFixture()
	ctx := context.Background()

	first, err := resolver.ResolveContact(ctx, envelope("wid1"))
	require.NoError(t, err)
	require.Equal(t, "Maria", first.Name)

	env := envelope("wid2")
	env.SenderName = "Maria Silva"
	updated, err := resolver.ResolveContact(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, "Maria Silva", updated.Name)
}

func TestResolveContactGroupUsesGroupIdentity(t *testing.T) {
	resolver, _ := newResolverFixture()
	ctx := context.Background()

	env := envelope("wid1")
	env.IsGroup = true
	env.GroupID = "group-1@g.us"
	env.GroupName = "Time de Vendas"

	contact, err := resolver.ResolveContact(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, "group-1@g.us", contact.RemoteID)
	assert.Equal(t, "Time de Vendas", contact.Name)
	assert.True(t, contact.IsGroup)
}

func TestFindOrCreateReusesActiveTicket(t *testing.T) {
	resolver, _ := newResolverFixture()
	ctx := context.Background()

	contact, err := resolver.ResolveContact(ctx, envelope("wid1"))
	require.NoError(t, err)

	first, created, err := resolver.FindOrCreate(ctx, envelope("wid1"), contact)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.TicketStatusPending, first.Status)

	second, created, err := resolver.FindOrCreate(ctx, envelope("wid2"), contact)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateCreatesTracking(t *testing.T) {
	resolver, store := newResolverFixture()
	ctx := context.Background()

	contact, err := resolver.ResolveContact(ctx, envelope("wid1"))
	require.NoError(t, err)

	ticket, _, err := resolver.FindOrCreate(ctx, envelope("wid1"), contact)
	require.NoError(t, err)

	tracking, err := memory.NewTicketTrackingRepository(store).GetByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, tracking.TicketID)
	assert.Nil(t, tracking.ChatbotAt)
}

func TestFindOrCreateConcurrentMessagesYieldOneTicket(t *testing.T) {
	resolver, _ := newResolverFixture()
	ctx := context.Background()

	contact, err := resolver.ResolveContact(ctx, envelope("wid0"))
	require.NoError(t, err)

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, _, err := resolver.FindOrCreate(ctx, envelope("wid1"), contact)
			errs[i] = err
			ids[i] = ticket.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i], "toda mensagem concorrente deve cair no mesmo ticket")
	}
}

func TestFindOrCreateAfterCloseOpensNewTicket(t *testing.T) {
	resolver, store := newResolverFixture()
	ctx := context.Background()
	tickets := memory.NewTicketRepository(store)

	contact, err := resolver.ResolveContact(ctx, envelope("wid1"))
	require.NoError(t, err)

	first, _, err := resolver.FindOrCreate(ctx, envelope("wid1"), contact)
	require.NoError(t, err)

	first.Status = model.TicketStatusClosed
	_, err = tickets.Update(ctx, first)
	require.NoError(t, err)

	second, created, err := resolver.FindOrCreate(ctx, envelope("wid2"), contact)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}
