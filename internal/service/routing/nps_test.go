package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

func startRating(t *testing.T, fx *engineFixture) {
	t.Helper()
	ctx := context.Background()
	fx.ticket.Status = model.TicketStatusOpen
	fx.ticket.UserID = "user1"
	ticket, err := fx.engine.tickets.Update(ctx, fx.ticket)
	require.NoError(t, err)
	require.NoError(t, fx.engine.BeginRating(ctx, ticket, fx.contact, fx.conn))
}

func TestBeginRatingSendsPrompt(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	startRating(t, fx)

	ticket := fx.currentTicket(t)
	assert.Equal(t, model.TicketStatusNPS, ticket.Status)
	assert.Equal(t, 0, ticket.AmountUsedBotQueuesNPS)

	sent := fx.sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "nota de *0* a *10*")

	tracking, err := fx.currentTracking(t)
	require.NoError(t, err)
	assert.NotNil(t, tracking.ClosedAt)
	assert.Equal(t, "user1", tracking.UserID)
}

func TestRatingIsRecordedAndClamped(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	startRating(t, fx)

	fx.handle(t, "15")
	fx.waitSends()

	ratings := fx.store.ListRatings()
	require.Len(t, ratings, 1)
	assert.Equal(t, 10, ratings[0].Rate, "nota acima de 10 é grampeada")
	assert.Equal(t, fx.ticket.ID, ratings[0].TicketID)
	assert.Equal(t, "user1", ratings[0].UserID)

	ticket := fx.currentTicket(t)
	assert.Equal(t, model.TicketStatusClosed, ticket.Status)

	tracking, err := fx.currentTracking(t)
	require.NoError(t, err)
	assert.NotNil(t, tracking.RatingAt)
	assert.NotNil(t, tracking.FinishedAt)

	sent := fx.sender.messages()
	assert.Contains(t, sent[len(sent)-1], "Obrigado pela sua avaliação")
}

func TestRatingNegativeClampsToZero(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	startRating(t, fx)

	fx.handle(t, "-3")

	ratings := fx.store.ListRatings()
	require.Len(t, ratings, 1)
	assert.Equal(t, 0, ratings[0].Rate)
}

func TestRatingNonNumericRetriesThenGivesUp(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	startRating(t, fx)

	fx.handle(t, "ótimo atendimento") // tentativa 1: reconvite
	fx.waitSends()
	fx.handle(t, "muito bom") // tentativa 2: reconvite
	fx.waitSends()
	fx.handle(t, "nota dez") // tentativa 3: desiste em silêncio
	fx.waitSends()

	assert.Empty(t, fx.store.ListRatings())

	ticket := fx.currentTicket(t)
	assert.Equal(t, model.TicketStatusClosed, ticket.Status)
	assert.Equal(t, 3, ticket.AmountUsedBotQueuesNPS)

	// convite inicial + dois reconvites, nada depois da desistência
	assert.Len(t, fx.sender.messages(), 3)

	tracking, err := fx.currentTracking(t)
	require.NoError(t, err)
	assert.Nil(t, tracking.RatingAt)
	assert.NotNil(t, tracking.FinishedAt)
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"0", 0, true},
		{"10", 10, true},
		{" 7 ", 7, true},
		{"15", 10, true},
		{"-1", 0, true},
		{"dez", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseRating(tt.in)
		assert.Equal(t, tt.ok, ok, "parseRating(%q)", tt.in)
		if ok {
			assert.Equal(t, tt.want, got, "parseRating(%q)", tt.in)
		}
	}
}
