package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/memory"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

func enableLGPD(t *testing.T, fx *engineFixture) {
	t.Helper()
	fx.company.EnableLGPD = true
	fx.company.LGPDMessage = "Tratamos seus dados conforme a LGPD."
	fx.company.LGPDLink = "https://acme.com/privacidade"
	updated, err := memory.NewCompanyRepository(fx.store).Update(context.Background(), fx.company)
	require.NoError(t, err)
	fx.company = updated
}

func TestConsentIsRequestedBeforeRouting(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	enableLGPD(t, fx)

	fx.handle(t, "oi")
	fx.waitSends()

	ticket := fx.currentTicket(t)
	assert.Equal(t, model.TicketStatusLGPD, ticket.Status)
	assert.Empty(t, ticket.QueueID, "nenhum roteamento antes do consentimento")

	sent := fx.sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Tratamos seus dados conforme a LGPD.")
	assert.Contains(t, sent[0], "https://acme.com/privacidade")
	assert.Contains(t, sent[0], "*[ 1 ]* - Aceito")
	assert.Contains(t, sent[0], "*[ 2 ]* - Não aceito")
}

func TestConsentAcceptedResumesRouting(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	enableLGPD(t, fx)

	fx.handle(t, "oi")
	fx.waitSends()
	fx.handle(t, "1")
	fx.waitSends()

	contact, err := memory.NewContactRepository(fx.store).GetByID(context.Background(), fx.contact.ID)
	require.NoError(t, err)
	require.NotNil(t, contact.AcceptedLGPD, "aceite registra o timestamp no contato")

	// o aceite reentra no roteamento e apresenta o menu na mesma rodada
	ticket := fx.currentTicket(t)
	assert.Equal(t, model.TicketStatusPending, ticket.Status)
	assert.Equal(t, 1, ticket.AmountUsedBotQueues)

	sent := fx.sender.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1], "*[ 1 ]* - Vendas")
}

func TestConsentNotAskedAgainOnceAccepted(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	enableLGPD(t, fx)

	fx.handle(t, "oi")
	fx.waitSends()
	fx.handle(t, "1")
	fx.waitSends()

	// próxima mensagem vai direto para a seleção de fila
	fx.handle(t, "1")
	fx.waitSends()

	ticket := fx.currentTicket(t)
	assert.NotEmpty(t, ticket.QueueID)
	assert.Equal(t, model.TicketStatusPending, ticket.Status)
}

func TestConsentDeclinedClosesAndDestroysTracking(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	enableLGPD(t, fx)

	fx.handle(t, "oi")
	fx.waitSends()
	fx.handle(t, "2")
	fx.waitSends()

	ticket := fx.currentTicket(t)
	assert.Equal(t, model.TicketStatusClosed, ticket.Status)
	assert.True(t, ticket.IsBotClosed)

	_, err := fx.currentTracking(t)
	assert.ErrorIs(t, err, storage.ErrNotFound, "recusa destrói o tracking da conversa")

	contact, err := memory.NewContactRepository(fx.store).GetByID(context.Background(), fx.contact.ID)
	require.NoError(t, err)
	assert.Nil(t, contact.AcceptedLGPD)
}

func TestConsentInvalidAnswerRepromptsUpToCap(t *testing.T) {
	fx := newEngineFixture(t, twoQueues()...)
	enableLGPD(t, fx)

	fx.handle(t, "oi") // convite inicial
	fx.waitSends()

	fx.handle(t, "sim, pode") // reconvite 1
	fx.waitSends()
	fx.handle(t, "aceito") // reconvite 2
	fx.waitSends()
	fx.handle(t, "ok") // reconvite 3, atinge o teto
	fx.waitSends()

	before := len(fx.sender.messages())
	assert.Equal(t, 4, before)

	fx.handle(t, "alô?")
	fx.waitSends()
	assert.Len(t, fx.sender.messages(), before, "teto atingido: sem novos reconvites")
	assert.Equal(t, model.TicketStatusLGPD, fx.currentTicket(t).Status)
}
