package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-zapdesk/zapdesk/internal/storage/memory"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

// Os drivers devolvem os sentinelas de model; os aliases deste pacote
// precisam ser o MESMO valor para errors.Is funcionar nos serviços.
func TestSentinelsMatchAcrossPackages(t *testing.T) {
	assert.True(t, errors.Is(ErrNotFound, model.ErrNotFound))
	assert.True(t, errors.Is(ErrConflict, model.ErrConflict))

	store := memory.NewStore()
	_, err := memory.NewCompanyRepository(store).GetByID(context.Background(), "nao-existe")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDriverImplementsRepositoryContracts(t *testing.T) {
	store := memory.NewStore()

	var _ CompanyRepository = memory.NewCompanyRepository(store)
	var _ TicketRepository = memory.NewTicketRepository(store)
	var _ MessageRepository = memory.NewMessageRepository(store)
	var _ Locker = memory.NewLocker()
}
