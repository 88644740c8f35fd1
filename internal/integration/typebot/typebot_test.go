package typebot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/integration"
	cache_memory "github.com/open-zapdesk/zapdesk/internal/pkg/cache/memory"
	"github.com/open-zapdesk/zapdesk/internal/storage/memory"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

func textMessage(lines ...string) chatMessage {
	var blocks []richBlock
	for _, line := range lines {
		blocks = append(blocks, richBlock{Children: []richChild{{Text: line}}})
	}
	return chatMessage{Type: "text", Content: chatContent{RichText: blocks}}
}

type typebotFixture struct {
	backend  *Backend
	cache    *cache_memory.MemoryCache
	queueIDs []string
}

func newTypebotFixture(t *testing.T) *typebotFixture {
	t.Helper()
	store := memory.NewStore()
	repo := memory.NewQueueRepository(store)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"Vendas", "Suporte"} {
		q, err := repo.Create(ctx, model.Queue{CompanyID: "company1", Name: name})
		require.NoError(t, err)
		ids = append(ids, q.ID)
	}

	c := cache_memory.NewCache(time.Minute)
	return &typebotFixture{
		backend:  New(c, repo, zap.NewNop()),
		cache:    c,
		queueIDs: ids,
	}
}

func (fx *typebotFixture) request(baseURL, body string) integration.Request {
	return integration.Request{
		Integration: model.QueueIntegration{
			ID:          "int1",
			Type:        model.IntegrationTypeTypebot,
			BaseURL:     baseURL,
			APIKey:      "tb-test",
			TypebotSlug: "atendimento",
		},
		Company:    model.Company{ID: "company1"},
		Connection: model.Connection{ID: "conn1", QueueIDs: fx.queueIDs},
		Ticket:     model.Ticket{ID: "ticket1"},
		Contact:    model.Contact{ID: "contact1", RemoteID: "5511999990000"},
		Body:       body,
	}
}

func TestHandleStartsSessionAndReplies(t *testing.T) {
	fx := newTypebotFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/typebots/atendimento/startChat", r.URL.Path)
		assert.Equal(t, "Bearer tb-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			SessionID: "sess1",
			Messages:  []chatMessage{textMessage("Oi! Sou o bot da Acme.")},
		})
	}))
	defer srv.Close()

	res, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "oi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Oi! Sou o bot da Acme."}, res.Replies)

	// a sessão fica guardada para a próxima rodada
	sess, found, err := fx.cache.Get(context.Background(), "typebot:session:ticket1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sess1", sess)
}

func TestHandleContinuesExistingSession(t *testing.T) {
	fx := newTypebotFixture(t)
	require.NoError(t, fx.cache.Set(context.Background(), "typebot:session:ticket1", "sess1", time.Minute))

	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			SessionID: "sess1",
			Messages:  []chatMessage{textMessage("Entendi, seguimos.")},
		})
	}))
	defer srv.Close()

	res, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "quero saber mais"))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/sessions/sess1/continueChat", path)
	assert.Equal(t, []string{"Entendi, seguimos."}, res.Replies)
}

func TestHandleExpiredSessionRestarts(t *testing.T) {
	fx := newTypebotFixture(t)
	require.NoError(t, fx.cache.Set(context.Background(), "typebot:session:ticket1", "sess-expirada", time.Minute))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "continueChat") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			SessionID: "sess-nova",
			Messages:  []chatMessage{textMessage("Recomeçando do início.")},
		})
	}))
	defer srv.Close()

	res, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "alô"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Recomeçando do início."}, res.Replies)

	sess, found, err := fx.cache.Get(context.Background(), "typebot:session:ticket1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sess-nova", sess)
}

func TestHandleTransferDirective(t *testing.T) {
	fx := newTypebotFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			SessionID: "sess1",
			Messages: []chatMessage{
				textMessage("Vou te encaminhar."),
				textMessage("#transferir:Suporte"),
			},
		})
	}))
	defer srv.Close()

	res, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "quero um humano"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Vou te encaminhar."}, res.Replies)
	assert.Equal(t, fx.queueIDs[1], res.TransferQueueID)
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, "linha 1\nlinha 2", flatten(chatContent{
		RichText: []richBlock{
			{Children: []richChild{{Text: "linha "}, {Text: "1"}}},
			{Children: []richChild{{Text: "linha 2"}}},
		},
	}))

	// anexo vira a própria URL
	assert.Equal(t, "https://cdn.acme.com/img.png", flatten(chatContent{
		URL: "https://cdn.acme.com/img.png",
	}))

	assert.Empty(t, flatten(chatContent{}))
}
