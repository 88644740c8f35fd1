package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/integration"
	"github.com/open-zapdesk/zapdesk/internal/storage/memory"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

type openaiFixture struct {
	backend  *Backend
	store    *memory.Store
	queueIDs []string
}

func newOpenAIFixture(t *testing.T) *openaiFixture {
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

	return &openaiFixture{
		backend:  New(memory.NewMessageRepository(store), repo, zap.NewNop()),
		store:    store,
		queueIDs: ids,
	}
}

func (fx *openaiFixture) request(baseURL, body string) integration.Request {
	return integration.Request{
		Integration: model.QueueIntegration{
			ID:      "int1",
			Type:    model.IntegrationTypeOpenAI,
			BaseURL: baseURL,
			APIKey:  "sk-test",
			Prompt:  "Você é o atendente virtual da Acme.",
		},
		Company:    model.Company{ID: "company1"},
		Connection: model.Connection{ID: "conn1", QueueIDs: fx.queueIDs},
		Ticket:     model.Ticket{ID: "ticket1"},
		Contact:    model.Contact{ID: "contact1", RemoteID: "5511999990000"},
		Body:       body,
	}
}

func completionServer(t *testing.T, content string, capture *completionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestHandleRepliesFromModel(t *testing.T) {
	fx := newOpenAIFixture(t)
	srv := completionServer(t, "Olá! Como posso ajudar?", nil)
	defer srv.Close()

	res, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "oi"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Olá! Como posso ajudar?"}, res.Replies)
	assert.Empty(t, res.TransferQueueID)
}

func TestHandleTransferMarkerRoutesToQueue(t *testing.T) {
	fx := newOpenAIFixture(t)
	srv := completionServer(t, "Vou te passar para um humano.\n#transferir:Suporte", nil)
	defer srv.Close()

	res, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "quero falar com uma pessoa"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Vou te passar para um humano."}, res.Replies)
	assert.Equal(t, fx.queueIDs[1], res.TransferQueueID)
}

func TestHandleTransferWithoutNameFallsBackToFirstQueue(t *testing.T) {
	fx := newOpenAIFixture(t)
	srv := completionServer(t, "#transferir", nil)
	defer srv.Close()

	res, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "atendente"))
	require.NoError(t, err)
	assert.Equal(t, fx.queueIDs[0], res.TransferQueueID)
}

func TestWindowCarriesHistoryAndPrompt(t *testing.T) {
	fx := newOpenAIFixture(t)
	ctx := context.Background()
	messages := memory.NewMessageRepository(fx.store)

	seed := []model.Message{
		{WID: "w1", TicketID: "ticket1", CompanyID: "company1", Body: "quanto custa o plano?"},
		{WID: "w2", TicketID: "ticket1", CompanyID: "company1", Body: "O plano custa R$99.", FromMe: true},
		{WID: "w3", TicketID: "ticket1", CompanyID: "company1", Body: "apagada", IsDeleted: true},
	}
	for _, m := range seed {
		_, err := messages.Create(ctx, m)
		require.NoError(t, err)
	}

	var got completionRequest
	srv := completionServer(t, "Claro!", &got)
	defer srv.Close()

	_, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "e tem desconto?"))
	require.NoError(t, err)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Você é o atendente virtual da Acme.", got.Messages[0].Content)
	assert.Equal(t, chatMessage{Role: "user", Content: "quanto custa o plano?"}, got.Messages[1])
	assert.Equal(t, chatMessage{Role: "assistant", Content: "O plano custa R$99."}, got.Messages[2])
	assert.Equal(t, chatMessage{Role: "user", Content: "e tem desconto?"}, got.Messages[3])

	assert.Equal(t, defaultModel, got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
}

func TestHandleAPIErrorFails(t *testing.T) {
	fx := newOpenAIFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit"},
		})
	}))
	defer srv.Close()

	_, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "oi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestHandleEmptyChoicesFails(t *testing.T) {
	fx := newOpenAIFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	_, err := fx.backend.Handle(t.Context(), fx.request(srv.URL, "oi"))
	assert.Error(t, err)
}
