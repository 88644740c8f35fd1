package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/integration"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

const (
	defaultBaseURL     = "https://api.openai.com"
	defaultModel       = "gpt-4o-mini"
	defaultMaxMessages = 10
	defaultMaxTokens   = 512

	// transferMarker na resposta do modelo encerra o bot e transfere a
	// conversa. O prompt da integração deve instruir o modelo a emiti-lo.
	transferMarker = "#transferir"
)

// Backend usa chat completions com uma janela rolante do histórico do
// ticket como contexto.
type Backend struct {
	http     *resty.Client
	messages storage.MessageRepository
	queues   storage.QueueRepository
	log      *zap.Logger
}

func New(messages storage.MessageRepository, queues storage.QueueRepository, log *zap.Logger) *Backend {
	return &Backend{
		http:     resty.New().SetTimeout(25 * time.Second),
		messages: messages,
		queues:   queues,
		log:      log,
	}
}

func (b *Backend) Type() model.IntegrationType { return model.IntegrationTypeOpenAI }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *Backend) Handle(ctx context.Context, req integration.Request) (integration.Result, error) {
	window, err := b.window(ctx, req)
	if err != nil {
		return integration.Result{}, err
	}

	payload := completionRequest{
		Model:       req.Integration.Model,
		Messages:    window,
		MaxTokens:   req.Integration.MaxTokens,
		Temperature: req.Integration.Temperature,
	}
	if payload.Model == "" {
		payload.Model = defaultModel
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = defaultMaxTokens
	}

	baseURL := strings.TrimRight(req.Integration.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var out completionResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+req.Integration.APIKey).
		SetBody(payload).
		SetResult(&out).
		SetError(&out).
		Post(baseURL + "/v1/chat/completions")
	if err != nil {
		return integration.Result{}, fmt.Errorf("openai: completions: %w", err)
	}
	if resp.IsError() {
		detail := ""
		if out.Error != nil {
			detail = ": " + out.Error.Message
		}
		return integration.Result{}, fmt.Errorf("openai: completions: status %d%s", resp.StatusCode(), detail)
	}
	if len(out.Choices) == 0 {
		return integration.Result{}, fmt.Errorf("openai: resposta sem choices")
	}

	return b.interpret(ctx, req, out.Choices[0].Message.Content)
}

// window monta o contexto: prompt de sistema mais as últimas N mensagens
// do ticket em ordem cronológica.
func (b *Backend) window(ctx context.Context, req integration.Request) ([]chatMessage, error) {
	limit := req.Integration.MaxMessages
	if limit <= 0 {
		limit = defaultMaxMessages
	}

	history, err := b.messages.ListRecentByTicket(ctx, req.Ticket.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("openai: carregar histórico: %w", err)
	}

	window := make([]chatMessage, 0, len(history)+2)
	if req.Integration.Prompt != "" {
		window = append(window, chatMessage{Role: "system", Content: req.Integration.Prompt})
	}
	lastUser := ""
	for _, msg := range history {
		if msg.Body == "" || msg.IsDeleted {
			continue
		}
		role := "user"
		if msg.FromMe {
			role = "assistant"
		} else {
			lastUser = msg.Body
		}
		window = append(window, chatMessage{Role: role, Content: msg.Body})
	}
	// a rodada corrente pode ainda não estar na janela persistida
	if req.Body != "" && lastUser != req.Body {
		window = append(window, chatMessage{Role: "user", Content: req.Body})
	}
	return window, nil
}

func (b *Backend) interpret(ctx context.Context, req integration.Request, content string) (integration.Result, error) {
	var result integration.Result

	idx := strings.Index(strings.ToLower(content), transferMarker)
	if idx < 0 {
		if reply := strings.TrimSpace(content); reply != "" {
			result.Replies = append(result.Replies, reply)
		}
		return result, nil
	}

	// texto antes do marcador ainda é resposta ao contato
	if reply := strings.TrimSpace(content[:idx]); reply != "" {
		result.Replies = append(result.Replies, reply)
	}
	name := strings.TrimSpace(content[idx+len(transferMarker):])
	name = strings.TrimPrefix(name, ":")
	if nl := strings.IndexByte(name, '\n'); nl >= 0 {
		name = name[:nl]
	}

	queues, err := b.queues.ListByIDs(ctx, req.Connection.QueueIDs)
	if err != nil {
		return integration.Result{}, fmt.Errorf("openai: carregar filas da conexão: %w", err)
	}
	queue, ok := integration.PickQueue(queues, name)
	if !ok {
		return integration.Result{}, fmt.Errorf("openai: conexão %s sem filas para transferência", req.Connection.ID)
	}
	result.TransferQueueID = queue.ID
	return result, nil
}
