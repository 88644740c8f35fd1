package typebot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/integration"
	"github.com/open-zapdesk/zapdesk/internal/pkg/cache"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

// sessionTTL limita quanto tempo uma sessão de typebot fica retomável.
const sessionTTL = time.Hour

// transferPrefix em uma resposta do bot transfere a conversa para uma fila
// humana: "#transferir" ou "#transferir:Suporte".
const transferPrefix = "#transferir"

// Backend conversa com um servidor Typebot via API de chat: startChat abre
// a sessão, continueChat avança com cada mensagem do contato.
type Backend struct {
	http   *resty.Client
	cache  cache.Cache
	queues storage.QueueRepository
	log    *zap.Logger
}

func New(c cache.Cache, queues storage.QueueRepository, log *zap.Logger) *Backend {
	return &Backend{
		http:   resty.New().SetTimeout(25 * time.Second),
		cache:  c,
		queues: queues,
		log:    log,
	}
}

func (b *Backend) Type() model.IntegrationType { return model.IntegrationTypeTypebot }

type chatRequest struct {
	Message string `json:"message,omitempty"`
}

type chatResponse struct {
	SessionID string        `json:"sessionId"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Type    string      `json:"type"`
	Content chatContent `json:"content"`
}

type chatContent struct {
	RichText []richBlock `json:"richText"`
	URL      string      `json:"url"`
}

type richBlock struct {
	Children []richChild `json:"children"`
}

type richChild struct {
	Text string `json:"text"`
}

func (b *Backend) Handle(ctx context.Context, req integration.Request) (integration.Result, error) {
	sessionKey := "typebot:session:" + req.Ticket.ID

	sessionID, found, err := b.cache.Get(ctx, sessionKey)
	if err != nil {
		b.log.Warn("typebot: cache de sessão indisponível", zap.Error(err))
		found = false
	}

	var resp chatResponse
	if found && sessionID != "" {
		resp, err = b.continueChat(ctx, req, sessionID)
		if err != nil {
			// sessão expirada no servidor: recomeça do zero
			b.log.Debug("typebot: continueChat falhou, reabrindo sessão",
				zap.String("ticketId", req.Ticket.ID), zap.Error(err))
			found = false
		}
	}
	if !found || sessionID == "" {
		resp, err = b.startChat(ctx, req)
		if err != nil {
			return integration.Result{}, err
		}
	}

	if resp.SessionID != "" {
		if err := b.cache.Set(ctx, sessionKey, resp.SessionID, sessionTTL); err != nil {
			b.log.Warn("typebot: falha ao guardar sessão", zap.Error(err))
		}
	}

	return b.interpret(ctx, req, resp)
}

func (b *Backend) startChat(ctx context.Context, req integration.Request) (chatResponse, error) {
	var out chatResponse
	url := fmt.Sprintf("%s/api/v1/typebots/%s/startChat",
		strings.TrimRight(req.Integration.BaseURL, "/"), req.Integration.TypebotSlug)

	resp, err := b.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+req.Integration.APIKey).
		SetBody(chatRequest{Message: req.Body}).
		SetResult(&out).
		Post(url)
	if err != nil {
		return chatResponse{}, fmt.Errorf("typebot: startChat: %w", err)
	}
	if resp.IsError() {
		return chatResponse{}, fmt.Errorf("typebot: startChat: status %d", resp.StatusCode())
	}
	return out, nil
}

func (b *Backend) continueChat(ctx context.Context, req integration.Request, sessionID string) (chatResponse, error) {
	var out chatResponse
	url := fmt.Sprintf("%s/api/v1/sessions/%s/continueChat",
		strings.TrimRight(req.Integration.BaseURL, "/"), sessionID)

	resp, err := b.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+req.Integration.APIKey).
		SetBody(chatRequest{Message: req.Body}).
		SetResult(&out).
		Post(url)
	if err != nil {
		return chatResponse{}, fmt.Errorf("typebot: continueChat: %w", err)
	}
	if resp.IsError() {
		return chatResponse{}, fmt.Errorf("typebot: continueChat: status %d", resp.StatusCode())
	}
	return out, nil
}

// interpret transforma os blocos do typebot em respostas de texto e procura
// a diretiva de transferência.
func (b *Backend) interpret(ctx context.Context, req integration.Request, resp chatResponse) (integration.Result, error) {
	var result integration.Result

	for _, msg := range resp.Messages {
		text := flatten(msg.Content)
		if text == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(text), transferPrefix) {
			queueID, err := b.resolveTransfer(ctx, req, text)
			if err != nil {
				return integration.Result{}, err
			}
			result.TransferQueueID = queueID
			continue
		}
		result.Replies = append(result.Replies, text)
	}
	return result, nil
}

func (b *Backend) resolveTransfer(ctx context.Context, req integration.Request, directive string) (string, error) {
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(directive), transferPrefix))
	name = strings.TrimPrefix(name, ":")

	queues, err := b.queues.ListByIDs(ctx, req.Connection.QueueIDs)
	if err != nil {
		return "", fmt.Errorf("typebot: carregar filas da conexão: %w", err)
	}
	queue, ok := integration.PickQueue(queues, name)
	if !ok {
		return "", fmt.Errorf("typebot: conexão %s sem filas para transferência", req.Connection.ID)
	}
	return queue.ID, nil
}

func flatten(content chatContent) string {
	if content.URL != "" {
		return content.URL
	}
	var sb strings.Builder
	for i, block := range content.RichText {
		if i > 0 {
			sb.WriteString("\n")
		}
		for _, child := range block.Children {
			sb.WriteString(child.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
