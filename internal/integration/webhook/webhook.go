package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/integration"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

const maxRetries = 2

// Backend entrega cada rodada da conversa a um endpoint externo. O endpoint
// pode responder com mensagens a enviar e com um fluxo de retomada; corpo
// vazio é só notificação.
type Backend struct {
	http *resty.Client
	log  *zap.Logger
}

func New(log *zap.Logger) *Backend {
	return &Backend{
		http: resty.New().SetTimeout(25 * time.Second),
		log:  log,
	}
}

func (b *Backend) Type() model.IntegrationType { return model.IntegrationTypeWebhook }

type event struct {
	Event        string    `json:"event"`
	CompanyID    string    `json:"companyId"`
	TicketID     string    `json:"ticketId"`
	ConnectionID string    `json:"connectionId"`
	Contact      contact   `json:"contact"`
	Body         string    `json:"body"`
	Timestamp    time.Time `json:"timestamp"`
}

type contact struct {
	ID       string `json:"id"`
	RemoteID string `json:"remoteId"`
	Name     string `json:"name"`
}

type reply struct {
	Messages []string `json:"messages"`
	FlowID   string   `json:"flowId,omitempty"`
	Done     bool     `json:"done,omitempty"`
}

func (b *Backend) Handle(ctx context.Context, req integration.Request) (integration.Result, error) {
	payload, err := json.Marshal(event{
		Event:        "message",
		CompanyID:    req.Company.ID,
		TicketID:     req.Ticket.ID,
		ConnectionID: req.Connection.ID,
		Contact: contact{
			ID:       req.Contact.ID,
			RemoteID: req.Contact.RemoteID,
			Name:     req.Contact.Name,
		},
		Body:      req.Body,
		Timestamp: time.Now(),
	})
	if err != nil {
		return integration.Result{}, fmt.Errorf("webhook: marshal: %w", err)
	}

	request := b.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "Zapdesk/1.0").
		SetBody(payload)
	if req.Integration.WebhookSecret != "" {
		request.SetHeader("X-Zapdesk-Signature", Sign(payload, req.Integration.WebhookSecret))
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			b.log.Info("webhook: retry",
				zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return integration.Result{}, ctx.Err()
			}
		}

		resp, err := request.Post(req.Integration.WebhookURL)
		if err != nil {
			lastErr = fmt.Errorf("webhook: request: %w", err)
			continue
		}
		if resp.IsError() {
			lastErr = fmt.Errorf("webhook: status %d", resp.StatusCode())
			continue
		}
		return b.interpret(resp.Body())
	}
	return integration.Result{}, fmt.Errorf("webhook: falhou após %d tentativas: %w", maxRetries+1, lastErr)
}

func (b *Backend) interpret(body []byte) (integration.Result, error) {
	var result integration.Result
	if len(body) == 0 {
		return result, nil
	}
	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		// endpoint respondeu algo que não é o contrato; trata como notificação
		return result, nil
	}
	result.Replies = r.Messages
	result.Done = r.Done
	// FlowID na resposta liga o ticket a um fluxo de retomada
	result.ResumeFlowID = r.FlowID
	return result, nil
}

// Sign gera a assinatura HMAC-SHA256 enviada no cabeçalho.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature confere uma assinatura recebida de volta.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
