package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	JobHandleMessage    = "handleMessage"
	JobHandleMessageAck = "handleMessageAck"
)

// ErrDuplicate indica que já existe um job pendente com o mesmo ID.
var ErrDuplicate = errors.New("queue: job duplicado")

// Job carrega apenas as referências mínimas para o worker re-buscar estado.
type Job struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Priority     int       `json:"priority"` // menor valor = mais urgente
	CompanyID    string    `json:"companyId"`
	ConnectionID string    `json:"connectionId"`
	MessageID    string    `json:"messageId"`
	ContactID    string    `json:"contactId,omitempty"` // chave de ordenação por conversa
	Status       string    `json:"status,omitempty"`    // só em jobs de ack
	CreatedAt    time.Time `json:"createdAt"`
}

// JobID monta o id determinístico e idempotente de um job de mensagem:
// reentrega do mesmo envelope produz o mesmo id e é rejeitada pela fila.
func JobID(connectionID, name, messageID string) string {
	return fmt.Sprintf("%s-%s-%s", connectionID, name, messageID)
}

type Queue interface {
	// Enqueue devolve ErrDuplicate quando o job.ID já está pendente.
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	// Fail retém o job para inspeção; jobs concluídos são simplesmente removidos.
	Fail(ctx context.Context, job Job, cause string) error
	Size(ctx context.Context) (int64, error)
	Close() error
}
