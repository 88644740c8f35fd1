package realtime

import (
	"context"
	"fmt"
)

const (
	EventTicket     = "ticket"
	EventAppMessage = "appMessage"

	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Event é o que as UIs conectadas recebem no canal do tenant.
type Event struct {
	Name    string      `json:"name"`
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// Emitter publica eventos no canal por tenant. Falhas de broadcast são
// logadas por quem emite, nunca reexecutadas de forma síncrona.
type Emitter interface {
	Emit(ctx context.Context, companyID string, event Event) error
}

// Channel devolve o nome do canal principal de um tenant.
func Channel(companyID string) string {
	return fmt.Sprintf("company-%s-mainchannel", companyID)
}
