package integration

import (
	"context"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

// FailureMessage é a resposta neutra enviada ao contato quando o backend
// de automação falha. O erro real fica só no log.
const FailureMessage = "Não conseguimos processar sua mensagem agora. Tente novamente em alguns instantes."

// Request é o contexto de uma rodada de automação: o texto do contato mais
// o estado da conversa de que o backend precisa.
type Request struct {
	Integration model.QueueIntegration
	Company     model.Company
	Connection  model.Connection
	Ticket      model.Ticket
	Contact     model.Contact
	Body        string
}

// Result é a decisão do backend para a rodada.
type Result struct {
	// Replies são enviadas ao contato na ordem recebida.
	Replies []string
	// TransferQueueID encerra o modo integração e entrega a uma fila humana.
	TransferQueueID string
	// Done encerra o modo integração sem transferência.
	Done bool
	// FlowStoppedAt pausa um fluxo neste nó; a próxima mensagem retoma dali.
	FlowStoppedAt string
	// ResumeFlowID liga o ticket a um fluxo que assume as próximas rodadas.
	ResumeFlowID string
}

// Backend é um motor de automação plugável. Handle nunca deve bloquear além
// do contexto recebido; o dispatcher impõe o timeout.
type Backend interface {
	Type() model.IntegrationType
	Handle(ctx context.Context, req Request) (Result, error)
}
