package flowbuilder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/integration"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

// maxSteps limita a caminhada para fluxos com ciclo não pausarem nunca.
const maxSteps = 50

// Backend executa fluxos low-code: caminha pelo grafo a partir do nó start
// (ou do nó onde o fluxo pausou), emitindo mensagens até encontrar uma
// pergunta, uma transferência ou o fim.
type Backend struct {
	flows storage.FlowRepository
	log   *zap.Logger
}

func New(flows storage.FlowRepository, log *zap.Logger) *Backend {
	return &Backend{flows: flows, log: log}
}

func (b *Backend) Type() model.IntegrationType { return model.IntegrationTypeFlowBuilder }

func (b *Backend) Handle(ctx context.Context, req integration.Request) (integration.Result, error) {
	flowID := req.Integration.FlowID
	if req.Ticket.FlowWebhookID != "" {
		flowID = req.Ticket.FlowWebhookID
	}
	flow, err := b.flows.GetByID(ctx, flowID)
	if err != nil {
		return integration.Result{}, fmt.Errorf("flowbuilder: carregar fluxo %s: %w", flowID, err)
	}

	nodes := make(map[string]model.FlowNode, len(flow.Nodes))
	for _, n := range flow.Nodes {
		nodes[n.ID] = n
	}
	next := make(map[string]string, len(flow.Edges))
	for _, e := range flow.Edges {
		if _, dup := next[e.Source]; !dup {
			next[e.Source] = e.Target
		}
	}

	current, err := b.entryNode(flow, nodes, next, req.Ticket)
	if err != nil {
		return integration.Result{}, err
	}

	var result integration.Result
	for step := 0; step < maxSteps; step++ {
		node, ok := nodes[current]
		if !ok {
			// aresta para nó removido encerra o fluxo
			result.Done = true
			return result, nil
		}

		switch node.Kind {
		case model.FlowNodeMessage:
			if node.Text != "" {
				result.Replies = append(result.Replies, node.Text)
			}
		case model.FlowNodeQuestion:
			if node.Text != "" {
				result.Replies = append(result.Replies, node.Text)
			}
			result.FlowStoppedAt = node.ID
			return result, nil
		case model.FlowNodeTransfer:
			result.TransferQueueID = node.QueueID
			return result, nil
		case model.FlowNodeEnd:
			result.Done = true
			return result, nil
		}

		current, ok = next[node.ID]
		if !ok {
			result.Done = true
			return result, nil
		}
	}

	b.log.Warn("flowbuilder: fluxo excedeu o limite de passos",
		zap.String("flowId", flow.ID), zap.String("ticketId", req.Ticket.ID))
	result.Done = true
	return result, nil
}

// entryNode decide de onde a caminhada começa: depois do nó pausado quando
// há retomada, senão depois do start.
func (b *Backend) entryNode(flow model.Flow, nodes map[string]model.FlowNode, next map[string]string, ticket model.Ticket) (string, error) {
	if ticket.FlowStoppedAt != "" {
		if _, ok := nodes[ticket.FlowStoppedAt]; ok {
			// a mensagem do contato é a resposta da pergunta pausada
			if target, ok := next[ticket.FlowStoppedAt]; ok {
				return target, nil
			}
			return "", nil
		}
		b.log.Warn("flowbuilder: nó pausado não existe mais, recomeçando",
			zap.String("flowId", flow.ID), zap.String("node", ticket.FlowStoppedAt))
	}

	for _, n := range flow.Nodes {
		if n.Kind == model.FlowNodeStart {
			if target, ok := next[n.ID]; ok {
				return target, nil
			}
			return "", nil
		}
	}
	return "", fmt.Errorf("flowbuilder: fluxo %s sem nó start", flow.ID)
}
