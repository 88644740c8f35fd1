package ack

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/realtime"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

// DeletedBody substitui o corpo quando o contato apaga a mensagem na origem.
const DeletedBody = "🚫 _Mensagem apagada pelo contato._"

// statusPriority ordena os acks; updates nunca rebaixam o status gravado.
var statusPriority = map[model.AckStatus]int{
	model.AckPending:   0,
	model.AckSent:      1,
	model.AckDelivered: 2,
	model.AckRead:      3,
}

// Service aplica confirmações de entrega ao histórico. Roda no caminho
// paralelo de ack, fora do pipeline de roteamento.
type Service struct {
	messages storage.MessageRepository
	emitter  realtime.Emitter
	log      *zap.Logger
}

func NewService(messages storage.MessageRepository, emitter realtime.Emitter, log *zap.Logger) *Service {
	return &Service{messages: messages, emitter: emitter, log: log}
}

// Apply grava a atualização de status. Acks fora de ordem são descartados;
// "deleted" vira redação do corpo preservando a linha do histórico.
func (s *Service) Apply(ctx context.Context, upd transport.StatusUpdate) error {
	msg, err := s.messages.GetByWID(ctx, upd.CompanyID, upd.WID)
	if errors.Is(err, storage.ErrNotFound) {
		// ack de mensagem que nunca passou pelo pipeline (ex.: anterior ao deploy)
		s.log.Debug("ack para mensagem desconhecida", zap.String("wid", upd.WID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("ack: carregar mensagem: %w", err)
	}

	if upd.Status == string(model.AckDeleted) {
		msg.IsDeleted = true
		msg.Body = DeletedBody
		msg.Ack = model.AckDeleted
		if err := s.messages.Update(ctx, msg); err != nil {
			return fmt.Errorf("ack: redigir mensagem apagada: %w", err)
		}
		s.broadcast(ctx, msg)
		return nil
	}

	next := model.AckStatus(upd.Status)
	nextPrio, known := statusPriority[next]
	if !known {
		s.log.Warn("ack com status desconhecido",
			zap.String("wid", upd.WID), zap.String("status", upd.Status))
		return nil
	}
	if msg.IsDeleted || statusPriority[msg.Ack] >= nextPrio {
		return nil
	}

	if err := s.messages.UpdateAckByWID(ctx, upd.CompanyID, upd.WID, next); err != nil {
		return fmt.Errorf("ack: atualizar status: %w", err)
	}
	msg.Ack = next
	s.broadcast(ctx, msg)
	return nil
}

func (s *Service) broadcast(ctx context.Context, msg model.Message) {
	err := s.emitter.Emit(ctx, msg.CompanyID, realtime.Event{
		Name:    realtime.EventAppMessage,
		Action:  realtime.ActionUpdate,
		Payload: msg,
	})
	if err != nil {
		s.log.Warn("ack: falha ao notificar UI", zap.String("wid", msg.WID), zap.Error(err))
	}
}
