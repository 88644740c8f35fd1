package transport

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelopeDTO é a forma serializada do Envelope: o conteúdo vai etiquetado
// por kind e é decodificado de volta para a união exatamente uma vez.
type envelopeDTO struct {
	WID          string          `json:"wid"`
	ConnectionID string          `json:"connectionId"`
	CompanyID    string          `json:"companyId"`
	RemoteID     string          `json:"remoteId"`
	SenderName   string          `json:"senderName,omitempty"`
	FromMe       bool            `json:"fromMe"`
	IsGroup      bool            `json:"isGroup"`
	GroupID      string          `json:"groupId,omitempty"`
	GroupName    string          `json:"groupName,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	StubType     StubType        `json:"stubType,omitempty"`
	QuotedWID    string          `json:"quotedWid,omitempty"`
	ContentKind  string          `json:"contentKind"`
	Content      json.RawMessage `json:"content,omitempty"`
}

// EncodeEnvelope serializa o envelope com o conteúdo etiquetado.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	dto := envelopeDTO{
		WID:          env.WID,
		ConnectionID: env.ConnectionID,
		CompanyID:    env.CompanyID,
		RemoteID:     env.RemoteID,
		SenderName:   env.SenderName,
		FromMe:       env.FromMe,
		IsGroup:      env.IsGroup,
		GroupID:      env.GroupID,
		GroupName:    env.GroupName,
		Timestamp:    env.Timestamp,
		StubType:     env.StubType,
		QuotedWID:    env.QuotedWID,
	}
	if env.Content != nil {
		dto.ContentKind = env.Content.Kind()
		raw, err := json.Marshal(env.Content)
		if err != nil {
			return nil, fmt.Errorf("transport: encode content: %w", err)
		}
		dto.Content = raw
	}
	return json.Marshal(dto)
}

// DecodeEnvelope reconstrói o envelope, incluindo a união de conteúdo.
// Kind desconhecido vira Unknown em vez de erro, para o caminho de tipo
// não mapeado seguir vivo até o log de inconsistência.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var dto envelopeDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return Envelope{}, fmt.Errorf("transport: decode envelope: %w", err)
	}

	env := Envelope{
		WID:          dto.WID,
		ConnectionID: dto.ConnectionID,
		CompanyID:    dto.CompanyID,
		RemoteID:     dto.RemoteID,
		SenderName:   dto.SenderName,
		FromMe:       dto.FromMe,
		IsGroup:      dto.IsGroup,
		GroupID:      dto.GroupID,
		GroupName:    dto.GroupName,
		Timestamp:    dto.Timestamp,
		StubType:     dto.StubType,
		QuotedWID:    dto.QuotedWID,
		Raw:          data,
	}

	content, err := decodeContent(dto.ContentKind, dto.Content)
	if err != nil {
		return Envelope{}, err
	}
	env.Content = content
	return env, nil
}

func decodeContent(kind string, raw json.RawMessage) (Content, error) {
	if kind == "" {
		return nil, nil
	}
	switch kind {
	case "text":
		var c Text
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("transport: decode text: %w", err)
		}
		return c, nil
	case "media":
		var c Media
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("transport: decode media: %w", err)
		}
		return c, nil
	case "edit":
		var c Edit
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("transport: decode edit: %w", err)
		}
		return c, nil
	default:
		return Unknown{TypeName: kind}, nil
	}
}
