package transport

import (
	"context"
	"encoding/json"
	"time"
)

// StubType marca envelopes de sistema emitidos pelo transporte.
type StubType string

const (
	StubNone            StubType = ""
	StubRevoke          StubType = "revoke"
	StubBroadcastStatus StubType = "broadcast-status"
	StubCiphertext      StubType = "ciphertext"
	StubCall            StubType = "call"
)

// Content é a união etiquetada do conteúdo da mensagem, decodificada uma
// única vez na borda. O switch em quem consome deve ter default explícito
// caindo no caminho de tipo desconhecido.
type Content interface {
	Kind() string
}

type Text struct {
	Body string `json:"body"`
}

func (Text) Kind() string { return "text" }

type Media struct {
	MediaKind string `json:"mediaKind"` // image, video, audio, document, sticker
	Caption   string `json:"caption,omitempty"`
	URL       string `json:"url,omitempty"`
	Mimetype  string `json:"mimetype,omitempty"`
}

func (Media) Kind() string { return "media" }

// Edit é uma edição de protocolo: muta o corpo de uma mensagem já
// armazenada, nunca gera transição de roteamento.
type Edit struct {
	TargetWID string `json:"targetWid"`
	NewBody   string `json:"newBody"`
}

func (Edit) Kind() string { return "edit" }

type Unknown struct {
	TypeName string `json:"typeName"`
}

func (Unknown) Kind() string { return "unknown" }

// Envelope é a mensagem bruta entregue pelo adaptador de transporte.
type Envelope struct {
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
	Content      Content         `json:"-"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// StatusUpdate é o evento de confirmação de entrega (caminho paralelo de ack).
type StatusUpdate struct {
	WID          string    `json:"wid"`
	ConnectionID string    `json:"connectionId"`
	CompanyID    string    `json:"companyId"`
	Status       string    `json:"status"` // sent, delivered, read, deleted
	Timestamp    time.Time `json:"timestamp"`
}

// Sender é o contrato de envio do adaptador de transporte. Implementações
// podem simular digitação (presence composing) antes de entregar o texto.
type Sender interface {
	SendText(ctx context.Context, connectionID, to, body string) (wid string, err error)
	SendAttachment(ctx context.Context, connectionID, to, url, caption string) (wid string, err error)
}
