package model

import "time"

type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "open"
	TicketStatusPending     TicketStatus = "pending"
	TicketStatusClosed      TicketStatus = "closed"
	TicketStatusNPS         TicketStatus = "nps"
	TicketStatusLGPD        TicketStatus = "lgpd"
	TicketStatusInterrupted TicketStatus = "interrupted"
)

type ScheduleType string

const (
	ScheduleTypeDisabled   ScheduleType = "disabled"
	ScheduleTypeCompany    ScheduleType = "company"
	ScheduleTypeQueue      ScheduleType = "queue"
	ScheduleTypeConnection ScheduleType = "connection"
)

type IntegrationType string

const (
	IntegrationTypeTypebot     IntegrationType = "typebot"
	IntegrationTypeOpenAI      IntegrationType = "openai"
	IntegrationTypeFlowBuilder IntegrationType = "flowbuilder"
	IntegrationTypeWebhook     IntegrationType = "webhook"
)

// Company é o tenant. Todas as entidades de conversa carregam CompanyID.
type Company struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ScheduleType     ScheduleType `json:"scheduleType"`
	Schedules        []Schedule   `json:"schedules"`
	OutOfHoursMsg    string       `json:"outOfHoursMessage"`
	EnableLGPD       bool         `json:"enableLgpd"`
	LGPDMessage      string       `json:"lgpdMessage"`
	LGPDLink         string       `json:"lgpdLink"`
	MaxUseBotQueues  int          `json:"maxUseBotQueues"`
	TimeUseBotQueues int          `json:"timeUseBotQueues"` // minutos
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Schedule é uma linha da tabela semanal: até dois intervalos por dia.
// Intervalos vazios significam fechado no dia.
type Schedule struct {
	Weekday    time.Weekday `json:"weekday"`
	StartTimeA string       `json:"startTimeA"`
	EndTimeA   string       `json:"endTimeA"`
	StartTimeB string       `json:"startTimeB"`
	EndTimeB   string       `json:"endTimeB"`
}

type ConnectionStatus string

const (
	ConnectionStatusPending      ConnectionStatus = "pending"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// Connection é uma conta/sessão lógica de mensageria. Exatamente um binding
// de transporte ativo por Connection.
type Connection struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	CompanyID     string           `json:"companyId"`
	Status        ConnectionStatus `json:"status"`
	JID           string           `json:"jid,omitempty"`
	Greeting      string           `json:"greetingMessage,omitempty"`
	QueueIDs      []string         `json:"queueIds"`
	IntegrationID string           `json:"integrationId,omitempty"`
	ScheduleType  ScheduleType     `json:"scheduleType,omitempty"`
	Schedules     []Schedule       `json:"schedules,omitempty"`
	OutOfHoursMsg string           `json:"outOfHoursMessage,omitempty"`
	SessionBlob   []byte           `json:"-"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Contact é a parte externa da conversa, único por (RemoteID, CompanyID).
type Contact struct {
	ID           string     `json:"id"`
	RemoteID     string     `json:"remoteId"`
	Name         string     `json:"name"`
	CompanyID    string     `json:"companyId"`
	IsGroup      bool       `json:"isGroup"`
	DisableBot   bool       `json:"disableBot"`
	AcceptedLGPD *time.Time `json:"lgpdAcceptedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Ticket é um fio de conversa entre um Contact e uma Connection.
// No máximo um ticket open/pending por (Contact, Connection).
type Ticket struct {
	ID                     string       `json:"id"`
	Status                 TicketStatus `json:"status"`
	CompanyID              string       `json:"companyId"`
	ContactID              string       `json:"contactId"`
	ConnectionID           string       `json:"connectionId"`
	QueueID                string       `json:"queueId,omitempty"`
	UserID                 string       `json:"userId,omitempty"`
	IntegrationID          string       `json:"integrationId,omitempty"`
	UseIntegration         bool         `json:"useIntegration"`
	ChatbotQueueID         string       `json:"chatbotQueueId,omitempty"` // fila cujo sub-menu foi apresentado
	FlowWebhookID          string       `json:"flowWebhookId,omitempty"`  // ponteiro de retomada de fluxo pausado
	FlowStoppedAt          string       `json:"flowStoppedAt,omitempty"`  // nó onde o fluxo parou
	IsGroup                bool         `json:"isGroup"`
	IsBotClosed            bool         `json:"isBot"`
	IsOutOfHour            bool         `json:"isOutOfHour"`
	FromMe                 bool         `json:"fromMe"`
	LastMessage            string       `json:"lastMessage,omitempty"`
	AmountUsedBotQueues    int          `json:"amountUsedBotQueues"`
	AmountUsedBotQueuesNPS int          `json:"amountUsedBotQueuesNPS"`
	CreatedAt              time.Time    `json:"createdAt"`
	UpdatedAt              time.Time    `json:"updatedAt"`
}

// TicketTracking acompanha o ciclo de vida de bot/avaliação de um Ticket.
type TicketTracking struct {
	ID         string     `json:"id"`
	TicketID   string     `json:"ticketId"`
	CompanyID  string     `json:"companyId"`
	UserID     string     `json:"userId,omitempty"`
	ChatbotAt  *time.Time `json:"chatbotAt,omitempty"`
	RatingAt   *time.Time `json:"ratingAt,omitempty"`
	ClosedAt   *time.Time `json:"closedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type AckStatus string

const (
	AckPending   AckStatus = "pending"
	AckSent      AckStatus = "sent"
	AckDelivered AckStatus = "delivered"
	AckRead      AckStatus = "read"
	AckDeleted   AckStatus = "deleted"
)

// Message é uma mensagem persistida. WID é o id do transporte, único por
// (WID, CompanyID). Imutável depois de gravada, exceto ack e edição.
type Message struct {
	ID        string    `json:"id"`
	WID       string    `json:"wid"`
	TicketID  string    `json:"ticketId"`
	ContactID string    `json:"contactId,omitempty"`
	CompanyID string    `json:"companyId"`
	Body      string    `json:"body"`
	MediaType string    `json:"mediaType"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	Ack       AckStatus `json:"ack"`
	FromMe    bool      `json:"fromMe"`
	IsEdited  bool      `json:"isEdited"`
	IsDeleted bool      `json:"isDeleted"`
	QuotedWID string    `json:"quotedWid,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Queue é um destino de roteamento (departamento).
type Queue struct {
	ID            string        `json:"id"`
	CompanyID     string        `json:"companyId"`
	Name          string        `json:"name"`
	Greeting      string        `json:"greetingMessage,omitempty"`
	OutOfHoursMsg string        `json:"outOfHoursMessage,omitempty"`
	ScheduleType  ScheduleType  `json:"scheduleType,omitempty"`
	Schedules     []Schedule    `json:"schedules,omitempty"`
	IntegrationID string        `json:"integrationId,omitempty"`
	CloseTicket   bool          `json:"closeTicket"`
	AttachmentURL string        `json:"attachmentUrl,omitempty"`
	Options       []QueueOption `json:"options,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// QueueOption é uma entrada ordenada do sub-menu chatbot de uma Queue,
// selecionável por índice 1-based.
type QueueOption struct {
	ID       string `json:"id"`
	QueueID  string `json:"queueId"`
	Title    string `json:"title"`
	Message  string `json:"message,omitempty"`
	Position int    `json:"position"`
}

// QueueIntegration configura um backend de automação. Type é imutável
// depois de criado.
type QueueIntegration struct {
	ID            string          `json:"id"`
	CompanyID     string          `json:"companyId"`
	Name          string          `json:"name"`
	Type          IntegrationType `json:"type"`
	BaseURL       string          `json:"baseUrl,omitempty"`
	APIKey        string          `json:"-"`
	Prompt        string          `json:"prompt,omitempty"`
	Model         string          `json:"model,omitempty"`
	MaxTokens     int             `json:"maxTokens,omitempty"`
	Temperature   float64         `json:"temperature,omitempty"`
	MaxMessages   int             `json:"maxMessages,omitempty"`
	TypebotSlug   string          `json:"typebotSlug,omitempty"`
	FlowID        string          `json:"flowId,omitempty"`
	WebhookURL    string          `json:"webhookUrl,omitempty"`
	WebhookSecret string          `json:"-"`
	DelayMs       int             `json:"delayMs,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// UserRating é a avaliação NPS registrada depois do fechamento.
type UserRating struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticketId"`
	CompanyID string    `json:"companyId"`
	UserID    string    `json:"userId,omitempty"`
	Rate      int       `json:"rate"`
	CreatedAt time.Time `json:"createdAt"`
}

// User é um agente humano. O CRUD de usuários fica fora deste serviço;
// aqui só o necessário para atribuição de tickets e avaliação.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CompanyID string    `json:"companyId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Flow é um fluxo low-code: grafo dirigido de nós ligados por conexões.
type Flow struct {
	ID        string           `json:"id"`
	CompanyID string           `json:"companyId"`
	Name      string           `json:"name"`
	Nodes     []FlowNode       `json:"nodes"`
	Edges     []FlowConnection `json:"connections"`
	// Frases que disparam o fluxo em conversas novas; primeira da lista vence.
	TriggerPhrases []string  `json:"triggerPhrases,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type FlowNodeKind string

const (
	FlowNodeStart    FlowNodeKind = "start"
	FlowNodeMessage  FlowNodeKind = "message"
	FlowNodeQuestion FlowNodeKind = "question"
	FlowNodeTransfer FlowNodeKind = "transfer"
	FlowNodeEnd      FlowNodeKind = "end"
)

type FlowNode struct {
	ID      string       `json:"id"`
	Kind    FlowNodeKind `json:"kind"`
	Text    string       `json:"text,omitempty"`
	QueueID string       `json:"queueId,omitempty"`
}

type FlowConnection struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// EnvelopeLog é a cópia bruta de auditoria de cada envelope recebido.
type EnvelopeLog struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"companyId"`
	ConnectionID string    `json:"connectionId"`
	WID          string    `json:"wid"`
	Payload      string    `json:"payload"`
	CreatedAt    time.Time `json:"createdAt"`
}
