package whatsmeow

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sync"

	_ "github.com/lib/pq" // PostgreSQL driver for WhatsMeow sessions
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

// MessageHandler recebe o lote de envelopes normalizados de uma Connection.
type MessageHandler func(ctx context.Context, envelopes []transport.Envelope)

// AckHandler recebe o lote de atualizações de status (caminho paralelo).
type AckHandler func(ctx context.Context, updates []transport.StatusUpdate)

type session struct {
	client       *whatsmeow.Client
	connectionID string
	companyID    string
}

// Manager mantém um binding de transporte por Connection: normaliza eventos
// recebidos em envelopes e executa os envios de saída com simulação de
// digitação. Exatamente um client ativo por Connection id.
type Manager struct {
	mu             sync.RWMutex
	sessions       map[string]*session
	connectionRepo storage.ConnectionRepository
	onMessage      MessageHandler
	onAck          AckHandler
	pgConnString   string
	log            *zap.Logger
}

type noopLogger struct{}

func (n *noopLogger) Warnf(msg string, args ...interface{})  {}
func (n *noopLogger) Errorf(msg string, args ...interface{}) {}
func (n *noopLogger) Infof(msg string, args ...interface{})  {}
func (n *noopLogger) Debugf(msg string, args ...interface{}) {}
func (n *noopLogger) Sub(module string) waLog.Logger         { return n }

func NewManager(connectionRepo storage.ConnectionRepository, pgConnString string, log *zap.Logger) *Manager {
	return &Manager{
		sessions:       make(map[string]*session),
		connectionRepo: connectionRepo,
		pgConnString:   pgConnString,
		log:            log,
	}
}

func (m *Manager) SetHandlers(onMessage MessageHandler, onAck AckHandler) {
	m.onMessage = onMessage
	m.onAck = onAck
}

// StartSession abre (ou reusa) o binding da Connection. Se o device ainda
// não está pareado, devolve o QR inicial como PNG base64.
func (m *Manager) StartSession(ctx context.Context, conn model.Connection) (qrPNG string, err error) {
	m.mu.Lock()
	if _, exists := m.sessions[conn.ID]; exists {
		m.mu.Unlock()
		return "", nil
	}
	m.mu.Unlock()

	container, err := sqlstore.New(ctx, "postgres", m.pgConnString, &noopLogger{})
	if err != nil {
		return "", fmt.Errorf("transport: sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return "", fmt.Errorf("transport: device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, &noopLogger{})
	sess := &session{client: client, connectionID: conn.ID, companyID: conn.CompanyID}
	client.AddEventHandler(func(evt interface{}) {
		m.handleEvent(sess, evt)
	})

	m.mu.Lock()
	m.sessions[conn.ID] = sess
	m.mu.Unlock()

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return "", fmt.Errorf("transport: qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return "", fmt.Errorf("transport: connect: %w", err)
		}
		for item := range qrChan {
			if item.Event == "code" {
				png, err := qrcode.Encode(item.Code, qrcode.Medium, 256)
				if err != nil {
					return "", fmt.Errorf("transport: qr encode: %w", err)
				}
				return base64.StdEncoding.EncodeToString(png), nil
			}
			break
		}
		return "", nil
	}

	if err := client.Connect(); err != nil {
		return "", fmt.Errorf("transport: connect: %w", err)
	}

	m.log.Info("transport: sessão conectada",
		zap.String("connection_id", conn.ID),
		zap.String("company_id", conn.CompanyID),
	)
	return "", nil
}

func (m *Manager) StopSession(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[connectionID]; ok {
		sess.client.Disconnect()
		delete(m.sessions, connectionID)
	}
}

func (m *Manager) sessionFor(connectionID string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[connectionID]
	if !ok {
		return nil, fmt.Errorf("transport: sessão não encontrada para conexão %s", connectionID)
	}
	return sess, nil
}

func (m *Manager) handleEvent(sess *session, evt interface{}) {
	ctx := context.Background()

	switch e := evt.(type) {
	case *events.Message:
		env := m.normalizeMessage(sess, e)
		if m.onMessage != nil {
			m.onMessage(ctx, []transport.Envelope{env})
		}
	case *events.Receipt:
		updates := m.normalizeReceipt(sess, e)
		if len(updates) > 0 && m.onAck != nil {
			m.onAck(ctx, updates)
		}
	case *events.Connected:
		if err := m.connectionRepo.UpdateStatus(ctx, sess.connectionID, model.ConnectionStatusConnected); err != nil {
			m.log.Warn("transport: erro ao atualizar status da conexão", zap.Error(err))
		}
	case *events.Disconnected, *events.LoggedOut:
		if err := m.connectionRepo.UpdateStatus(ctx, sess.connectionID, model.ConnectionStatusDisconnected); err != nil {
			m.log.Warn("transport: erro ao atualizar status da conexão", zap.Error(err))
		}
	}
}

// normalizeMessage decodifica o conteúdo UMA vez na borda, na união
// etiquetada de transport.Content.
func (m *Manager) normalizeMessage(sess *session, evt *events.Message) transport.Envelope {
	// Se o remetente for um LID, o número real está em SenderAlt
	senderJID := evt.Info.Sender
	if senderJID.Server == types.HiddenUserServer && !evt.Info.SenderAlt.IsEmpty() {
		senderJID = evt.Info.SenderAlt
	}

	env := transport.Envelope{
		WID:          evt.Info.ID,
		ConnectionID: sess.connectionID,
		CompanyID:    sess.companyID,
		RemoteID:     senderJID.ToNonAD().String(),
		SenderName:   evt.Info.PushName,
		FromMe:       evt.Info.IsFromMe,
		IsGroup:      evt.Info.IsGroup,
		Timestamp:    evt.Info.Timestamp,
	}
	if evt.Info.IsGroup {
		env.GroupID = evt.Info.Chat.String()
	}

	msg := evt.Message
	switch {
	case msg.GetConversation() != "":
		env.Content = transport.Text{Body: msg.GetConversation()}
	case msg.GetExtendedTextMessage() != nil:
		ext := msg.GetExtendedTextMessage()
		env.Content = transport.Text{Body: ext.GetText()}
		if ctxInfo := ext.GetContextInfo(); ctxInfo != nil {
			env.QuotedWID = ctxInfo.GetStanzaID()
		}
	case msg.GetProtocolMessage() != nil:
		pm := msg.GetProtocolMessage()
		switch pm.GetType() {
		case waE2E.ProtocolMessage_MESSAGE_EDIT:
			env.Content = transport.Edit{
				TargetWID: pm.GetKey().GetID(),
				NewBody:   pm.GetEditedMessage().GetConversation(),
			}
		case waE2E.ProtocolMessage_REVOKE:
			env.StubType = transport.StubRevoke
			env.Content = transport.Unknown{TypeName: "revoke"}
		default:
			env.StubType = transport.StubCiphertext
			env.Content = transport.Unknown{TypeName: pm.GetType().String()}
		}
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		env.Content = transport.Media{MediaKind: "image", Caption: img.GetCaption(), Mimetype: img.GetMimetype()}
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		env.Content = transport.Media{MediaKind: "video", Caption: vid.GetCaption(), Mimetype: vid.GetMimetype()}
	case msg.GetAudioMessage() != nil:
		env.Content = transport.Media{MediaKind: "audio", Mimetype: msg.GetAudioMessage().GetMimetype()}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		env.Content = transport.Media{MediaKind: "document", Caption: doc.GetTitle(), Mimetype: doc.GetMimetype()}
	case msg.GetStickerMessage() != nil:
		env.Content = transport.Media{MediaKind: "sticker", Mimetype: msg.GetStickerMessage().GetMimetype()}
	default:
		env.Content = transport.Unknown{TypeName: "unhandled"}
	}

	return env
}

func (m *Manager) normalizeReceipt(sess *session, evt *events.Receipt) []transport.StatusUpdate {
	var status string
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		status = "delivered"
	case types.ReceiptTypeRead:
		status = "read"
	default:
		return nil
	}

	updates := make([]transport.StatusUpdate, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		updates = append(updates, transport.StatusUpdate{
			WID:          id,
			ConnectionID: sess.connectionID,
			CompanyID:    sess.companyID,
			Status:       status,
			Timestamp:    evt.Timestamp,
		})
	}
	return updates
}

// SendText simula digitação antes do envio, como um atendente faria.
func (m *Manager) SendText(ctx context.Context, connectionID, to, body string) (string, error) {
	sess, err := m.sessionFor(connectionID)
	if err != nil {
		return "", err
	}

	toJID, err := types.ParseJID(to)
	if err != nil {
		return "", fmt.Errorf("transport: jid inválido %q: %w", to, err)
	}

	_ = sess.client.SendChatPresence(ctx, toJID, types.ChatPresenceComposing, types.ChatPresenceMediaText)
	defer func() {
		_ = sess.client.SendChatPresence(ctx, toJID, types.ChatPresencePaused, types.ChatPresenceMediaText)
	}()

	resp, err := sess.client.SendMessage(ctx, toJID, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("transport: send: %w", err)
	}
	return resp.ID, nil
}

// SendAttachment baixa o anexo referenciado e o entrega como documento.
func (m *Manager) SendAttachment(ctx context.Context, connectionID, to, url, caption string) (string, error) {
	sess, err := m.sessionFor(connectionID)
	if err != nil {
		return "", err
	}

	toJID, err := types.ParseJID(to)
	if err != nil {
		return "", fmt.Errorf("transport: jid inválido %q: %w", to, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("transport: anexo: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport: anexo: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("transport: anexo: %w", err)
	}
	mimetype := resp.Header.Get("Content-Type")

	uploaded, err := sess.client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return "", fmt.Errorf("transport: upload: %w", err)
	}

	sendResp, err := sess.client.SendMessage(ctx, toJID, &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			Mimetype:      proto.String(mimetype),
			Caption:       proto.String(caption),
		},
	})
	if err != nil {
		return "", fmt.Errorf("transport: send attachment: %w", err)
	}
	return sendResp.ID, nil
}

var _ transport.Sender = (*Manager)(nil)
