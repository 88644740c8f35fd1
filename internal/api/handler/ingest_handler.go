package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/pipeline"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/transport"
)

// IngestHandler é a segunda forma de transporte: envelopes entregues por
// HTTP em lote, no mesmo formato serializado usado pela auditoria.
type IngestHandler struct {
	connections storage.ConnectionRepository
	gateway     *pipeline.Gateway
	log         *zap.Logger
}

func NewIngestHandler(connections storage.ConnectionRepository, gateway *pipeline.Gateway, log *zap.Logger) *IngestHandler {
	return &IngestHandler{connections: connections, gateway: gateway, log: log}
}

func (h *IngestHandler) Register(r *gin.RouterGroup) {
	r.POST("/ingest/:connectionId", h.IngestMessages)
	r.POST("/ingest/:connectionId/ack", h.IngestAcks)
}

type ingestRequest struct {
	Envelopes []json.RawMessage `json:"envelopes" binding:"required"`
}

type ackRequest struct {
	Updates []ackUpdate `json:"updates" binding:"required"`
}

type ackUpdate struct {
	WID       string    `json:"wid" binding:"required"`
	Status    string    `json:"status" binding:"required"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *IngestHandler) IngestMessages(c *gin.Context) {
	connectionID := c.Param("connectionId")
	conn, err := h.connections.GetByID(c.Request.Context(), connectionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conexão não encontrada"})
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	envs := make([]transport.Envelope, 0, len(req.Envelopes))
	rejected := 0
	for _, raw := range req.Envelopes {
		env, err := transport.DecodeEnvelope(raw)
		if err != nil || env.WID == "" {
			rejected++
			h.log.Warn("ingest: envelope ilegível descartado",
				zap.String("connectionId", connectionID), zap.Error(err))
			continue
		}
		// identidade vem da rota autenticada, nunca do corpo
		env.ConnectionID = conn.ID
		env.CompanyID = conn.CompanyID
		if env.Timestamp.IsZero() {
			env.Timestamp = time.Now()
		}
		envs = append(envs, env)
	}

	h.gateway.Ingest(c.Request.Context(), envs)

	c.JSON(http.StatusAccepted, gin.H{
		"accepted": len(envs),
		"rejected": rejected,
	})
}

func (h *IngestHandler) IngestAcks(c *gin.Context) {
	connectionID := c.Param("connectionId")
	conn, err := h.connections.GetByID(c.Request.Context(), connectionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conexão não encontrada"})
		return
	}

	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, upd := range req.Updates {
		ts := upd.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		h.gateway.IngestAck(c.Request.Context(), transport.StatusUpdate{
			WID:          upd.WID,
			ConnectionID: conn.ID,
			CompanyID:    conn.CompanyID,
			Status:       upd.Status,
			Timestamp:    ts,
		})
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Updates)})
}
