package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/storage"
	whatsmeow_transport "github.com/open-zapdesk/zapdesk/internal/transport/whatsmeow"
)

// ConnectionHandler cobre o ciclo da sessão de transporte: parear via QR,
// consultar status e derrubar a sessão.
type ConnectionHandler struct {
	connections storage.ConnectionRepository
	manager     *whatsmeow_transport.Manager
	log         *zap.Logger
}

func NewConnectionHandler(connections storage.ConnectionRepository, manager *whatsmeow_transport.Manager, log *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, manager: manager, log: log}
}

func (h *ConnectionHandler) Register(r *gin.RouterGroup) {
	r.GET("/connections/:connectionId", h.Get)
	r.POST("/connections/:connectionId/start", h.Start)
	r.POST("/connections/:connectionId/stop", h.Stop)
}

func (h *ConnectionHandler) Get(c *gin.Context) {
	conn, err := h.connections.GetByID(c.Request.Context(), c.Param("connectionId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conexão não encontrada"})
		return
	}
	c.JSON(http.StatusOK, conn)
}

// Start abre (ou retoma) a sessão; quando o pareamento é necessário devolve
// o QR como PNG em base64.
func (h *ConnectionHandler) Start(c *gin.Context) {
	conn, err := h.connections.GetByID(c.Request.Context(), c.Param("connectionId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conexão não encontrada"})
		return
	}

	qr, err := h.manager.StartSession(c.Request.Context(), conn)
	if err != nil {
		h.log.Error("connection: falha ao iniciar sessão",
			zap.String("connectionId", conn.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "não foi possível iniciar a sessão"})
		return
	}

	resp := gin.H{"connectionId": conn.ID, "status": "starting"}
	if qr != "" {
		resp["qrcode"] = qr
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ConnectionHandler) Stop(c *gin.Context) {
	connectionID := c.Param("connectionId")
	if _, err := h.connections.GetByID(c.Request.Context(), connectionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conexão não encontrada"})
		return
	}
	h.manager.StopSession(connectionID)
	c.JSON(http.StatusOK, gin.H{"connectionId": connectionID, "status": "stopped"})
}
