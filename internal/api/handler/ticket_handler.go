package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/service/routing"
	"github.com/open-zapdesk/zapdesk/internal/storage"
	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

// TicketHandler expõe as ações de agente que disparam transições do motor:
// aceitar, encerrar (com ou sem convite de avaliação).
type TicketHandler struct {
	tickets     storage.TicketRepository
	contacts    storage.ContactRepository
	connections storage.ConnectionRepository
	engine      *routing.Engine
	log         *zap.Logger
}

func NewTicketHandler(
	tickets storage.TicketRepository,
	contacts storage.ContactRepository,
	connections storage.ConnectionRepository,
	engine *routing.Engine,
	log *zap.Logger,
) *TicketHandler {
	return &TicketHandler{
		tickets:     tickets,
		contacts:    contacts,
		connections: connections,
		engine:      engine,
		log:         log,
	}
}

func (h *TicketHandler) Register(r *gin.RouterGroup) {
	r.GET("/tickets/:ticketId", h.Get)
	r.PUT("/tickets/:ticketId/accept", h.Accept)
	r.PUT("/tickets/:ticketId/close", h.Close)
}

func (h *TicketHandler) Get(c *gin.Context) {
	ticket, err := h.tickets.GetByID(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket não encontrado"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

type acceptRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// Accept atribui o agente e tira o bot do caminho da conversa.
func (h *TicketHandler) Accept(c *gin.Context) {
	ticket, err := h.tickets.GetByID(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket não encontrado"})
		return
	}

	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket.UserID = req.UserID
	ticket.Status = model.TicketStatusOpen
	ticket.UseIntegration = false
	ticket.ChatbotQueueID = ""
	updated, err := h.tickets.Update(c.Request.Context(), ticket)
	if err != nil {
		h.log.Error("ticket: falha ao aceitar", zap.String("ticketId", ticket.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "não foi possível aceitar o ticket"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

type closeRequest struct {
	UserID        string `json:"userId"`
	RequestRating bool   `json:"requestRating"`
}

// Close encerra o atendimento. Com requestRating o ticket vai para o estado
// de avaliação e o contato recebe o convite de nota.
func (h *TicketHandler) Close(c *gin.Context) {
	ctx := c.Request.Context()
	ticket, err := h.tickets.GetByID(ctx, c.Param("ticketId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket não encontrado"})
		return
	}

	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID != "" {
		ticket.UserID = req.UserID
	}

	if req.RequestRating {
		contact, cerr := h.contacts.GetByID(ctx, ticket.ContactID)
		if cerr != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "contato do ticket não encontrado"})
			return
		}
		conn, cerr := h.connections.GetByID(ctx, ticket.ConnectionID)
		if cerr != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "conexão do ticket não encontrada"})
			return
		}
		if err := h.engine.BeginRating(ctx, ticket, contact, conn); err != nil {
			h.log.Error("ticket: falha ao iniciar avaliação",
				zap.String("ticketId", ticket.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "não foi possível iniciar a avaliação"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ticketId": ticket.ID, "status": "nps"})
		return
	}

	if err := h.engine.CloseByAgent(ctx, ticket); err != nil {
		h.log.Error("ticket: falha ao encerrar", zap.String("ticketId", ticket.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "não foi possível encerrar o ticket"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticketId": ticket.ID, "status": "closed"})
}
