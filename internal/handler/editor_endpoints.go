package handler

import (
	"net/http"
	"strconv"
	"time"

	"vibedoc-server/internal/editor"
	"vibedoc-server/internal/model"
	"vibedoc-server/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// createSession разбирает готовый план на секции и открывает сессию
// редактирования с TTL.
func (h *PlanHandler) createSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	content := req.Content
	planID := ""
	if req.PlanID != "" {
		plan, err := h.planRepo.GetByID(c.Request.Context(), req.PlanID)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		if plan.Status != model.PlanStatusCompleted || plan.Content == "" {
			c.JSON(http.StatusConflict, model.ErrorResponse{Error: "plan is not completed yet"})
			return
		}
		content = plan.Content
		planID = plan.ID
	}
	if content == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "either planId or content is required"})
		return
	}

	session := &repository.EditSession{
		ID:        uuid.NewString(),
		PlanID:    planID,
		Document:  editor.Parse(content),
		CreatedAt: time.Now(),
	}
	if err := h.sessionRepo.Save(c.Request.Context(), session); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.logger.Info("Edit session created",
		zap.String("sessionID", session.ID),
		zap.String("planID", planID),
		zap.Int("sections", len(session.Document.Sections)))
	c.JSON(http.StatusCreated, session)
}

// getSession возвращает сессию со всеми секциями.
func (h *PlanHandler) getSession(c *gin.Context) {
	session, err := h.sessionRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// updateSection заменяет содержимое одной секции и продлевает TTL сессии.
func (h *PlanHandler) updateSection(c *gin.Context) {
	sectionID, err := strconv.Atoi(c.Param("sectionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "section id must be an integer"})
		return
	}

	var req UpdateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	session, err := h.sessionRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if err := editor.UpdateSection(session.Document, sectionID, req.Content); err != nil {
		h.handleServiceError(c, err)
		return
	}
	if err := h.sessionRepo.Save(c.Request.Context(), session); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// resetSection откатывает секцию к исходному содержимому.
func (h *PlanHandler) resetSection(c *gin.Context) {
	sectionID, err := strconv.Atoi(c.Param("sectionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "section id must be an integer"})
		return
	}

	session, err := h.sessionRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if err := editor.ResetSection(session.Document, sectionID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	if err := h.sessionRepo.Save(c.Request.Context(), session); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// resetSession откатывает все секции сессии к исходному содержимому.
func (h *PlanHandler) resetSession(c *gin.Context) {
	session, err := h.sessionRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	editor.Reset(session.Document)

	if err := h.sessionRepo.Save(c.Request.Context(), session); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// getDocument собирает отредактированный документ из секций.
func (h *PlanHandler) getDocument(c *gin.Context) {
	session, err := h.sessionRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, DocumentResponse{
		SessionID: session.ID,
		PlanID:    session.PlanID,
		Content:   editor.Rebuild(session.Document),
	})
}

// deleteSession закрывает сессию редактирования.
func (h *PlanHandler) deleteSession(c *gin.Context) {
	if err := h.sessionRepo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
