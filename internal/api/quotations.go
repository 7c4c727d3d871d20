package api

import (
	"context"
	"net/http"

	"dealer-service/internal/models"
	"dealer-service/internal/service"

	"github.com/gin-gonic/gin"
)

// quote runs the pricing engine without creating anything
func (h *Handler) quote(c *gin.Context) {
	var req service.QuoteRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.svc.Quotations.Quote(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listQuotationsByAgency(c *gin.Context) {
	agencyID, ok := pathID(c, "agencyId")
	if !ok {
		return
	}
	list, err := h.svc.Quotations.ListByAgency(c.Request.Context(), agencyID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotations": nonNil(list)})
}

func (h *Handler) listQuotationsByCreator(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	list, err := h.svc.Quotations.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotations": nonNil(list)})
}

func (h *Handler) getQuotation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := h.svc.Quotations.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, service.NewQuotationView(q, nil))
}

func (h *Handler) createQuotation(c *gin.Context) {
	var req service.CreateQuotationRequest
	if !bind(c, &req) {
		return
	}
	if req.CreatedBy == 0 {
		req.CreatedBy = actor(c)
	}

	view, err := h.svc.Quotations.Create(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) deleteQuotation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Quotations.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) approveQuotation(c *gin.Context) {
	h.quotationTransition(c, h.svc.Quotations.Approve)
}

func (h *Handler) rejectQuotation(c *gin.Context) {
	h.quotationTransition(c, h.svc.Quotations.Reject)
}

func (h *Handler) expireQuotation(c *gin.Context) {
	h.quotationTransition(c, h.svc.Quotations.Expire)
}

func (h *Handler) quotationTransition(c *gin.Context, apply func(ctx context.Context, id, actor int64) (*models.Quotation, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := apply(c.Request.Context(), id, actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, service.NewQuotationView(q, nil))
}

func (h *Handler) convertQuotation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Quotations.Convert(c.Request.Context(), id, actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// nonNil keeps empty lists as [] rather than null in responses
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
