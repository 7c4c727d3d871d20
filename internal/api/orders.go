package api

import (
	"net/http"

	"dealer-service/internal/lifecycle"
	"dealer-service/internal/models"
	"dealer-service/internal/service"

	"github.com/gin-gonic/gin"
)

type agencyOrderView struct {
	Order    *models.AgencyOrder `json:"order"`
	Actions  []lifecycle.Action  `json:"actions"`
	Terminal bool                `json:"terminal"`
}

func newAgencyOrderView(o *models.AgencyOrder) agencyOrderView {
	return agencyOrderView{
		Order:    o,
		Actions:  lifecycle.AgencyOrderActions(o.Status),
		Terminal: lifecycle.AgencyOrderTerminal(o.Status),
	}
}

// AllocateRequest is the instance selection for an agency order
type AllocateRequest struct {
	Selected []int64 `json:"selected" binding:"required"`
}

func (h *Handler) listAgencyOrders(c *gin.Context) {
	agencyID, ok := pathID(c, "agencyId")
	if !ok {
		return
	}
	list, err := h.svc.AgencyOrders.ListByAgency(c.Request.Context(), agencyID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": nonNil(list)})
}

func (h *Handler) getAgencyOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.svc.AgencyOrders.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAgencyOrderView(o))
}

func (h *Handler) allocationCandidates(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.AgencyOrders.Candidates(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": nonNil(list)})
}

func (h *Handler) confirmAgencyOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.agencyOrderResult(c)(h.svc.AgencyOrders.Confirm(c.Request.Context(), id, actor(c)))
}

func (h *Handler) allocateAgencyOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AllocateRequest
	if !bind(c, &req) {
		return
	}
	h.agencyOrderResult(c)(h.svc.AgencyOrders.Allocate(c.Request.Context(), id, req.Selected, actor(c)))
}

func (h *Handler) receiveAgencyOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.agencyOrderResult(c)(h.svc.AgencyOrders.ReceiveAll(c.Request.Context(), id, actor(c)))
}

func (h *Handler) cancelAgencyOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.agencyOrderResult(c)(h.svc.AgencyOrders.Cancel(c.Request.Context(), id, actor(c)))
}

func (h *Handler) agencyOrderResult(c *gin.Context) func(*models.AgencyOrder, error) {
	return func(o *models.AgencyOrder, err error) {
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newAgencyOrderView(o))
	}
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.Orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) listPayments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Orders.ListPayments(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": nonNil(list)})
}

func (h *Handler) signContract(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.ContractRequest
	if !bind(c, &req) {
		return
	}
	h.orderResult(c)(h.svc.Orders.SignContract(c.Request.Context(), id, &req, actor(c)))
}

func (h *Handler) recordPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.PaymentRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.Orders.RecordPayment(c.Request.Context(), id, &req, actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) recordDelivery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.DeliveryRequest
	if !bind(c, &req) {
		return
	}
	h.orderResult(c)(h.svc.Orders.RecordDelivery(c.Request.Context(), id, &req, actor(c)))
}

func (h *Handler) completeDelivery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.CompleteDeliveryRequest
	if !bind(c, &req) {
		return
	}
	h.orderResult(c)(h.svc.Orders.CompleteDelivery(c.Request.Context(), id, &req, actor(c)))
}

func (h *Handler) cancelOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.orderResult(c)(h.svc.Orders.Cancel(c.Request.Context(), id, actor(c)))
}

func (h *Handler) orderResult(c *gin.Context) func(*models.CustomerOrder, error) {
	return func(o *models.CustomerOrder, err error) {
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order":    o,
			"actions":  lifecycle.OrderActions(o.Status),
			"terminal": lifecycle.OrderTerminal(o.Status),
		})
	}
}
