package api

import (
	"net/http"

	"dealer-service/internal/service"

	"github.com/gin-gonic/gin"
)

// AddInventoryRequest registers a vehicle instance in the central warehouse
type AddInventoryRequest struct {
	VehicleInstanceID int64 `json:"vehicleInstanceId" binding:"required"`
}

func (h *Handler) listPromotions(c *gin.Context) {
	list, err := h.svc.Promotions.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promotions": nonNil(list)})
}

func (h *Handler) createPromotion(c *gin.Context) {
	var req service.PromotionRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.svc.Promotions.Create(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updatePromotion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.PromotionRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.svc.Promotions.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) listCentralInventory(c *gin.Context) {
	list, err := h.svc.Inventory.ListCentral(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": nonNil(list)})
}

func (h *Handler) addCentralInventory(c *gin.Context) {
	var req AddInventoryRequest
	if !bind(c, &req) {
		return
	}
	item, err := h.svc.Inventory.AddCentral(c.Request.Context(), req.VehicleInstanceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// listTransitions returns the status history journaled for one entity
func (h *Handler) listTransitions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Journal.ListTransitions(c.Request.Context(), c.Param("entity"), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitions": nonNil(list)})
}
