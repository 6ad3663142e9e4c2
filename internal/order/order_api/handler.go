package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
	"ms-club-ticketing/internal/utils"
)

type OrderService interface {
	Hold(ctx context.Context, req models.HoldRequest) (models.HoldResponse, error)
	Release(ctx context.Context, req models.HoldRequest) (models.ReleaseResponse, error)
	Peek(ctx context.Context, eventID string) (models.HoldSnapshot, error)
	Occupancy(ctx context.Context, eventID string) (models.Occupancy, error)
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	AddItems(ctx context.Context, orderID string, items []models.OrderItemRequest) (*models.Order, error)
	UpdateItem(ctx context.Context, orderID, lineID string, patch models.OrderLinePatch) (*models.Order, error)
	RemoveItem(ctx context.Context, orderID, lineID string) (*models.Order, error)
	Confirm(ctx context.Context, orderID, eventID string) (*models.Order, error)
}

type Handler struct {
	OrderService OrderService
	Logger       *logger.Logger
}

func NewHandler(svc OrderService, log *logger.Logger) *Handler {
	return &Handler{OrderService: svc, Logger: log}
}

// Routes registers flat paths so other handlers can add routes under the
// same prefixes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/reservas/segurar", h.Hold)
	r.Post("/reservas/liberar", h.Release)
	r.Get("/reservas/{eventId}", h.Peek)
	r.Get("/jogos/{eventId}/ocupacao", h.Occupancy)

	r.Post("/pedidos", h.CreateOrder)
	r.Get("/pedidos/{id}", h.GetOrder)
	r.Delete("/pedidos/{id}", h.DeleteOrder)
	r.Post("/pedidos/{id}/itens", h.AddItems)
	r.Patch("/pedidos/{id}/itens/{itemId}", h.UpdateItem)
	r.Delete("/pedidos/{id}/itens/{itemId}", h.RemoveItem)
	r.Post("/pedidos/{id}/confirmar", h.Confirm)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	utils.WriteError(w, err)
}

func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	var req models.HoldRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Hold", err)
		return
	}
	res, err := h.OrderService.Hold(r.Context(), req)
	if err != nil {
		h.fail(w, "Hold", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	var req models.HoldRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Release", err)
		return
	}
	res, err := h.OrderService.Release(r.Context(), req)
	if err != nil {
		h.fail(w, "Release", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// Peek answers with a bare sectorId -> count object.
func (h *Handler) Peek(w http.ResponseWriter, r *http.Request) {
	snap, err := h.OrderService.Peek(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, "Peek", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, snap.Sectors)
}

func (h *Handler) Occupancy(w http.ResponseWriter, r *http.Request) {
	occ, err := h.OrderService.Occupancy(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, "Occupancy", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, occ)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "CreateOrder", err)
		return
	}
	order, err := h.OrderService.CreateOrder(r.Context(), req)
	if err != nil {
		h.fail(w, "CreateOrder", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, models.CreateOrderResponse{OrderID: order.ID, Order: order})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.OrderService.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "GetOrder", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.OrderService.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "DeleteOrder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []models.OrderItemRequest `json:"items"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		h.fail(w, "AddItems", err)
		return
	}
	order, err := h.OrderService.AddItems(r.Context(), chi.URLParam(r, "id"), body.Items)
	if err != nil {
		h.fail(w, "AddItems", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch models.OrderLinePatch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		h.fail(w, "UpdateItem", err)
		return
	}
	order, err := h.OrderService.UpdateItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), patch)
	if err != nil {
		h.fail(w, "UpdateItem", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	order, err := h.OrderService.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		h.fail(w, "RemoveItem", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID string `json:"eventId"`
	}
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, "Confirm", apperr.Validation("body", "invalid JSON: "+err.Error()))
		return
	}
	order, err := h.OrderService.Confirm(r.Context(), chi.URLParam(r, "id"), body.EventID)
	if err != nil {
		h.fail(w, "Confirm", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("order reserved", map[string]interface{}{
		"orderId": order.ID,
		"status":  order.Status,
	}))
}
