package ticket_api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-club-ticketing/internal/auth"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
	"ms-club-ticketing/internal/utils"
)

type TicketService interface {
	Checkin(ctx context.Context, req models.CheckinRequest) (models.CheckinResponse, error)
	Issue(ctx context.Context, req models.IssueTicketRequest) (*models.Ticket, error)
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	QRCode(ctx context.Context, id string) ([]byte, error)
	OrderTickets(ctx context.Context, orderID string) ([]*models.Ticket, error)
}

type Handler struct {
	TicketService TicketService
	Logger        *logger.Logger
}

func NewHandler(svc TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: svc, Logger: log}
}

// Routes mounts check-in and ticket endpoints. The operator middleware is
// applied only to this group.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Operator(h.Logger))
		r.Post("/checkin", h.Checkin)
		r.Post("/ingressos", h.Issue)
		r.Get("/ingressos/{id}", h.GetTicket)
		r.Get("/ingressos/{id}/qrcode.png", h.QRCode)
		r.Get("/pedidos/{id}/ingressos", h.OrderTickets)
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	utils.WriteError(w, err)
}

// Checkin always answers 200 for a decided outcome, including USED and
// INVALID. Only malformed requests and store outages are errors.
func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	var req models.CheckinRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Checkin", err)
		return
	}
	if req.Operator == "" {
		req.Operator = auth.OperatorID(r.Context())
	}

	res, err := h.TicketService.Checkin(r.Context(), req)
	if err != nil {
		h.fail(w, "Checkin", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req models.IssueTicketRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Issue", err)
		return
	}
	ticket, err := h.TicketService.Issue(r.Context(), req)
	if err != nil {
		h.fail(w, "Issue", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, models.IssueTicketResponse{
		TicketID: ticket.ID,
		Token:    ticket.Token,
		QRPngURL: "/ingressos/" + ticket.ID + "/qrcode.png",
	})
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "GetTicket", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, ticket)
}

func (h *Handler) OrderTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.TicketService.OrderTickets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "OrderTickets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, tickets)
}

func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	img, err := h.TicketService.QRCode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "QRCode", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}
