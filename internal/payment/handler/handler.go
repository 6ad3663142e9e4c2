package handler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
	"ms-club-ticketing/internal/payment/services"
	"ms-club-ticketing/internal/utils"
)

type PaymentService interface {
	StartPayment(ctx context.Context, orderID, remoteIP string, req models.PaymentRequest) (*models.Payment, error)
	ApplyStatus(ctx context.Context, evt models.PaymentStatusEvent) error
	ListPayments(ctx context.Context, orderID string) ([]*models.Payment, error)
}

type Handler struct {
	PaymentService PaymentService
	WebhookToken   string
	Logger         *logger.Logger
}

func NewHandler(svc PaymentService, webhookToken string, log *logger.Logger) *Handler {
	return &Handler{PaymentService: svc, WebhookToken: webhookToken, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/pedidos/{id}/pagamento", h.StartPayment)
	r.Get("/pedidos/{id}/pagamentos", h.ListPayments)
	r.Post("/webhooks/asaas", h.AsaasWebhook)
}

func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	payment, err := h.PaymentService.StartPayment(r.Context(), chi.URLParam(r, "id"), clientIP(r), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StartPayment: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, payment)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.PaymentService.ListPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, payments)
}

type asaasEvent struct {
	Event   string `json:"event"`
	Payment *struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		ConfirmedDate string `json:"confirmedDate"`
	} `json:"payment"`
}

// AsaasWebhook answers 200 for anything it has durably handled or chosen to
// ignore; the gateway redelivers on any other status.
func (h *Handler) AsaasWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("asaas-access-token")
	if h.WebhookToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.WebhookToken)) != 1 {
		h.Logger.LogSecurity("WEBHOOK_REJECTED", "invalid asaas-access-token from "+clientIP(r))
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorBody{Error: "invalid token"})
		return
	}

	var evt asaasEvent
	if err := utils.DecodeJSON(r, &evt); err != nil {
		utils.WriteError(w, err)
		return
	}
	if evt.Event == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorBody{Error: "event is required"})
		return
	}
	if !strings.HasPrefix(evt.Event, "PAYMENT_") || evt.Payment == nil || evt.Payment.ID == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := models.PaymentStatusEvent{
		GatewayPaymentID: evt.Payment.ID,
		Status:           services.MapGatewayStatus(evt.Payment.Status),
	}
	if at, err := time.Parse("2006-01-02", evt.Payment.ConfirmedDate); err == nil {
		status.ConfirmedAt = &at
	}

	if err := h.PaymentService.ApplyStatus(r.Context(), status); err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("%s for %s failed: %v", evt.Event, evt.Payment.ID, err))
		utils.WriteError(w, err)
		return
	}
	h.Logger.Info("WEBHOOK", fmt.Sprintf("%s applied to %s as %s", evt.Event, evt.Payment.ID, status.Status))
	w.WriteHeader(http.StatusOK)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
