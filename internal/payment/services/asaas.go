package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/config"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
)

// AsaasClient creates charges at the Asaas gateway.
type AsaasClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

func NewAsaasClient(cfg config.AsaasConfig, log *logger.Logger) *AsaasClient {
	return &AsaasClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

type asaasErrors struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (c *AsaasClient) CreateCharge(ctx context.Context, charge ChargeRequest) (*models.GatewayCharge, error) {
	body, err := json.Marshal(charge)
	if err != nil {
		return nil, fmt.Errorf("encode charge: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		c.log.Error("ASAAS", fmt.Sprintf("charge for %s failed: %v", charge.ExternalReference, err))
		return nil, apperr.Unavailable("payment gateway", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, apperr.Unavailable("payment gateway", err)
	}

	switch {
	case res.StatusCode >= 500:
		c.log.Error("ASAAS", fmt.Sprintf("gateway answered %d for %s", res.StatusCode, charge.ExternalReference))
		return nil, apperr.Unavailable("payment gateway", fmt.Errorf("status %d", res.StatusCode))
	case res.StatusCode >= 400:
		var ge asaasErrors
		msg := fmt.Sprintf("gateway rejected the charge (%d)", res.StatusCode)
		if json.Unmarshal(raw, &ge) == nil && len(ge.Errors) > 0 {
			msg = ge.Errors[0].Description
		}
		c.log.Warn("ASAAS", fmt.Sprintf("charge for %s rejected: %s", charge.ExternalReference, msg))
		return nil, apperr.Validation("payment", msg)
	}

	var out models.GatewayCharge
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Unavailable("payment gateway", fmt.Errorf("decode charge: %w", err))
	}
	c.log.Info("ASAAS", fmt.Sprintf("charge %s created for %s via %s", out.ID, charge.ExternalReference, charge.BillingType))
	return &out, nil
}
