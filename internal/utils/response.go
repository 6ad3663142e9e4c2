package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-club-ticketing/internal/apperr"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

type Shortage struct {
	EventID   string `json:"eventId"`
	SectorID  string `json:"sectorId"`
	Requested int    `json:"requested"`
	Remaining int    `json:"remaining"`
}

// ErrorBody is the JSON body of every non-2xx response. Capacity failures
// also carry the first short sector at the top level.
type ErrorBody struct {
	Error     string     `json:"error"`
	SectorID  string     `json:"sectorId,omitempty"`
	Remaining *int       `json:"remaining,omitempty"`
	Shortages []Shortage `json:"shortages,omitempty"`
}

// WriteJSON encodes body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteError maps err onto a status and a body. Internal failures are never
// described to the caller.
func WriteError(w http.ResponseWriter, err error) {
	status := apperr.StatusCode(err)
	body := ErrorBody{Error: err.Error()}

	switch status {
	case http.StatusInternalServerError:
		body.Error = "internal error"
	case http.StatusServiceUnavailable:
		var upstream *apperr.UpstreamUnavailableError
		if errors.As(err, &upstream) {
			body.Error = fmt.Sprintf("%s unavailable, try again", upstream.Service)
		}
	}

	if shortages := apperr.Shortages(err); len(shortages) > 0 {
		remaining := shortages[0].Remaining
		body.SectorID = shortages[0].SectorID
		body.Remaining = &remaining
		for _, s := range shortages {
			body.Shortages = append(body.Shortages, Shortage{
				EventID:   s.EventID,
				SectorID:  s.SectorID,
				Requested: s.Requested,
				Remaining: s.Remaining,
			})
		}
		if len(shortages) > 1 {
			body.Error = fmt.Sprintf("%d sectors do not have enough seats", len(shortages))
		}
	}

	WriteJSON(w, status, body)
}

// DecodeJSON reads the request body into dst, reporting failures as
// validation errors.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperr.Validation("body", "is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("body", "invalid JSON: "+err.Error())
	}
	return nil
}
