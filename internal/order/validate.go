package order

import (
	"fmt"
	"strings"
	"unicode"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/models"
	rediswrap "ms-club-ticketing/internal/order/redis"
)

// keyUnsafe holds the characters that would alter a hold key or a SCAN
// pattern built from an id.
const keyUnsafe = ":*?[]\\"

func validateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation(field, "is required")
	}
	if strings.ContainsAny(id, keyUnsafe) {
		return apperr.Validation(field, "contains reserved characters")
	}
	return nil
}

func validateHold(req models.HoldRequest) error {
	if err := validateID("eventId", req.EventID); err != nil {
		return err
	}
	if err := validateID("sectorId", req.SectorID); err != nil {
		return err
	}
	if req.Quantity <= 0 {
		return apperr.Validation("quantity", "must be a positive integer")
	}
	return nil
}

// validTaxID accepts an 11 digit CPF or 14 digit CNPJ, punctuation ignored.
func validTaxID(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == '-' || r == '/' || r == ' ':
		default:
			return false
		}
	}
	return digits == 11 || digits == 14
}

func validateItems(items []models.OrderItemRequest) error {
	if len(items) == 0 {
		return apperr.Validation("items", "at least one item is required")
	}
	for i := range items {
		it := &items[i]
		field := fmt.Sprintf("items[%d]", i)
		if it.Category == "" {
			it.Category = models.CategoryFull
		}
		if err := validateID(field+".eventId", it.EventID); err != nil {
			return err
		}
		if err := validateID(field+".sectorId", it.SectorID); err != nil {
			return err
		}
		switch {
		case it.Quantity <= 0:
			return apperr.Validation(field+".quantity", "must be a positive integer")
		case !it.Category.Valid():
			return apperr.Validation(field+".category", "must be FULL or HALF")
		case it.Price.IsNegative():
			return apperr.Validation(field+".price", "must not be negative")
		case len(it.Holders) > it.Quantity:
			return apperr.Validation(field+".holders", "more holders than seats")
		}
		for j, h := range it.Holders {
			if strings.TrimSpace(h.Name) == "" {
				return apperr.Validation(fmt.Sprintf("%s.holders[%d].name", field, j), "is required")
			}
			if !validTaxID(h.TaxID) {
				return apperr.Validation(fmt.Sprintf("%s.holders[%d].taxId", field, j), "must be a CPF or CNPJ")
			}
		}
	}
	return nil
}

func validatePatch(p models.OrderLinePatch) error {
	if p.Category != nil && !p.Category.Valid() {
		return apperr.Validation("category", "must be FULL or HALF")
	}
	if p.Price != nil && p.Price.IsNegative() {
		return apperr.Validation("price", "must not be negative")
	}
	if p.HolderTaxID != nil && *p.HolderTaxID != "" && !validTaxID(*p.HolderTaxID) {
		return apperr.Validation("holderTaxId", "must be a CPF or CNPJ")
	}
	return nil
}

// demand sums requested seats per (event, sector).
func demand(items []models.OrderItemRequest) map[rediswrap.Pair]int {
	out := make(map[rediswrap.Pair]int)
	for _, it := range items {
		out[rediswrap.Pair{EventID: it.EventID, SectorID: it.SectorID}] += it.Quantity
	}
	return out
}

func lineDemand(lines []*models.OrderLine) map[rediswrap.Pair]int {
	out := make(map[rediswrap.Pair]int)
	for _, l := range lines {
		out[rediswrap.Pair{EventID: l.EventID, SectorID: l.SectorID}]++
	}
	return out
}

func pairsOf(d map[rediswrap.Pair]int) []rediswrap.Pair {
	pairs := make([]rediswrap.Pair, 0, len(d))
	for p := range d {
		pairs = append(pairs, p)
	}
	return rediswrap.SortedPairs(pairs)
}
