package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"poupa/internal/core"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 64 << 10

// errBadRequest marks malformed requests (bad JSON, conflicting params).
var errBadRequest = errors.New("bad request")

// ParseRangeQuery reads the optional date filter of list and dashboard
// requests: either month=YYYY-MM or start=YYYY-MM-DD&end=YYYY-MM-DD. No
// parameters means all time.
func ParseRangeQuery(query url.Values, loc *time.Location) (core.DateRange, error) {
	month := strings.TrimSpace(query.Get("month"))
	start := strings.TrimSpace(query.Get("start"))
	end := strings.TrimSpace(query.Get("end"))

	if month != "" {
		if start != "" || end != "" {
			return core.DateRange{}, fmt.Errorf("%w: month cannot be combined with start or end", errBadRequest)
		}
		return core.MonthRange(month, loc)
	}
	return core.ParseDateRange(start, end, loc)
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields
// and bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body larger than %d bytes", errBadRequest, maxErr.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errBadRequest)
		default:
			return fmt.Errorf("%w: %s", errBadRequest, err.Error())
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: body must hold a single JSON object", errBadRequest)
	}
	return nil
}

// transactionRequest is the wire shape of a new transaction. Dates are
// calendar days (YYYY-MM-DD) or RFC 3339 timestamps.
type transactionRequest struct {
	Name          string               `json:"name"`
	Amount        decimal.Decimal      `json:"amount"`
	Type          core.TransactionType `json:"type"`
	Category      core.Category        `json:"category"`
	PaymentMethod core.PaymentMethod   `json:"paymentMethod"`
	Date          string               `json:"date"`
}

func (req transactionRequest) toInput(loc *time.Location) (core.TransactionInput, error) {
	in := core.TransactionInput{
		Name:          sanitizeInput(req.Name),
		Amount:        req.Amount,
		Type:          req.Type,
		Category:      req.Category,
		PaymentMethod: req.PaymentMethod,
	}
	if strings.TrimSpace(req.Date) != "" {
		d, err := core.ParseDay(strings.TrimSpace(req.Date), loc)
		if err != nil {
			return core.TransactionInput{}, err
		}
		in.Date = d
	}
	return in, nil
}

type patchRequest struct {
	Name          *string               `json:"name"`
	Amount        *decimal.Decimal      `json:"amount"`
	Type          *core.TransactionType `json:"type"`
	Category      *core.Category        `json:"category"`
	PaymentMethod *core.PaymentMethod   `json:"paymentMethod"`
	Date          *string               `json:"date"`
}

func (req patchRequest) toPatch(loc *time.Location) (core.TransactionPatch, error) {
	patch := core.TransactionPatch{
		Amount:        req.Amount,
		Type:          req.Type,
		Category:      req.Category,
		PaymentMethod: req.PaymentMethod,
	}
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		patch.Name = &name
	}
	if req.Date != nil {
		d, err := core.ParseDay(strings.TrimSpace(*req.Date), loc)
		if err != nil {
			return core.TransactionPatch{}, err
		}
		patch.Date = &d
	}
	return patch, nil
}

type reportRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
