package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"poupa/internal/core"
)

func TestParseRangeQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    string
		wantErr error
	}{
		{name: "no params means all time", query: url.Values{}, want: "all time"},
		{name: "month", query: url.Values{"month": {"2024-02"}}, want: "2024-02-01..2024-02-29"},
		{name: "start and end", query: url.Values{"start": {"2024-01-10"}, "end": {"2024-01-20"}}, want: "2024-01-10..2024-01-20"},
		{name: "single day", query: url.Values{"start": {"2024-01-10"}, "end": {"2024-01-10"}}, want: "2024-01-10..2024-01-10"},
		{name: "only start", query: url.Values{"start": {"2024-01-10"}}, wantErr: core.ErrMissingDateRange},
		{name: "reversed", query: url.Values{"start": {"2024-01-20"}, "end": {"2024-01-10"}}, wantErr: core.ErrInvalidDateRange},
		{name: "bad month", query: url.Values{"month": {"2024-13"}}, wantErr: core.ErrInvalidMonth},
		{name: "month and start", query: url.Values{"month": {"2024-02"}, "start": {"2024-02-01"}}, wantErr: errBadRequest},
		{name: "bad day", query: url.Values{"start": {"10/01/2024"}, "end": {"2024-01-20"}}, wantErr: core.ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRangeQuery(tt.query, time.UTC)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("range = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"startDate":"2024-01-01","endDate":"2024-01-31"}`},
		{name: "empty body", body: ``, wantErr: true},
		{name: "unknown field", body: `{"startDate":"2024-01-01","foo":1}`, wantErr: true},
		{name: "two objects", body: `{"startDate":"a"}{"startDate":"b"}`, wantErr: true},
		{name: "malformed", body: `{"startDate":`, wantErr: true},
		{name: "too large", body: `{"startDate":"` + strings.Repeat("x", maxBodyBytes) + `"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(tt.body))
			var got reportRequest
			err := decodeJSON(httptest.NewRecorder(), req, &got)
			if tt.wantErr {
				if !errors.Is(err, errBadRequest) {
					t.Fatalf("err = %v, want bad request", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.StartDate != "2024-01-01" || got.EndDate != "2024-01-31" {
				t.Errorf("decoded %+v", got)
			}
		})
	}
}

func TestTransactionRequestToInput(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata not available")
	}

	req := transactionRequest{
		Name:          "  Feira\x00 ",
		Type:          core.Expense,
		Category:      core.CategoryFood,
		PaymentMethod: core.PaymentPix,
		Date:          "2024-03-05",
	}
	in, err := req.toInput(loc)
	if err != nil {
		t.Fatalf("toInput: %v", err)
	}
	if in.Name != "Feira" {
		t.Errorf("name = %q", in.Name)
	}
	if want := time.Date(2024, 3, 5, 0, 0, 0, 0, loc); !in.Date.Equal(want) {
		t.Errorf("date = %v, want %v", in.Date, want)
	}

	req.Date = "05/03/2024"
	if _, err := req.toInput(loc); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("err = %v, want ErrInvalidDate", err)
	}

	req.Date = ""
	in, err = req.toInput(loc)
	if err != nil || !in.Date.IsZero() {
		t.Errorf("blank date should stay zero for validation, got %v, %v", in.Date, err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"  normal text  ":   "normal text",
		"with\x00null":      "withnull",
		"tab\tand\nnewline": "tab\tand\nnewline",
		"bell\x07char":      "bellchar",
		"Almoço de domingo": "Almoço de domingo",
	}
	for in, want := range tests {
		if got := sanitizeInput(in); got != want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}
