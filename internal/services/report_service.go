package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"poupa/internal/core"
	applog "poupa/internal/log"
	"poupa/internal/ports"
)

const reportSystemPrompt = "You are a personal finance assistant. Write a short report in Brazilian Portuguese " +
	"about the user's transactions for the given period: highlight where the money went, " +
	"compare income with spending and investments, and suggest one concrete improvement. " +
	"Use plain text without markdown tables."

// ErrAsyncUnavailable is returned by RequestAsync when no publisher is wired.
var ErrAsyncUnavailable = errors.New("asynchronous reports are not available")

// Report is the generated text plus the figures it was built from.
type Report struct {
	Range       core.DateRange        `json:"range"`
	Summary     core.DashboardSummary `json:"summary"`
	Text        string                `json:"text"`
	GeneratedAt time.Time             `json:"generatedAt"`
}

type ReportService struct {
	store     ports.TransactionReader
	generator ports.TextGenerator
	publisher ports.EventPublisher
	now       func() time.Time
}

// NewReportService wires the collaborators. generator and publisher may be
// nil; Generate then fails and RequestAsync returns ErrAsyncUnavailable.
func NewReportService(store ports.TransactionReader, generator ports.TextGenerator, publisher ports.EventPublisher) *ReportService {
	return &ReportService{
		store:     store,
		generator: generator,
		publisher: publisher,
		now:       time.Now,
	}
}

// Generate builds a report for userID over rng. Both range ends are
// required. Generation failures of any kind surface as
// core.ErrGenerationFailed.
func (s *ReportService) Generate(ctx context.Context, userID string, rng core.DateRange) (Report, error) {
	if strings.TrimSpace(userID) == "" {
		return Report{}, core.ErrMissingUser
	}
	if rng.IsZero() {
		return Report{}, core.ErrMissingDateRange
	}
	if rng.Start.After(rng.End) {
		return Report{}, core.ErrInvalidDateRange
	}

	txs, err := s.store.List(ctx, userID, rng)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}
	summary := core.Summarize(txs)

	if s.generator == nil {
		return Report{}, fmt.Errorf("%w: no text generator configured", core.ErrGenerationFailed)
	}

	text, err := s.generator.Generate(ctx, reportSystemPrompt, BuildReportPrompt(rng, summary, txs))
	if err != nil {
		slog.ErrorContext(ctx, "Report generation failed",
			applog.FieldUserID, userID,
			applog.FieldRange, rng.String(),
			applog.FieldError, err)
		if errors.Is(err, core.ErrGenerationFailed) {
			return Report{}, err
		}
		return Report{}, fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)
	}

	slog.InfoContext(ctx, "Report generated",
		applog.FieldUserID, userID,
		applog.FieldRange, rng.String(),
		"transactions", len(txs))

	return Report{
		Range:       rng,
		Summary:     summary,
		Text:        text,
		GeneratedAt: s.now(),
	}, nil
}

// RequestAsync queues a report for the worker to generate and deliver.
func (s *ReportService) RequestAsync(ctx context.Context, req ports.ReportRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return core.ErrMissingUser
	}
	if req.Range.IsZero() {
		return core.ErrMissingDateRange
	}
	if s.publisher == nil {
		return ErrAsyncUnavailable
	}
	if err := s.publisher.PublishReportRequest(ctx, req); err != nil {
		return fmt.Errorf("queue report request: %w", err)
	}
	return nil
}

// AsyncAvailable reports whether RequestAsync can queue work.
func (s *ReportService) AsyncAvailable() bool {
	return s.publisher != nil
}

// BuildReportPrompt renders the period, the totals and every transaction as
// plain text for the text generator.
func BuildReportPrompt(rng core.DateRange, summary core.DashboardSummary, txs []core.Transaction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Period: %s to %s\n", rng.Start.Format(time.DateOnly), rng.End.Format(time.DateOnly))
	fmt.Fprintf(&b, "Deposits: %s (%d%%)\n", core.FormatBRL(summary.DepositsTotal), summary.TypesPercentage.Deposit)
	fmt.Fprintf(&b, "Expenses: %s (%d%%)\n", core.FormatBRL(summary.ExpensesTotal), summary.TypesPercentage.Expense)
	fmt.Fprintf(&b, "Investments: %s (%d%%)\n", core.FormatBRL(summary.InvestmentsTotal), summary.TypesPercentage.Investment)
	fmt.Fprintf(&b, "Balance: %s\n", core.FormatBRL(summary.Balance))

	if len(summary.TotalExpensePerCategory) > 0 {
		b.WriteString("\nExpenses by category:\n")
		for _, c := range summary.TotalExpensePerCategory {
			fmt.Fprintf(&b, "- %s: %s (%d%%)\n", c.Category.Label(), core.FormatBRL(c.TotalAmount), c.PercentageOfTotal)
		}
	}

	b.WriteString("\nTransactions:\n")
	if len(txs) == 0 {
		b.WriteString("(none)\n")
	}
	for _, tx := range txs {
		fmt.Fprintf(&b, "- %s | %s | %s | %s | %s | %s\n",
			tx.Date.Format(time.DateOnly),
			tx.Type,
			tx.Category,
			tx.PaymentMethod,
			tx.Name,
			core.FormatBRL(tx.Amount))
	}

	return b.String()
}
