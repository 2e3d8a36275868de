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

const helpText = `Comandos disponíveis:
- 25,90 uber: registra uma despesa
- add 120 mercado pix: registra uma despesa com forma de pagamento
- + 3000 salario: registra um depósito
- invest 500 tesouro: registra um investimento
- apagar uber: remove a transação mais recente com esse nome
- resumo [AAAA-MM]: resumo do mês
- relatorio [AAAA-MM-DD AAAA-MM-DD]: relatório do período
- ajuda: mostra esta mensagem`

// ChatService answers inbound chat messages on behalf of the sender.
type ChatService struct {
	users        ports.UserDirectory
	transactions *TransactionService
	dashboard    *DashboardService
	reports      *ReportService
	loc          *time.Location
	now          func() time.Time
}

func NewChatService(users ports.UserDirectory, transactions *TransactionService, dashboard *DashboardService, reports *ReportService, loc *time.Location) *ChatService {
	if loc == nil {
		loc = time.UTC
	}
	return &ChatService{
		users:        users,
		transactions: transactions,
		dashboard:    dashboard,
		reports:      reports,
		loc:          loc,
		now:          time.Now,
	}
}

// Handle resolves the sender, runs the command in text and returns the reply.
// Command and validation problems are answered in the reply; only
// infrastructure failures return an error.
func (s *ChatService) Handle(ctx context.Context, channel, address, text string) (string, error) {
	userID, err := s.users.FindOrCreateUser(ctx, channel, address)
	if err != nil {
		return "", fmt.Errorf("resolve chat user: %w", err)
	}

	cmd, err := ParseCommand(text, s.now().In(s.loc))
	if err != nil {
		slog.DebugContext(ctx, "Chat command rejected",
			applog.FieldUserID, userID,
			applog.FieldChannel, channel,
			applog.FieldError, err)
		return parseErrorReply(err), nil
	}

	switch cmd.Kind {
	case CommandAdd:
		tx, err := s.transactions.Create(ctx, userID, cmd.Input)
		if err != nil {
			return s.failureReply(ctx, err)
		}
		return fmt.Sprintf("Registrado: %s, %s (%s, %s)",
			tx.Name, core.FormatBRL(tx.Amount), tx.Type.Label(), tx.Category.Label()), nil

	case CommandDelete:
		tx, err := s.transactions.DeleteByName(ctx, userID, cmd.Name)
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Sprintf("Nenhuma transação encontrada com o nome %q.", cmd.Name), nil
		}
		if err != nil {
			return s.failureReply(ctx, err)
		}
		return fmt.Sprintf("Removido: %s, %s", tx.Name, core.FormatBRL(tx.Amount)), nil

	case CommandSummary:
		dash, err := s.dashboard.Summary(ctx, userID, cmd.Range)
		if err != nil {
			return s.failureReply(ctx, err)
		}
		return FormatSummaryReply(cmd.Range, dash.DashboardSummary), nil

	case CommandReport:
		if s.reports.AsyncAvailable() {
			err := s.reports.RequestAsync(ctx, ports.ReportRequest{
				UserID:  userID,
				Channel: channel,
				Address: address,
				Range:   cmd.Range,
			})
			if err == nil {
				return "Gerando seu relatório, ele chega em instantes.", nil
			}
			slog.WarnContext(ctx, "Queueing report failed, generating inline", applog.FieldError, err)
		}
		report, err := s.reports.Generate(ctx, userID, cmd.Range)
		if err != nil {
			return s.failureReply(ctx, err)
		}
		return report.Text, nil
	}

	return helpText, nil
}

func (s *ChatService) failureReply(ctx context.Context, err error) (string, error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return "Não entendi a transação: " + verr.Error(), nil
	case errors.Is(err, core.ErrGenerationFailed):
		return "Não foi possível gerar o relatório agora. Tente novamente mais tarde.", nil
	case errors.Is(err, core.ErrStorageUnavailable):
		slog.ErrorContext(ctx, "Chat command failed", applog.FieldError, err)
		return "Não foi possível carregar suas transações agora.", nil
	}
	return "", err
}

func parseErrorReply(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return "Valor inválido. Exemplo: 25,90 uber"
	case errors.Is(err, core.ErrEmptyName):
		return "Informe o nome da transação. Exemplo: 25,90 uber"
	case errors.Is(err, core.ErrInvalidMonth):
		return "Mês inválido. Use AAAA-MM, por exemplo 2025-03."
	case errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrInvalidDateRange), errors.Is(err, core.ErrMissingDateRange):
		return "Período inválido. Use AAAA-MM-DD AAAA-MM-DD com o início antes do fim."
	}
	return "Não entendi.\n" + helpText
}

// FormatSummaryReply renders a summary as a short chat message.
func FormatSummaryReply(rng core.DateRange, summary core.DashboardSummary) string {
	var b strings.Builder
	if rng.IsZero() {
		b.WriteString("Resumo geral\n")
	} else {
		fmt.Fprintf(&b, "Resumo de %s a %s\n", rng.Start.Format("02/01/2006"), rng.End.Format("02/01/2006"))
	}
	fmt.Fprintf(&b, "Depósitos: %s\n", core.FormatBRL(summary.DepositsTotal))
	fmt.Fprintf(&b, "Despesas: %s\n", core.FormatBRL(summary.ExpensesTotal))
	fmt.Fprintf(&b, "Investimentos: %s\n", core.FormatBRL(summary.InvestmentsTotal))
	fmt.Fprintf(&b, "Saldo: %s", core.FormatBRL(summary.Balance))

	for _, c := range summary.TotalExpensePerCategory {
		fmt.Fprintf(&b, "\n- %s: %s (%d%%)", c.Category.Label(), core.FormatBRL(c.TotalAmount), c.PercentageOfTotal)
	}
	return b.String()
}
