package services

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"poupa/internal/core"
)

type CommandKind int

const (
	CommandHelp CommandKind = iota
	CommandAdd
	CommandDelete
	CommandSummary
	CommandReport
)

// Command is a parsed chat message.
type Command struct {
	Kind  CommandKind
	Input core.TransactionInput // CommandAdd
	Name  string                // CommandDelete
	Range core.DateRange        // CommandSummary, CommandReport
}

var (
	helpWords    = []string{"help", "ajuda", "start", "?"}
	summaryWords = []string{"summary", "resumo", "saldo"}
	reportWords  = []string{"report", "relatorio", "relatório"}
	deleteWords  = []string{"delete", "remove", "apagar", "remover"}
	addWords     = map[string]core.TransactionType{
		"add":       core.Expense,
		"gasto":     core.Expense,
		"despesa":   core.Expense,
		"+":         core.Deposit,
		"deposit":   core.Deposit,
		"entrada":   core.Deposit,
		"recebi":    core.Deposit,
		"invest":    core.Investment,
		"investi":   core.Investment,
		"aplicacao": core.Investment,
		"aplicação": core.Investment,
	}

	paymentWords = map[string]core.PaymentMethod{
		"pix":      core.PaymentPix,
		"dinheiro": core.PaymentCash,
		"cash":     core.PaymentCash,
		"credito":  core.PaymentCreditCard,
		"crédito":  core.PaymentCreditCard,
		"credit":   core.PaymentCreditCard,
		"debito":   core.PaymentDebitCard,
		"débito":   core.PaymentDebitCard,
		"debit":    core.PaymentDebitCard,
		"boleto":   core.PaymentBankSlip,
		"ted":      core.PaymentBankTransfer,
		"vr":       core.PaymentMealTicket,
		"va":       core.PaymentFoodTicket,
	}

	// Checked in order; the first rule with a matching word wins.
	categoryRules = []struct {
		category core.Category
		words    []string
	}{
		{core.CategorySalary, []string{"salario", "salário", "salary", "pagamento", "freela"}},
		{core.CategoryFood, []string{"mercado", "supermercado", "restaurante", "lanche", "ifood", "pizza", "padaria", "comida", "almoço", "almoco", "jantar", "café", "cafe", "food"}},
		{core.CategoryTransportation, []string{"uber", "99", "taxi", "táxi", "onibus", "ônibus", "metro", "metrô", "gasolina", "combustivel", "combustível", "estacionamento", "transport"}},
		{core.CategoryHousing, []string{"aluguel", "condominio", "condomínio", "iptu", "rent", "casa"}},
		{core.CategoryUtility, []string{"luz", "agua", "água", "energia", "internet", "telefone", "celular", "gas", "gás"}},
		{core.CategoryHealth, []string{"farmacia", "farmácia", "remedio", "remédio", "medico", "médico", "dentista", "consulta", "plano", "health"}},
		{core.CategoryEducation, []string{"curso", "escola", "faculdade", "livro", "mensalidade", "education"}},
		{core.CategoryEntertainment, []string{"cinema", "netflix", "spotify", "show", "bar", "jogo", "viagem", "festa"}},
	}
)

// ParseCommand turns a chat message into a Command. now fixes the date of
// new transactions and the default month for summaries and reports; its
// location is used for every calendar-day computation.
//
// Accepted forms:
//
//	help | ajuda
//	resumo [YYYY-MM]
//	relatorio [YYYY-MM-DD YYYY-MM-DD]
//	apagar <name>
//	add|+|invest <amount> <name> [pix|credito|...]
//	<amount> <name>                 (expense)
func ParseCommand(text string, now time.Time) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Command{}, core.ErrUnknownCommand
	}
	head := strings.ToLower(fields[0])
	args := fields[1:]
	loc := now.Location()

	switch {
	case matches(helpWords, head):
		return Command{Kind: CommandHelp}, nil

	case matches(summaryWords, head):
		rng, err := monthOrArg(args, now)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandSummary, Range: rng}, nil

	case matches(reportWords, head):
		switch len(args) {
		case 0, 1:
			rng, err := monthOrArg(args, now)
			if err != nil {
				return Command{}, err
			}
			return Command{Kind: CommandReport, Range: rng}, nil
		case 2:
			rng, err := core.ParseDateRange(args[0], args[1], loc)
			if err != nil {
				return Command{}, err
			}
			return Command{Kind: CommandReport, Range: rng}, nil
		default:
			return Command{}, fmt.Errorf("%w: report takes a month or two dates", core.ErrUnknownCommand)
		}

	case matches(deleteWords, head):
		name := strings.Join(args, " ")
		if name == "" {
			return Command{}, core.ErrEmptyName
		}
		return Command{Kind: CommandDelete, Name: name}, nil
	}

	if txType, ok := addWords[head]; ok {
		return parseAdd(txType, args, now)
	}
	if len(head) > 1 && strings.HasPrefix(head, "+") {
		return parseAdd(core.Deposit, append([]string{head[1:]}, args...), now)
	}
	if _, err := core.ParseAmount(fields[0]); err == nil {
		return parseAdd(core.Expense, fields, now)
	}

	return Command{}, core.ErrUnknownCommand
}

func parseAdd(txType core.TransactionType, args []string, now time.Time) (Command, error) {
	if len(args) == 0 {
		return Command{}, core.ErrInvalidAmount
	}
	amount, err := core.ParseAmount(args[0])
	if err != nil {
		return Command{}, err
	}

	payment := core.PaymentOther
	nameParts := make([]string, 0, len(args)-1)
	for _, w := range args[1:] {
		if pm, ok := paymentWords[strings.ToLower(w)]; ok && payment == core.PaymentOther {
			payment = pm
			continue
		}
		nameParts = append(nameParts, w)
	}
	name := strings.Join(nameParts, " ")
	if name == "" {
		return Command{}, core.ErrEmptyName
	}

	return Command{
		Kind: CommandAdd,
		Input: core.TransactionInput{
			Name:          name,
			Amount:        amount,
			Type:          txType,
			Category:      GuessCategory(name, txType),
			PaymentMethod: payment,
			Date:          now,
		},
	}, nil
}

// GuessCategory picks a category from keywords in name. Deposits only ever
// resolve to SALARY or OTHER.
func GuessCategory(name string, txType core.TransactionType) core.Category {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, rule := range categoryRules {
		for _, w := range words {
			if !matches(rule.words, w) {
				continue
			}
			if txType == core.Deposit && rule.category != core.CategorySalary {
				continue
			}
			return rule.category
		}
	}
	return core.CategoryOther
}

func monthOrArg(args []string, now time.Time) (core.DateRange, error) {
	if len(args) == 0 {
		return core.MonthRange(now.Format("2006-01"), now.Location())
	}
	return core.MonthRange(args[0], now.Location())
}

func matches(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}
