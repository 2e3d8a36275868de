package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// LastTransactionsLimit caps the recent-activity list of a summary.
const LastTransactionsLimit = 10

var hundred = decimal.NewFromInt(100)

type (
	// TypesPercentage is the share of each type in the overall volume, as
	// whole-number percentages. The three values need not sum to 100.
	TypesPercentage struct {
		Deposit    int64 `json:"DEPOSIT"`
		Expense    int64 `json:"EXPENSE"`
		Investment int64 `json:"INVESTMENT"`
	}

	// CategoryTotal is one row of the expense breakdown.
	CategoryTotal struct {
		Category          Category        `json:"category"`
		TotalAmount       decimal.Decimal `json:"totalAmount"`
		PercentageOfTotal int64           `json:"percentageOfTotal"`
	}

	// DashboardSummary is derived from a set of transactions and never stored.
	DashboardSummary struct {
		DepositsTotal           decimal.Decimal `json:"depositsTotal"`
		ExpensesTotal           decimal.Decimal `json:"expensesTotal"`
		InvestmentsTotal        decimal.Decimal `json:"investmentsTotal"`
		Balance                 decimal.Decimal `json:"balance"`
		TransactionsTotal       decimal.Decimal `json:"transactionsTotal"`
		TypesPercentage         TypesPercentage `json:"typesPercentage"`
		TotalExpensePerCategory []CategoryTotal `json:"totalExpensePerCategory"`
		LastTransactions        []Transaction   `json:"lastTransactions"`
	}
)

// Get returns the percentage recorded for t, or 0 for an unknown type.
func (p TypesPercentage) Get(t TransactionType) int64 {
	switch t {
	case Deposit:
		return p.Deposit
	case Expense:
		return p.Expense
	case Investment:
		return p.Investment
	}
	return 0
}

// Percentage returns round_half_up(100 * part / total), or 0 when total is
// zero. Inputs are non-negative, so the result lies in [0, 100] whenever
// part <= total.
func Percentage(part, total decimal.Decimal) int64 {
	if total.IsZero() {
		return 0
	}
	// DivRound keeps enough precision that the final half-up step sees the
	// exact .5 boundary for any cent-denominated inputs.
	return part.Mul(hundred).DivRound(total, 16).Round(0).IntPart()
}

// Summarize folds one user's transactions into dashboard figures. It is a
// pure function: the input slice is never modified, and the same input always
// yields the same summary.
//
// The expense breakdown is ordered by total descending, then category name,
// and only contains categories that have at least one expense.
func Summarize(txs []Transaction) DashboardSummary {
	var deposits, expenses, investments decimal.Decimal
	perCategory := make(map[Category]decimal.Decimal)

	for _, tx := range txs {
		switch tx.Type {
		case Deposit:
			deposits = deposits.Add(tx.Amount)
		case Expense:
			expenses = expenses.Add(tx.Amount)
			perCategory[tx.Category] = perCategory[tx.Category].Add(tx.Amount)
		case Investment:
			investments = investments.Add(tx.Amount)
		}
	}

	total := deposits.Add(expenses).Add(investments)

	breakdown := make([]CategoryTotal, 0, len(perCategory))
	for cat, amount := range perCategory {
		breakdown = append(breakdown, CategoryTotal{
			Category:          cat,
			TotalAmount:       amount,
			PercentageOfTotal: Percentage(amount, expenses),
		})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if c := breakdown[i].TotalAmount.Cmp(breakdown[j].TotalAmount); c != 0 {
			return c > 0
		}
		return breakdown[i].Category < breakdown[j].Category
	})

	return DashboardSummary{
		DepositsTotal:     deposits,
		ExpensesTotal:     expenses,
		InvestmentsTotal:  investments,
		Balance:           deposits.Sub(expenses).Sub(investments),
		TransactionsTotal: total,
		TypesPercentage: TypesPercentage{
			Deposit:    Percentage(deposits, total),
			Expense:    Percentage(expenses, total),
			Investment: Percentage(investments, total),
		},
		TotalExpensePerCategory: breakdown,
		LastTransactions:        LastTransactions(txs, LastTransactionsLimit),
	}
}

// LastTransactions returns up to limit transactions, newest first. Equal
// dates keep their input order.
func LastTransactions(txs []Transaction, limit int) []Transaction {
	sorted := make([]Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
