package core

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseDate = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func tx(id string, typ TransactionType, cat Category, amount string, date time.Time) Transaction {
	return Transaction{
		ID:            id,
		Name:          "tx " + id,
		Amount:        decimal.RequireFromString(amount),
		Type:          typ,
		Category:      cat,
		PaymentMethod: PaymentPix,
		Date:          date,
		UserID:        "user-1",
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSummarize_Empty(t *testing.T) {
	for name, in := range map[string][]Transaction{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			s := Summarize(in)

			assert.True(t, s.DepositsTotal.IsZero())
			assert.True(t, s.ExpensesTotal.IsZero())
			assert.True(t, s.InvestmentsTotal.IsZero())
			assert.True(t, s.Balance.IsZero())
			assert.True(t, s.TransactionsTotal.IsZero())
			assert.Equal(t, TypesPercentage{}, s.TypesPercentage)

			require.NotNil(t, s.TotalExpensePerCategory)
			require.NotNil(t, s.LastTransactions)
			assert.Empty(t, s.TotalExpensePerCategory)
			assert.Empty(t, s.LastTransactions)
		})
	}
}

func TestSummarize_TypeTotalsAndPercentages(t *testing.T) {
	in := []Transaction{
		tx("1", Deposit, CategorySalary, "1000", baseDate),
		tx("2", Expense, CategoryFood, "300", baseDate.Add(time.Hour)),
		tx("3", Investment, CategoryOther, "200", baseDate.Add(2*time.Hour)),
	}

	s := Summarize(in)

	assert.True(t, s.Balance.Equal(dec("500")), "balance %s", s.Balance)
	assert.True(t, s.DepositsTotal.Equal(dec("1000")))
	assert.True(t, s.ExpensesTotal.Equal(dec("300")))
	assert.True(t, s.InvestmentsTotal.Equal(dec("200")))
	assert.True(t, s.TransactionsTotal.Equal(dec("1500")))
	assert.Equal(t, TypesPercentage{Deposit: 67, Expense: 20, Investment: 13}, s.TypesPercentage)
}

func TestSummarize_CategoryBreakdown(t *testing.T) {
	in := []Transaction{
		tx("1", Expense, CategoryFood, "100", baseDate),
		tx("2", Expense, CategoryFood, "50", baseDate),
		tx("3", Expense, CategoryHousing, "50", baseDate),
		tx("4", Deposit, CategorySalary, "999", baseDate),
	}

	s := Summarize(in)

	require.True(t, s.ExpensesTotal.Equal(dec("200")))
	require.Len(t, s.TotalExpensePerCategory, 2)

	got := map[Category]CategoryTotal{}
	for _, c := range s.TotalExpensePerCategory {
		got[c.Category] = c
	}
	assert.True(t, got[CategoryFood].TotalAmount.Equal(dec("150")))
	assert.Equal(t, int64(75), got[CategoryFood].PercentageOfTotal)
	assert.True(t, got[CategoryHousing].TotalAmount.Equal(dec("50")))
	assert.Equal(t, int64(25), got[CategoryHousing].PercentageOfTotal)

	// Largest category first.
	assert.Equal(t, CategoryFood, s.TotalExpensePerCategory[0].Category)
}

func TestSummarize_CategoryOrderTieBreak(t *testing.T) {
	in := []Transaction{
		tx("1", Expense, CategoryTransportation, "10", baseDate),
		tx("2", Expense, CategoryEducation, "10", baseDate),
		tx("3", Expense, CategoryHealth, "10", baseDate),
	}

	s := Summarize(in)

	var order []Category
	for _, c := range s.TotalExpensePerCategory {
		order = append(order, c.Category)
	}
	assert.Equal(t, []Category{CategoryEducation, CategoryHealth, CategoryTransportation}, order)
}

func TestSummarize_LastTransactionsLimitAndOrder(t *testing.T) {
	var in []Transaction
	for i := 0; i < 15; i++ {
		in = append(in, tx(fmt.Sprint(i), Expense, CategoryFood, "1", baseDate.AddDate(0, 0, i)))
	}

	s := Summarize(in)

	require.Len(t, s.LastTransactions, LastTransactionsLimit)
	for i, got := range s.LastTransactions {
		assert.Equal(t, fmt.Sprint(14-i), got.ID)
	}
}

func TestSummarize_LastTransactionsTiesKeepInputOrder(t *testing.T) {
	in := []Transaction{
		tx("a", Expense, CategoryFood, "1", baseDate),
		tx("b", Deposit, CategorySalary, "1", baseDate.Add(time.Hour)),
		tx("c", Expense, CategoryFood, "1", baseDate),
		tx("d", Expense, CategoryFood, "1", baseDate),
	}

	s := Summarize(in)

	var ids []string
	for _, got := range s.LastTransactions {
		ids = append(ids, got.ID)
	}
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
}

func TestSummarize_DoesNotMutateInput(t *testing.T) {
	in := []Transaction{
		tx("1", Expense, CategoryFood, "1", baseDate),
		tx("2", Expense, CategoryFood, "1", baseDate.AddDate(0, 0, 2)),
		tx("3", Expense, CategoryFood, "1", baseDate.AddDate(0, 0, 1)),
	}
	snapshot := append([]Transaction(nil), in...)

	_ = Summarize(in)

	assert.Equal(t, snapshot, in)
}

func TestSummarize_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	types := TransactionTypes()
	cats := Categories()

	for round := 0; round < 200; round++ {
		n := rng.Intn(40)
		in := make([]Transaction, 0, n)
		for i := 0; i < n; i++ {
			cents := rng.Int63n(1_000_000)
			in = append(in, Transaction{
				ID:       fmt.Sprintf("%d-%d", round, i),
				Amount:   FromCents(cents),
				Type:     types[rng.Intn(len(types))],
				Category: cats[rng.Intn(len(cats))],
				Date:     baseDate.Add(time.Duration(rng.Intn(72)) * time.Hour),
			})
		}

		s := Summarize(in)

		want := map[TransactionType]decimal.Decimal{}
		for _, tr := range in {
			want[tr.Type] = want[tr.Type].Add(tr.Amount)
		}
		require.True(t, s.DepositsTotal.Equal(want[Deposit]))
		require.True(t, s.ExpensesTotal.Equal(want[Expense]))
		require.True(t, s.InvestmentsTotal.Equal(want[Investment]))
		require.True(t, s.Balance.Equal(s.DepositsTotal.Sub(s.ExpensesTotal).Sub(s.InvestmentsTotal)))

		catSum := decimal.Zero
		for _, c := range s.TotalExpensePerCategory {
			catSum = catSum.Add(c.TotalAmount)
			require.GreaterOrEqual(t, c.PercentageOfTotal, int64(0))
			require.LessOrEqual(t, c.PercentageOfTotal, int64(100))
		}
		require.True(t, catSum.Equal(s.ExpensesTotal))

		for _, typ := range types {
			p := s.TypesPercentage.Get(typ)
			require.GreaterOrEqual(t, p, int64(0))
			require.LessOrEqual(t, p, int64(100))
			require.Equal(t, Percentage(want[typ], s.TransactionsTotal), p)
		}

		wantLen := n
		if wantLen > LastTransactionsLimit {
			wantLen = LastTransactionsLimit
		}
		require.Len(t, s.LastTransactions, wantLen)
		for i := 1; i < len(s.LastTransactions); i++ {
			require.False(t, s.LastTransactions[i].Date.After(s.LastTransactions[i-1].Date))
		}

		again := Summarize(in)
		require.True(t, reflect.DeepEqual(s, again), "summarize is not idempotent")
	}
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		part, total string
		want        int64
	}{
		{"0", "0", 0},
		{"5", "0", 0},
		{"0", "10", 0},
		{"1", "2", 50},
		{"1", "3", 33},
		{"2", "3", 67},
		{"1", "8", 13},   // 12.5 rounds up
		{"1", "200", 1},  // 0.5 rounds up
		{"1", "201", 0},  // 0.497...
		{"10", "10", 100},
		{"0.01", "0.03", 33},
	}
	for _, tc := range cases {
		got := Percentage(dec(tc.part), dec(tc.total))
		if got != tc.want {
			t.Fatalf("Percentage(%s, %s) = %d, want %d", tc.part, tc.total, got, tc.want)
		}
	}
}
