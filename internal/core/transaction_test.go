package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() TransactionInput {
	return TransactionInput{
		Name:          "Mercado",
		Amount:        dec("120.50"),
		Type:          Expense,
		Category:      CategoryFood,
		PaymentMethod: PaymentDebitCard,
		Date:          baseDate,
	}
}

func TestTransactionInputValidate(t *testing.T) {
	good := validInput()
	require.NoError(t, good.Validate())

	cases := map[string]struct {
		mutate func(*TransactionInput)
		field  string
	}{
		"empty name":     {func(in *TransactionInput) { in.Name = "   " }, "name"},
		"long name":      {func(in *TransactionInput) { in.Name = strings.Repeat("x", MaxNameLength+1) }, "name"},
		"negative":       {func(in *TransactionInput) { in.Amount = dec("-1") }, "amount"},
		"above max":      {func(in *TransactionInput) { in.Amount = dec("184467440737095517.16") }, "amount"},
		"bad type":       {func(in *TransactionInput) { in.Type = "TRANSFER" }, "type"},
		"bad category":   {func(in *TransactionInput) { in.Category = "PETS" }, "category"},
		"bad payment":    {func(in *TransactionInput) { in.PaymentMethod = "CHEQUE" }, "paymentMethod"},
		"missing date":   {func(in *TransactionInput) { in.Date = time.Time{} }, "date"},
		"missing method": {func(in *TransactionInput) { in.PaymentMethod = "" }, "paymentMethod"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)

			err := in.Validate()

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
			assert.Contains(t, ve.Fields, tc.field)
		})
	}
}

func TestTransactionInputToTransaction(t *testing.T) {
	in := validInput()
	in.Amount = dec("10.005")

	got := in.ToTransaction("u1")

	assert.Equal(t, "u1", got.UserID)
	assert.Empty(t, got.ID)
	assert.True(t, got.Amount.Equal(dec("10.01")))
	assert.NoError(t, got.Validate())
}

func TestTransactionPatchApply(t *testing.T) {
	created := baseDate.Add(-time.Hour)
	orig := validInput().ToTransaction("u1")
	orig.ID = "t1"
	orig.CreatedAt = created
	orig.UpdatedAt = created

	name := "Aluguel"
	amount := dec("1500")
	typ := Expense
	cat := CategoryHousing
	patch := TransactionPatch{Name: &name, Amount: &amount, Type: &typ, Category: &cat}
	require.NoError(t, patch.Validate())
	require.False(t, patch.IsEmpty())

	now := baseDate.Add(time.Hour)
	got := patch.Apply(orig, now)

	assert.Equal(t, "Aluguel", got.Name)
	assert.True(t, got.Amount.Equal(amount))
	assert.Equal(t, CategoryHousing, got.Category)
	assert.Equal(t, PaymentDebitCard, got.PaymentMethod)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, now, got.UpdatedAt)
	assert.Equal(t, "Mercado", orig.Name, "original must be untouched")
}

func TestTransactionPatchValidate(t *testing.T) {
	neg := decimal.NewFromInt(-3)
	bad := Category("PETS")
	blank := " "

	assert.True(t, IsValidation((&TransactionPatch{Amount: &neg}).Validate()))
	assert.True(t, IsValidation((&TransactionPatch{Category: &bad}).Validate()))
	assert.True(t, IsValidation((&TransactionPatch{Name: &blank}).Validate()))
	assert.NoError(t, (&TransactionPatch{}).Validate())
	assert.True(t, TransactionPatch{}.IsEmpty())

	huge := dec("1000000000000")
	err := (&TransactionPatch{Amount: &huge}).Validate()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "max", ve.Fields["amount"])
}

func TestNameLengthCountsCharacters(t *testing.T) {
	in := validInput()
	in.Name = strings.Repeat("ç", 150)
	require.NoError(t, in.Validate())
	assert.NoError(t, in.ToTransaction("u1").Validate())

	in.Name = strings.Repeat("ç", MaxNameLength+1)
	assert.True(t, IsValidation(in.Validate()))
	assert.True(t, IsValidation(in.ToTransaction("u1").Validate()))
}

func TestTransactionValidateBoundsAmount(t *testing.T) {
	tx := validInput().ToTransaction("u1")
	tx.Amount = MaxAmount
	require.NoError(t, tx.Validate())

	tx.Amount = MaxAmount.Add(dec("0.01"))
	err := tx.Validate()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "max", ve.Fields["amount"])
}

func TestEnumsAndLabels(t *testing.T) {
	assert.Len(t, TransactionTypes(), 3)
	assert.Len(t, Categories(), 9)
	assert.Len(t, PaymentMethods(), 9)

	assert.Equal(t, "Despesa", Expense.Label())
	assert.Equal(t, "Alimentação", CategoryFood.Label())
	assert.Equal(t, "Vale refeição", PaymentMealTicket.Label())
	assert.Equal(t, "UNKNOWN", Category("UNKNOWN").Label())

	typ, ok := ParseTransactionType(" deposit ")
	assert.True(t, ok)
	assert.Equal(t, Deposit, typ)
	_, ok = ParseCategory("pets")
	assert.False(t, ok)
	pm, ok := ParsePaymentMethod("pix")
	assert.True(t, ok)
	assert.Equal(t, PaymentPix, pm)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"name": "required", "amount": "min"}}
	assert.Equal(t, "validation failed: amount: min, name: required", err.Error())
}
