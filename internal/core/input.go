package core

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// TransactionInput is the user-supplied shape of a new transaction, before
// an ID and audit timestamps are attached.
type TransactionInput struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type" validate:"required,oneof=DEPOSIT EXPENSE INVESTMENT"`
	Category      Category        `json:"category" validate:"required,oneof=FOOD HOUSING TRANSPORTATION ENTERTAINMENT HEALTH EDUCATION SALARY UTILITY OTHER"`
	PaymentMethod PaymentMethod   `json:"paymentMethod" validate:"required,oneof=CASH CREDIT_CARD DEBIT_CARD PIX BANK_TRANSFER BANK_SLIP FOOD_TICKET MEAL_TICKET OTHER"`
	Date          time.Time       `json:"date" validate:"required"`
}

// TransactionPatch carries a partial update; nil fields are left untouched.
type TransactionPatch struct {
	Name          *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Type          *TransactionType `json:"type,omitempty" validate:"omitempty,oneof=DEPOSIT EXPENSE INVESTMENT"`
	Category      *Category        `json:"category,omitempty" validate:"omitempty,oneof=FOOD HOUSING TRANSPORTATION ENTERTAINMENT HEALTH EDUCATION SALARY UTILITY OTHER"`
	PaymentMethod *PaymentMethod   `json:"paymentMethod,omitempty" validate:"omitempty,oneof=CASH CREDIT_CARD DEBIT_CARD PIX BANK_TRANSFER BANK_SLIP FOOD_TICKET MEAL_TICKET OTHER"`
	Date          *time.Time       `json:"date,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate runs the struct rules and the amount check. The returned error is
// always a *ValidationError.
func (in *TransactionInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	fields := structErrors(validatorInstance().Struct(in))
	if in.Amount.IsNegative() {
		fields = withField(fields, "amount", "min")
	} else if in.Amount.Round(2).GreaterThan(MaxAmount) {
		fields = withField(fields, "amount", "max")
	}
	if fields != nil {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ToTransaction builds a transaction owned by userID. ID and timestamps are
// left for the store to assign.
func (in TransactionInput) ToTransaction(userID string) Transaction {
	return Transaction{
		Name:          in.Name,
		Amount:        in.Amount.Round(2),
		Type:          in.Type,
		Category:      in.Category,
		PaymentMethod: in.PaymentMethod,
		Date:          in.Date,
		UserID:        userID,
	}
}

func (p *TransactionPatch) Validate() error {
	if p.Name != nil {
		trimmed := strings.TrimSpace(*p.Name)
		p.Name = &trimmed
	}
	fields := structErrors(validatorInstance().Struct(p))
	if p.Name != nil && *p.Name == "" {
		fields = withField(fields, "name", "required")
	}
	if p.Amount != nil {
		if p.Amount.IsNegative() {
			fields = withField(fields, "amount", "min")
		} else if p.Amount.Round(2).GreaterThan(MaxAmount) {
			fields = withField(fields, "amount", "max")
		}
	}
	if p.Date != nil && p.Date.IsZero() {
		fields = withField(fields, "date", "required")
	}
	if fields != nil {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Name == nil && p.Amount == nil && p.Type == nil &&
		p.Category == nil && p.PaymentMethod == nil && p.Date == nil
}

// Apply returns a copy of t with the patch fields applied. UpdatedAt is set
// to now; CreatedAt and ownership are preserved.
func (p TransactionPatch) Apply(t Transaction, now time.Time) Transaction {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Amount != nil {
		t.Amount = p.Amount.Round(2)
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.PaymentMethod != nil {
		t.PaymentMethod = *p.PaymentMethod
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	t.UpdatedAt = now
	return t
}

func structErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonFieldName(fe.Field())] = fe.Tag()
	}
	return fields
}

func withField(fields map[string]string, name, tag string) map[string]string {
	if fields == nil {
		fields = make(map[string]string)
	}
	fields[name] = tag
	return fields
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
