package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Deposit    TransactionType = "DEPOSIT"
	Expense    TransactionType = "EXPENSE"
	Investment TransactionType = "INVESTMENT"
)

const (
	CategoryFood           Category = "FOOD"
	CategoryHousing        Category = "HOUSING"
	CategoryTransportation Category = "TRANSPORTATION"
	CategoryEntertainment  Category = "ENTERTAINMENT"
	CategoryHealth         Category = "HEALTH"
	CategoryEducation      Category = "EDUCATION"
	CategorySalary         Category = "SALARY"
	CategoryUtility        Category = "UTILITY"
	CategoryOther          Category = "OTHER"
)

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentDebitCard    PaymentMethod = "DEBIT_CARD"
	PaymentPix          PaymentMethod = "PIX"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentBankSlip     PaymentMethod = "BANK_SLIP"
	PaymentFoodTicket   PaymentMethod = "FOOD_TICKET"
	PaymentMealTicket   PaymentMethod = "MEAL_TICKET"
	PaymentOther        PaymentMethod = "OTHER"
)

// MaxNameLength bounds the display label of a transaction, in characters.
const MaxNameLength = 200

type (
	TransactionType string
	Category        string
	PaymentMethod   string

	// Transaction is a single recorded financial event owned by one user.
	// Amount is always a non-negative magnitude; Type carries the direction.
	Transaction struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		Amount        decimal.Decimal `json:"amount"`
		Type          TransactionType `json:"type"`
		Category      Category        `json:"category"`
		PaymentMethod PaymentMethod   `json:"paymentMethod"`
		Date          time.Time       `json:"date"`
		UserID        string          `json:"userId"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}
)

var (
	transactionTypes = []TransactionType{Deposit, Expense, Investment}

	categories = []Category{
		CategoryFood, CategoryHousing, CategoryTransportation, CategoryEntertainment,
		CategoryHealth, CategoryEducation, CategorySalary, CategoryUtility, CategoryOther,
	}

	paymentMethods = []PaymentMethod{
		PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentPix, PaymentBankTransfer,
		PaymentBankSlip, PaymentFoodTicket, PaymentMealTicket, PaymentOther,
	}

	typeLabels = map[TransactionType]string{
		Deposit:    "Depósito",
		Expense:    "Despesa",
		Investment: "Investimento",
	}

	categoryLabels = map[Category]string{
		CategoryEducation:      "Educação",
		CategoryFood:           "Alimentação",
		CategoryHousing:        "Moradia",
		CategoryTransportation: "Transporte",
		CategoryUtility:        "Utilidades",
		CategoryHealth:         "Saúde",
		CategoryEntertainment:  "Entretenimento",
		CategoryOther:          "Outros",
		CategorySalary:         "Salário",
	}

	paymentMethodLabels = map[PaymentMethod]string{
		PaymentCreditCard:   "Cartão de crédito",
		PaymentDebitCard:    "Cartão de débito",
		PaymentCash:         "Dinheiro",
		PaymentPix:          "PIX",
		PaymentBankTransfer: "Transferência bancária",
		PaymentOther:        "Outros",
		PaymentBankSlip:     "Boleto bancário",
		PaymentFoodTicket:   "Vale alimentação",
		PaymentMealTicket:   "Vale refeição",
	}
)

// TransactionTypes returns every transaction type in display order.
func TransactionTypes() []TransactionType {
	return append([]TransactionType(nil), transactionTypes...)
}

// Categories returns every category in declaration order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// PaymentMethods returns every payment method in declaration order.
func PaymentMethods() []PaymentMethod {
	return append([]PaymentMethod(nil), paymentMethods...)
}

func (t TransactionType) IsValid() bool {
	_, ok := typeLabels[t]
	return ok
}

// Label returns the pt-BR display label, or the raw value when unknown.
func (t TransactionType) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

func (p PaymentMethod) IsValid() bool {
	_, ok := paymentMethodLabels[p]
	return ok
}

func (p PaymentMethod) Label() string {
	if l, ok := paymentMethodLabels[p]; ok {
		return l
	}
	return string(p)
}

// ParseTransactionType accepts the canonical value in any case.
func ParseTransactionType(s string) (TransactionType, bool) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.IsValid()
}

func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.IsValid()
}

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	p := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.IsValid()
}

// Validate checks the invariants a stored transaction must hold before it
// can be aggregated.
func (t Transaction) Validate() error {
	var fields map[string]string
	add := func(field, msg string) {
		if fields == nil {
			fields = make(map[string]string)
		}
		fields[field] = msg
	}

	if strings.TrimSpace(t.UserID) == "" {
		add("userId", "required")
	}
	if strings.TrimSpace(t.Name) == "" {
		add("name", "required")
	} else if utf8.RuneCountInString(t.Name) > MaxNameLength {
		add("name", "max")
	}
	if t.Amount.IsNegative() {
		add("amount", "min")
	} else if t.Amount.Round(2).GreaterThan(MaxAmount) {
		add("amount", "max")
	}
	if !t.Type.IsValid() {
		add("type", "oneof")
	}
	if !t.Category.IsValid() {
		add("category", "oneof")
	}
	if !t.PaymentMethod.IsValid() {
		add("paymentMethod", "oneof")
	}
	if t.Date.IsZero() {
		add("date", "required")
	}

	if fields != nil {
		return &ValidationError{Fields: fields}
	}
	return nil
}
