package transaction

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/welfareschool/backend/core"
)

const Collection = "transactions"

const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Categories is the fixed category taxonomy per transaction type.
var Categories = map[string][]string{
	TypeIncome:  {"Fees", "Donations", "Grants", "Other Income"},
	TypeExpense: {"Salary", "Utilities", "Supplies", "Maintenance", "Transportation", "Other Expense"},
}

// ValidCategory reports whether category belongs to the taxonomy of txType.
func ValidCategory(txType, category string) bool {
	for _, c := range Categories[txType] {
		if c == category {
			return true
		}
	}
	return false
}

type Transaction struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"` // non-negative, sign implied by Type
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	UserID      string          `json:"userId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"` // UTC
	UpdatedAt   time.Time       `json:"updatedAt"` // UTC
}

func (tx Transaction) IsIncome() bool { return tx.Type == TypeIncome }

func FromDocument(doc core.Document) Transaction {
	d := doc.Data
	return Transaction{
		ID:          doc.ID,
		Type:        core.AsString(d["type"]),
		Amount:      core.AsDecimal(d["amount"]),
		Category:    core.AsString(d["category"]),
		Description: core.AsString(d["description"]),
		Date:        core.AsTime(d["date"]),
		UserID:      core.AsString(d["userId"]),
		CreatedAt:   core.AsTime(d["createdAt"]),
		UpdatedAt:   core.AsTime(d["updatedAt"]),
	}
}

// NewTransaction contains information needed to record a new Transaction.
type NewTransaction struct {
	Type        string          `json:"type" validate:"required,oneof=income expense"`
	Amount      decimal.Decimal `json:"amount" validate:"gte=0"`
	Category    string          `json:"category" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Date        string          `json:"date" validate:"required,isodate"`
}

func (nt *NewTransaction) Validate(validate *validator.Validate) error {
	nt.Type = core.CleanString(nt.Type, true /* lower */)
	nt.Category = core.CleanString(nt.Category)
	nt.Description = core.CleanString(nt.Description)
	nt.Date = core.CleanString(nt.Date)
	return validate.Struct(nt)
}

func (nt NewTransaction) data(userID string) core.Data {
	return core.Data{
		"type":        nt.Type,
		"amount":      nt.Amount.String(),
		"category":    nt.Category,
		"description": nt.Description,
		"date":        core.AsTime(nt.Date),
		"userId":      userID,
		"createdAt":   core.ServerTimestamp,
		"updatedAt":   core.ServerTimestamp,
	}
}

// UpdateTransaction defines what information may be provided to modify an existing Transaction.
type UpdateTransaction struct {
	Type        *string          `json:"type" validate:"omitempty,oneof=income expense"`
	Amount      *decimal.Decimal `json:"amount" validate:"omitempty,gte=0"`
	Category    *string          `json:"category"`
	Description *string          `json:"description"`
	Date        *string          `json:"date" validate:"omitempty,isodate"`
}

func (upd *UpdateTransaction) Validate(validate *validator.Validate) error {
	fields := []core.OptionalString{
		{Field: "type", Value: upd.Type},
		{Field: "category", Value: upd.Category},
		{Field: "description", Value: upd.Description},
		{Field: "date", Value: upd.Date},
	}
	for _, f := range fields {
		if f.Value != nil {
			*f.Value = core.CleanString(*f.Value)
		}
	}
	if upd.Type != nil {
		*upd.Type = core.CleanString(*upd.Type, true /* lower */)
	}
	if err := core.CheckNotBlank(fields...); err != nil {
		return err
	}
	return validate.Struct(upd)
}

func (upd UpdateTransaction) data() core.Data {
	data := core.Data{"updatedAt": core.ServerTimestamp}
	if upd.Type != nil {
		data["type"] = *upd.Type
	}
	if upd.Amount != nil {
		data["amount"] = upd.Amount.String()
	}
	if upd.Category != nil {
		data["category"] = *upd.Category
	}
	if upd.Description != nil {
		data["description"] = *upd.Description
	}
	if upd.Date != nil {
		data["date"] = core.AsTime(*upd.Date)
	}
	return data
}

// QueryFilter narrows a transaction list. All set fields must match.
type QueryFilter struct {
	Search   string `query:"search"` // description or category
	Type     string `query:"type"`
	Category string `query:"category"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Type = core.CleanString(qf.Type, true /* lower */)
	qf.Category = core.CleanString(qf.Category)
}

func (qf QueryFilter) Match(tx Transaction) bool {
	if qf.Search != "" && !core.ContainsFold(tx.Description, qf.Search) && !core.ContainsFold(tx.Category, qf.Search) {
		return false
	}
	if qf.Type != "" && tx.Type != qf.Type {
		return false
	}
	if qf.Category != "" && tx.Category != qf.Category {
		return false
	}
	return true
}

func (qf QueryFilter) Filter(txs []Transaction) []Transaction {
	filtered := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if qf.Match(tx) {
			filtered = append(filtered, tx)
		}
	}
	return filtered
}

// Totals sums income and expense amounts.
type Totals struct {
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	NetBalance decimal.Decimal `json:"netBalance"`
}

func Summarize(txs []Transaction) Totals {
	totals := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, tx := range txs {
		switch tx.Type {
		case TypeIncome:
			totals.Income = totals.Income.Add(tx.Amount)
		case TypeExpense:
			totals.Expense = totals.Expense.Add(tx.Amount)
		}
	}
	totals.NetBalance = totals.Income.Sub(totals.Expense)
	return totals
}

// DistinctCategories lists the categories in use.
func DistinctCategories(txs []Transaction) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, tx := range txs {
		if _, ok := seen[tx.Category]; !ok && tx.Category != "" {
			seen[tx.Category] = struct{}{}
			out = append(out, tx.Category)
		}
	}
	sort.Strings(out)
	return out
}

// Recent returns at most n transactions, keeping the given (date desc) order.
func Recent(txs []Transaction, n int) []Transaction {
	if len(txs) <= n {
		return txs
	}
	return txs[:n]
}
