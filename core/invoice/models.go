package invoice

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/welfareschool/backend/core"
)

const Collection = "invoices"

const (
	StatusDraft   = "draft"
	StatusSent    = "sent"
	StatusPaid    = "paid"
	StatusOverdue = "overdue"
)

var (
	Statuses = []string{StatusDraft, StatusSent, StatusPaid, StatusOverdue}

	// TaxRate is the flat tax applied to every invoice subtotal.
	TaxRate = decimal.RequireFromString("0.18")

	defaultTerm = 30 * 24 * time.Hour
)

type Item struct {
	ID          string          `json:"id"`
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	Rate        decimal.Decimal `json:"rate" validate:"gte=0"`
	Amount      decimal.Decimal `json:"amount"` // Quantity x Rate
}

func (it Item) data() map[string]interface{} {
	return map[string]interface{}{
		"id":          it.ID,
		"description": it.Description,
		"quantity":    it.Quantity.String(),
		"rate":        it.Rate.String(),
		"amount":      it.Amount.String(),
	}
}

type Invoice struct {
	ID             string          `json:"id"`
	InvoiceNumber  string          `json:"invoiceNumber"`
	ClientName     string          `json:"clientName"`
	ClientEmail    string          `json:"clientEmail"`
	IssueDate      time.Time       `json:"issueDate"`
	DueDate        time.Time       `json:"dueDate"`
	Items          []Item          `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	Status         string          `json:"status"`
	TransactionRef string          `json:"transactionId,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"` // UTC
	UpdatedAt      time.Time       `json:"updatedAt"` // UTC
}

func FromDocument(doc core.Document) Invoice {
	d := doc.Data
	inv := Invoice{
		ID:             doc.ID,
		InvoiceNumber:  core.AsString(d["invoiceNumber"]),
		ClientName:     core.AsString(d["clientName"]),
		ClientEmail:    core.AsString(d["clientEmail"]),
		IssueDate:      core.AsTime(d["issueDate"]),
		DueDate:        core.AsTime(d["dueDate"]),
		Subtotal:       core.AsDecimal(d["subtotal"]),
		Tax:            core.AsDecimal(d["tax"]),
		Total:          core.AsDecimal(d["total"]),
		Status:         core.AsString(d["status"]),
		TransactionRef: core.AsString(d["transactionId"]),
		UserID:         core.AsString(d["userId"]),
		CreatedAt:      core.AsTime(d["createdAt"]),
		UpdatedAt:      core.AsTime(d["updatedAt"]),
	}
	inv.Items = itemsFromValue(d["items"])
	return inv
}

func itemsFromValue(v interface{}) []Item {
	items := make([]Item, 0)
	raw, ok := v.([]interface{})
	if !ok {
		return items
	}
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		items = append(items, Item{
			ID:          core.AsString(m["id"]),
			Description: core.AsString(m["description"]),
			Quantity:    core.AsDecimal(m["quantity"]),
			Rate:        core.AsDecimal(m["rate"]),
			Amount:      core.AsDecimal(m["amount"]),
		})
	}
	return items
}

func itemsData(items []Item) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, it := range items {
		out = append(out, it.data())
	}
	return out
}

// NewInvoice contains information needed to create a new Invoice.
// Totals are always computed from Items.
type NewInvoice struct {
	InvoiceNumber string `json:"invoiceNumber"` // generated when empty
	ClientName    string `json:"clientName" validate:"required"`
	ClientEmail   string `json:"clientEmail" validate:"required,email"`
	IssueDate     string `json:"issueDate" validate:"omitempty,isodate"` // defaults to today
	DueDate       string `json:"dueDate" validate:"omitempty,isodate"`   // defaults to 30 days after issue
	Items         []Item `json:"items" validate:"required,min=1,dive"`
	Status        string `json:"status" validate:"omitempty,invoicestatus"` // defaults to draft
}

func (ni *NewInvoice) Validate(validate *validator.Validate) error {
	ni.InvoiceNumber = core.CleanString(ni.InvoiceNumber)
	ni.ClientName = core.CleanString(ni.ClientName)
	ni.ClientEmail = core.CleanString(ni.ClientEmail, true /* lower */)
	ni.IssueDate = core.CleanString(ni.IssueDate)
	ni.DueDate = core.CleanString(ni.DueDate)
	ni.Status = core.CleanString(ni.Status, true /* lower */)
	for i := range ni.Items {
		ni.Items[i].Description = core.CleanString(ni.Items[i].Description)
	}
	return validate.Struct(ni)
}

func (ni NewInvoice) data(uid string, now time.Time) core.Data {
	items, totals := Price(ni.Items)

	number := ni.InvoiceNumber
	if number == "" {
		number = fmt.Sprintf("INV-%d", now.UnixMilli())
	}
	issue := now.UTC().Truncate(24 * time.Hour)
	if ni.IssueDate != "" {
		issue = core.AsTime(ni.IssueDate)
	}
	due := issue.Add(defaultTerm)
	if ni.DueDate != "" {
		due = core.AsTime(ni.DueDate)
	}
	status := ni.Status
	if status == "" {
		status = StatusDraft
	}

	data := core.Data{
		"invoiceNumber": number,
		"clientName":    ni.ClientName,
		"clientEmail":   ni.ClientEmail,
		"issueDate":     issue,
		"dueDate":       due,
		"items":         itemsData(items),
		"status":        status,
		"transactionId": fmt.Sprintf("txn_%d", now.UnixMilli()),
		"userId":        uid,
		"createdAt":     core.ServerTimestamp,
		"updatedAt":     core.ServerTimestamp,
	}
	totals.into(data)
	return data
}

// UpdateInvoice defines what information may be provided to modify an existing Invoice.
// Setting Items recomputes the totals.
type UpdateInvoice struct {
	InvoiceNumber *string `json:"invoiceNumber"`
	ClientName    *string `json:"clientName"`
	ClientEmail   *string `json:"clientEmail" validate:"omitempty,email"`
	IssueDate     *string `json:"issueDate" validate:"omitempty,isodate"`
	DueDate       *string `json:"dueDate" validate:"omitempty,isodate"`
	Items         []Item  `json:"items" validate:"omitempty,min=1,dive"`
	Status        *string `json:"status" validate:"omitempty,invoicestatus"`
}

func (ui *UpdateInvoice) Validate(validate *validator.Validate) error {
	fields := []core.OptionalString{
		{Field: "invoiceNumber", Value: ui.InvoiceNumber},
		{Field: "clientName", Value: ui.ClientName},
		{Field: "clientEmail", Value: ui.ClientEmail},
		{Field: "issueDate", Value: ui.IssueDate},
		{Field: "dueDate", Value: ui.DueDate},
		{Field: "status", Value: ui.Status},
	}
	for _, f := range fields {
		if f.Value != nil {
			*f.Value = core.CleanString(*f.Value)
		}
	}
	if ui.ClientEmail != nil {
		*ui.ClientEmail = core.CleanString(*ui.ClientEmail, true /* lower */)
	}
	if ui.Status != nil {
		*ui.Status = core.CleanString(*ui.Status, true /* lower */)
	}
	if ui.Items != nil && len(ui.Items) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "items", Error: "at least one item is required"})
	}
	for i := range ui.Items {
		ui.Items[i].Description = core.CleanString(ui.Items[i].Description)
	}
	if err := core.CheckNotBlank(fields...); err != nil {
		return err
	}
	return validate.Struct(ui)
}

func (ui UpdateInvoice) data() core.Data {
	data := core.Data{"updatedAt": core.ServerTimestamp}
	setStr := func(key string, v *string) {
		if v != nil {
			data[key] = *v
		}
	}
	setStr("invoiceNumber", ui.InvoiceNumber)
	setStr("clientName", ui.ClientName)
	setStr("clientEmail", ui.ClientEmail)
	setStr("status", ui.Status)
	if ui.IssueDate != nil {
		data["issueDate"] = core.AsTime(*ui.IssueDate)
	}
	if ui.DueDate != nil {
		data["dueDate"] = core.AsTime(*ui.DueDate)
	}
	if ui.Items != nil {
		items, totals := Price(ui.Items)
		data["items"] = itemsData(items)
		totals.into(data)
	}
	return data
}

// QueryFilter narrows an invoice list. All set fields must match.
type QueryFilter struct {
	Search string `query:"search"` // client name, invoice number or client email
	Status string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

func (qf QueryFilter) Match(inv Invoice) bool {
	if qf.Search != "" &&
		!core.ContainsFold(inv.ClientName, qf.Search) &&
		!core.ContainsFold(inv.InvoiceNumber, qf.Search) &&
		!core.ContainsFold(inv.ClientEmail, qf.Search) {
		return false
	}
	if qf.Status != "" && inv.Status != qf.Status {
		return false
	}
	return true
}

func (qf QueryFilter) Filter(invoices []Invoice) []Invoice {
	filtered := make([]Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if qf.Match(inv) {
			filtered = append(filtered, inv)
		}
	}
	return filtered
}

// StatusCounts tallies invoices per status. Pending counts sent and overdue invoices.
type StatusCounts struct {
	Total   int `json:"total"`
	Draft   int `json:"draft"`
	Sent    int `json:"sent"`
	Paid    int `json:"paid"`
	Overdue int `json:"overdue"`
	Pending int `json:"pending"`
}

func CountByStatus(invoices []Invoice) StatusCounts {
	counts := StatusCounts{Total: len(invoices)}
	for _, inv := range invoices {
		switch inv.Status {
		case StatusDraft:
			counts.Draft++
		case StatusSent:
			counts.Sent++
		case StatusPaid:
			counts.Paid++
		case StatusOverdue:
			counts.Overdue++
		}
	}
	counts.Pending = counts.Sent + counts.Overdue
	return counts
}
