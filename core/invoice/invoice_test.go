package invoice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/storage/database/memdb"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newValidator() *validator.Validate {
	validate, translator := core.NewValidator()
	InitValidators(validate, translator)
	return validate
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *fakeMailer) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingLogger struct {
	core.NopLogger
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

// unreadableStore fails every Get.
type unreadableStore struct {
	core.DocStore
}

func (unreadableStore) Get(context.Context, string, string) (core.Document, error) {
	return core.Document{}, errors.New("connection reset")
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name                      string
		items                     []Item
		subtotal, tax, wantTotal string
	}{
		{
			name:      "two lines",
			items:     []Item{{Quantity: dec("2"), Rate: dec("100")}, {Quantity: dec("1"), Rate: dec("50")}},
			subtotal:  "250", tax: "45", wantTotal: "295",
		},
		{name: "no items", items: nil, subtotal: "0", tax: "0", wantTotal: "0"},
		{
			name:      "tax rounded to cents",
			items:     []Item{{Quantity: dec("3"), Rate: dec("3.33")}},
			subtotal:  "9.99", tax: "1.80", wantTotal: "11.79",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := Price(tt.items)
			if !got.Subtotal.Equal(dec(tt.subtotal)) || !got.Tax.Equal(dec(tt.tax)) || !got.Total.Equal(dec(tt.wantTotal)) {
				t.Errorf("Price() totals = %s/%s/%s, want %s/%s/%s",
					got.Subtotal, got.Tax, got.Total, tt.subtotal, tt.tax, tt.wantTotal)
			}
		})
	}
}

func TestDraft(t *testing.T) {
	d := NewDraft()
	if len(d.Items) != 1 || !d.Totals.Total.IsZero() {
		t.Fatalf("NewDraft() = %+v, want one blank item", d)
	}
	first := d.Items[0].ID

	two, hundred := dec("2"), dec("100")
	if !d.UpdateItem(first, ItemUpdate{Quantity: &two, Rate: &hundred}) {
		t.Fatal("UpdateItem() did not find the item")
	}
	second := d.AddItem()
	fifty := dec("50")
	d.UpdateItem(second.ID, ItemUpdate{Rate: &fifty})

	if !d.Totals.Subtotal.Equal(dec("250")) || !d.Totals.Tax.Equal(dec("45")) || !d.Totals.Total.Equal(dec("295")) {
		t.Errorf("totals after edits = %+v, want 250/45/295", d.Totals)
	}

	if !d.RemoveItem(first) {
		t.Fatal("RemoveItem() did not find the item")
	}
	if !d.Totals.Subtotal.Equal(dec("50")) || !d.Totals.Total.Equal(dec("59")) {
		t.Errorf("totals after remove = %+v, want 50/9/59", d.Totals)
	}
	if d.RemoveItem("nope") || d.UpdateItem("nope", ItemUpdate{}) {
		t.Error("unknown item ids should be reported")
	}
	if third := d.AddItem(); third.ID == second.ID {
		t.Errorf("AddItem() reused id %s", third.ID)
	}
}

func TestQueryFilterAndCounts(t *testing.T) {
	invoices := []Invoice{
		{ID: "1", InvoiceNumber: "INV-1", ClientName: "Acme Ltd", ClientEmail: "billing@acme.co", Status: StatusDraft},
		{ID: "2", InvoiceNumber: "INV-2", ClientName: "Umoja Trust", ClientEmail: "pay@umoja.org", Status: StatusSent},
		{ID: "3", InvoiceNumber: "INV-3", ClientName: "Acme Ltd", ClientEmail: "billing@acme.co", Status: StatusOverdue},
		{ID: "4", InvoiceNumber: "INV-4", ClientName: "Baraka", ClientEmail: "b@x.com", Status: StatusPaid},
	}
	tests := []struct {
		name    string
		filter  QueryFilter
		wantIDs []string
	}{
		{name: "empty filter", filter: QueryFilter{}, wantIDs: []string{"1", "2", "3", "4"}},
		{name: "client name", filter: QueryFilter{Search: "acme"}, wantIDs: []string{"1", "3"}},
		{name: "invoice number", filter: QueryFilter{Search: "inv-2"}, wantIDs: []string{"2"}},
		{name: "client email", filter: QueryFilter{Search: "UMOJA.ORG"}, wantIDs: []string{"2"}},
		{name: "status", filter: QueryFilter{Status: StatusPaid}, wantIDs: []string{"4"}},
		{name: "search and status", filter: QueryFilter{Search: "acme", Status: StatusOverdue}, wantIDs: []string{"3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Filter(invoices)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Filter() = %d invoices, want %d", len(got), len(tt.wantIDs))
			}
			for i, inv := range got {
				if inv.ID != tt.wantIDs[i] {
					t.Errorf("Filter()[%d] = %s, want %s", i, inv.ID, tt.wantIDs[i])
				}
			}
		})
	}

	counts := CountByStatus(invoices)
	want := StatusCounts{Total: 4, Draft: 1, Sent: 1, Paid: 1, Overdue: 1, Pending: 2}
	if counts != want {
		t.Errorf("CountByStatus() = %+v, want %+v", counts, want)
	}
}

func TestNewInvoice_Validate(t *testing.T) {
	validate := newValidator()
	valid := func() NewInvoice {
		return NewInvoice{
			ClientName:  "Acme",
			ClientEmail: "Billing@Acme.co",
			Items:       []Item{{Description: "Desks", Quantity: dec("2"), Rate: dec("100")}},
		}
	}
	tests := []struct {
		name    string
		mutate  func(ni *NewInvoice)
		wantErr bool
	}{
		{name: "valid", mutate: func(ni *NewInvoice) {}},
		{name: "bad email", mutate: func(ni *NewInvoice) { ni.ClientEmail = "acme" }, wantErr: true},
		{name: "no items", mutate: func(ni *NewInvoice) { ni.Items = nil }, wantErr: true},
		{name: "zero quantity", mutate: func(ni *NewInvoice) { ni.Items[0].Quantity = decimal.Zero }, wantErr: true},
		{name: "item without description", mutate: func(ni *NewInvoice) { ni.Items[0].Description = "" }, wantErr: true},
		{name: "unknown status", mutate: func(ni *NewInvoice) { ni.Status = "cancelled" }, wantErr: true},
		{name: "bad due date", mutate: func(ni *NewInvoice) { ni.DueDate = "soon" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ni := valid()
			tt.mutate(&ni)
			if err := ni.Validate(validate); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	db := memdb.Open()
	defer db.Close()
	mailer := new(fakeMailer)
	svc := NewService(db, mailer, nil)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	defer func() { core.NowFunc = time.Now }()

	// client-supplied amounts are ignored
	id, err := svc.Create(ctx, "u1", NewInvoice{
		ClientName:  "Acme",
		ClientEmail: "billing@acme.co",
		Items: []Item{
			{ID: "1", Description: "Desks", Quantity: dec("2"), Rate: dec("100"), Amount: dec("1")},
			{ID: "2", Description: "Chairs", Quantity: dec("1"), Rate: dec("50")},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	inv, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if inv.InvoiceNumber != "INV-1709287200000" || inv.TransactionRef != "txn_1709287200000" {
		t.Errorf("generated refs = %s, %s", inv.InvoiceNumber, inv.TransactionRef)
	}
	if inv.Status != StatusDraft || inv.UserID != "u1" {
		t.Errorf("defaults = status %s, user %s", inv.Status, inv.UserID)
	}
	if !inv.Items[0].Amount.Equal(dec("200")) || !inv.Total.Equal(dec("295")) {
		t.Errorf("stored totals = item0 %s, total %s", inv.Items[0].Amount, inv.Total)
	}
	if !inv.DueDate.Equal(inv.IssueDate.Add(30 * 24 * time.Hour)) {
		t.Errorf("default due date = %v, issue %v", inv.DueDate, inv.IssueDate)
	}
	if mailer.count() != 0 {
		t.Errorf("draft invoice was emailed")
	}

	items := []Item{{ID: "1", Description: "Desks", Quantity: dec("1"), Rate: dec("100")}}
	sent := StatusSent
	if err = svc.Update(ctx, id, UpdateInvoice{Items: items, Status: &sent}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	inv, _ = svc.Get(ctx, id)
	if !inv.Subtotal.Equal(dec("100")) || !inv.Tax.Equal(dec("18")) || !inv.Total.Equal(dec("118")) {
		t.Errorf("totals after update = %s/%s/%s", inv.Subtotal, inv.Tax, inv.Total)
	}
	if mailer.count() != 1 {
		t.Errorf("sent invoice emails = %d, want 1", mailer.count())
	}

	// already sent: no second email
	if err = svc.Update(ctx, id, UpdateInvoice{Status: &sent}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if mailer.count() != 1 {
		t.Errorf("re-sending status emailed again")
	}

	if err = svc.Update(ctx, "missing", UpdateInvoice{Status: &sent}); !core.IsNotFound(err) {
		t.Errorf("Update() missing error = %v, want not found", err)
	}
}

func TestService_SendInvoiceLogsFailures(t *testing.T) {
	ctx := context.Background()
	db := memdb.Open()
	defer db.Close()
	mailer := new(fakeMailer)
	logger := new(recordingLogger)
	svc := NewService(unreadableStore{db}, mailer, logger)

	id, err := svc.Create(ctx, "u1", NewInvoice{
		ClientName:  "Acme",
		ClientEmail: "billing@acme.co",
		Items:       []Item{{ID: "1", Description: "Desks", Quantity: dec("1"), Rate: dec("100")}},
		Status:      StatusSent,
	})
	if err != nil {
		t.Fatalf("Create() error = %v, the write must not fail on email errors", err)
	}
	if mailer.count() != 0 {
		t.Errorf("unreadable invoice was emailed")
	}
	if len(logger.errors) != 1 || logger.errors[0] != "emailing invoice "+id {
		t.Errorf("logged errors = %v", logger.errors)
	}
}
