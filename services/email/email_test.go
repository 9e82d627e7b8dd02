package emailsvc

import (
	"net/http"
	"net/mail"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/welfareschool/backend/core"
)

type item struct {
	Description, Quantity, Rate, Amount string
}

type invoiceData struct {
	ClientName, InvoiceNumber, IssueDate, DueDate string
	Items                                         []item
	Subtotal, Tax, Total                          string
}

func invoiceMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Acme", Address: "billing@acme.co"}},
		Subject:      "Invoice INV-1",
		TemplateName: "invoice_sent",
		TemplateData: invoiceData{
			ClientName:    "Acme",
			InvoiceNumber: "INV-1",
			IssueDate:     "2024-03-01",
			DueDate:       "2024-03-31",
			Items:         []item{{Description: "Desks", Quantity: "2", Rate: "100.00", Amount: "200.00"}},
			Subtotal:      "200.00",
			Tax:           "36.00",
			Total:         "236.00",
		},
	}
}

func TestConsoleService(t *testing.T) {
	conf := &core.Config{AppName: "Welfare School"}
	svc := NewConsoleServiceMock(conf)

	svc.SendMessages(
		invoiceMessage(),
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "a@b.co"}}, Subject: "plain", BodyStr: "hello"},
	)

	sent := svc.SentMessages()
	if len(sent) != 2 {
		t.Fatalf("SentMessages() = %d messages, want 2", len(sent))
	}
	for _, want := range []string{"Dear Acme", "INV-1", "Desks: 2 x 100.00 = 200.00", "Total: 236.00"} {
		if !strings.Contains(sent[0].TextContent, want) {
			t.Errorf("text content does not contain %q:\n%s", want, sent[0].TextContent)
		}
	}
	if !strings.Contains(sent[0].HTMLContent, "236.00") {
		t.Errorf("html content not rendered:\n%s", sent[0].HTMLContent)
	}
	if sent[1].TextContent != "hello" || sent[1].HTMLContent != "" {
		t.Errorf("plain message = %+v", sent[1])
	}
}

func TestConsoleService_UnknownTemplate(t *testing.T) {
	svc := NewConsoleServiceMock(&core.Config{})
	svc.SendMessages(&core.EmailMessage{To: []mail.Address{{Address: "a@b.co"}}, TemplateName: "nope"})
	if got := len(svc.SentMessages()); got != 0 {
		t.Errorf("SentMessages() = %d, want 0", got)
	}
}

func TestSendgridService_Send(t *testing.T) {
	defer func() { sendFunc = oldSendFunc }()

	tests := []struct {
		name    string
		res     *rest.Response
		err     error
		wantErr bool
	}{
		{name: "accepted", res: &rest.Response{StatusCode: http.StatusAccepted}},
		{name: "rejected", res: &rest.Response{StatusCode: http.StatusBadRequest, Body: "bad"}, wantErr: true},
		{name: "transport error", err: errors.New("timeout"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got rest.Request
			sendFunc = func(req rest.Request) (*rest.Response, error) {
				got = req
				return tt.res, tt.err
			}

			conf := &core.Config{AppName: "Welfare School", SendgridApiKey: "key"}
			svc := NewSendgridService(conf, core.NopLogger{})
			err := svc.sendMessage(invoiceMessage())
			if (err != nil) != tt.wantErr {
				t.Errorf("sendMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Method != http.MethodPost || !strings.Contains(string(got.Body), "billing@acme.co") {
				t.Errorf("request = %s %s", got.Method, got.Body)
			}
			if !strings.Contains(string(got.Body), "[Welfare School] Invoice INV-1") {
				t.Errorf("subject not prefixed: %s", got.Body)
			}
		})
	}
}

var oldSendFunc = sendFunc
