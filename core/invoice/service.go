package invoice

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
)

type Service struct {
	store  core.DocStore
	mailer core.EmailService
	logger core.Logger
}

func NewService(store core.DocStore, mailer core.EmailService, logger core.Logger) *Service {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Service{store: store, mailer: mailer, logger: logger}
}

func (svc *Service) liveQuery() core.Query {
	return core.NewQuery(Collection).OrderedBy(core.DBOrdering{Field: "createdAt"})
}

// Create stores a new invoice issued by the account uid, with totals computed from its items.
// An invoice created as sent is emailed to the client.
func (svc *Service) Create(ctx context.Context, uid string, ni NewInvoice) (string, error) {
	id, err := svc.store.Create(ctx, Collection, "", ni.data(uid, core.NowFunc()))
	if err != nil {
		return "", errors.Wrap(err, "inserting invoice")
	}
	if ni.Status == StatusSent {
		svc.sendInvoice(ctx, id)
	}
	return id, nil
}

// Update applies a partial update. An invoice moving to sent is emailed to the client.
func (svc *Service) Update(ctx context.Context, id string, ui UpdateInvoice) error {
	var wasSent bool
	if ui.Status != nil && *ui.Status == StatusSent {
		current, err := svc.Get(ctx, id)
		if err != nil {
			return err
		}
		wasSent = current.Status == StatusSent
	}

	if err := svc.store.Update(ctx, Collection, id, ui.data()); err != nil {
		return errors.Wrap(err, "updating invoice")
	}
	if ui.Status != nil && *ui.Status == StatusSent && !wasSent {
		svc.sendInvoice(ctx, id)
	}
	return nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.store.Delete(ctx, Collection, id); err != nil {
		return errors.Wrap(err, "deleting invoice")
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Invoice, error) {
	doc, err := svc.store.Get(ctx, Collection, id)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "getting invoice")
	}
	return FromDocument(doc), nil
}

// Query returns all invoices, newest first.
func (svc *Service) Query(ctx context.Context) ([]Invoice, error) {
	docs, err := svc.store.Query(ctx, svc.liveQuery())
	if err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	return core.DecodeAll(docs, FromDocument), nil
}

func (svc *Service) Subscribe(onChange func([]Invoice)) (core.Unsubscribe, error) {
	unsub, err := core.SubscribeAs(svc.store, svc.liveQuery(), FromDocument, onChange)
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to invoices")
	}
	return unsub, nil
}

type emailItem struct {
	Description, Quantity, Rate, Amount string
}

type emailData struct {
	ClientName, InvoiceNumber, IssueDate, DueDate string
	Items                                         []emailItem
	Subtotal, Tax, Total                          string
}

// sendInvoice hands the invoice to the mailer. Delivery is asynchronous and never fails the write;
// an invoice that cannot be read back is logged and skipped.
func (svc *Service) sendInvoice(ctx context.Context, id string) {
	if svc.mailer == nil {
		return
	}
	inv, err := svc.Get(ctx, id)
	if err != nil {
		svc.logger.Error("emailing invoice "+id, err)
		return
	}
	if inv.ClientEmail == "" {
		svc.logger.Warn("invoice " + id + " has no client email")
		return
	}

	data := emailData{
		ClientName:    inv.ClientName,
		InvoiceNumber: inv.InvoiceNumber,
		IssueDate:     inv.IssueDate.Format(core.DateLayout),
		DueDate:       inv.DueDate.Format(core.DateLayout),
		Subtotal:      inv.Subtotal.StringFixed(2),
		Tax:           inv.Tax.StringFixed(2),
		Total:         inv.Total.StringFixed(2),
	}
	for _, it := range inv.Items {
		data.Items = append(data.Items, emailItem{
			Description: it.Description,
			Quantity:    it.Quantity.String(),
			Rate:        it.Rate.StringFixed(2),
			Amount:      it.Amount.StringFixed(2),
		})
	}
	svc.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: inv.ClientName, Address: inv.ClientEmail}},
		Subject:      "Invoice " + inv.InvoiceNumber,
		TemplateName: "invoice_sent",
		TemplateData: data,
	})
}
