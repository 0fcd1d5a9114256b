package notify

import (
	"context"
	"fmt"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/observability"
)

// Notifier turns lifecycle events into emails and feed entries. Every method
// except SendReminder returns immediately; the work runs on Runner.
type Notifier struct {
	Mailer       Mailer
	Sink         Sink
	Runner       *Background
	Organization string
}

// NewNotifier wires a Notifier. A nil runner gets a fresh Background.
func NewNotifier(m Mailer, s Sink, r *Background, org string) *Notifier {
	if r == nil {
		r = &Background{}
	}
	return &Notifier{Mailer: m, Sink: s, Runner: r, Organization: org}
}

// ApplicationCreated records a feed entry and, for self-submitted
// applications, sends the confirmation email.
func (n *Notifier) ApplicationCreated(ctx context.Context, app *domain.Application) {
	data := NewMailData(n.Organization, app)
	entry := &domain.Notification{
		Type:    TypeApplicationSubmitted,
		Title:   "New application",
		Message: fmt.Sprintf("%s applied (%s)", app.Name, app.Code),
		Payload: Payload(map[string]any{
			"application_id": app.ID,
			"code":           app.Code,
			"program_id":     app.ProgramID,
			"created_by":     app.CreatedBy,
			"payment_status": app.Payment.Status,
		}),
	}
	n.record(ctx, entry)
	if app.Payment.Status == domain.PaymentPaid {
		n.record(ctx, &domain.Notification{
			Type:    TypePaymentReceived,
			Title:   "Payment received",
			Message: fmt.Sprintf("%s paid %d %s", app.Code, app.Payment.Amount, app.Payment.Currency),
			Payload: Payload(map[string]any{
				"application_id": app.ID,
				"order_id":       app.Payment.OrderID,
				"payment_id":     app.Payment.TransactionRef,
			}),
		})
	}
	if app.CreatedBy != domain.CreatedByAdmin {
		n.email(ctx, TplApplicationReceived, data)
	}
}

// StatusChanged records a feed entry for a workflow transition.
func (n *Notifier) StatusChanged(ctx context.Context, app *domain.Application, from, to domain.Status, actor string) {
	n.record(ctx, &domain.Notification{
		Type:    TypeStatusChanged,
		Title:   "Application status changed",
		Message: fmt.Sprintf("%s: %s -> %s", app.Code, from, to),
		Payload: Payload(map[string]any{
			"application_id": app.ID,
			"from":           from,
			"to":             to,
			"actor":          actor,
		}),
	})
}

// Selected sends the selection email.
func (n *Notifier) Selected(ctx context.Context, app *domain.Application) {
	n.email(ctx, TplSelected, NewMailData(n.Organization, app))
}

// CertificateAvailable sends the completion email.
func (n *Notifier) CertificateAvailable(ctx context.Context, app *domain.Application) {
	n.email(ctx, TplCertificateAvailable, NewMailData(n.Organization, app))
}

// SendReminder sends the "starts tomorrow" email synchronously. The caller
// decides what to do with the error.
func (n *Notifier) SendReminder(ctx context.Context, app *domain.Application) error {
	return n.send(ctx, TplTaskReminder, NewMailData(n.Organization, app))
}

func (n *Notifier) email(ctx context.Context, tpl string, data MailData) {
	if n.Mailer == nil {
		return
	}
	n.runner().Go(ctx, "email."+tpl, func(ctx context.Context) error {
		return n.send(ctx, tpl, data)
	})
}

func (n *Notifier) send(ctx context.Context, tpl string, data MailData) error {
	if n.Mailer == nil {
		return nil
	}
	msg, err := Render(tpl, data)
	if err != nil {
		observability.Emails.WithLabelValues(tpl, "failed").Inc()
		return err
	}
	if err := n.Mailer.Send(ctx, msg); err != nil {
		observability.Emails.WithLabelValues(tpl, "failed").Inc()
		return fmt.Errorf("send %s to %s: %w", tpl, maskEmail(data.Email), err)
	}
	observability.Emails.WithLabelValues(tpl, "sent").Inc()
	return nil
}

func (n *Notifier) record(ctx context.Context, entry *domain.Notification) {
	if n.Sink == nil {
		return
	}
	n.runner().Go(ctx, "notification."+entry.Type, func(ctx context.Context) error {
		return n.Sink.Record(ctx, entry)
	})
}

// shared runner for a Notifier built without one
var defaultRunner = &Background{}

func (n *Notifier) runner() *Background {
	if n.Runner == nil {
		return defaultRunner
	}
	return n.Runner
}
