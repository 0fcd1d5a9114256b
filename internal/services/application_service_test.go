package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/internship-backend/internal/domain"
	"github.com/tbourn/internship-backend/internal/identity"
	"github.com/tbourn/internship-backend/internal/notify"
	"github.com/tbourn/internship-backend/internal/repo"
)

// ---------- Submit() ----------

func TestSubmit_FreeProgram(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 0)

	in := applicant(p.ID, "  Jane@Example.COM ")
	in.Name = "  jane   doe "
	app, err := f.apps.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !identity.Valid(app.Code) {
		t.Fatalf("invalid identity code %q", app.Code)
	}
	if app.Status != domain.StatusApplied || app.Payment.Status != domain.PaymentNotRequired {
		t.Fatalf("unexpected initial state: %s / %s", app.Status, app.Payment.Status)
	}
	if app.Email != "jane@example.com" || app.Name != "jane doe" {
		t.Fatalf("input not normalized: %q %q", app.Email, app.Name)
	}

	f.settle()
	if got := f.mailer.SentTo(notify.TplApplicationReceived); len(got) != 1 {
		t.Fatalf("expected one confirmation email, got %d", len(got))
	}
	var n int64
	f.db.Model(&domain.Notification{}).Where("type = ?", notify.TypeApplicationSubmitted).Count(&n)
	if n != 1 {
		t.Fatalf("expected one notification row, got %d", n)
	}
}

func TestSubmit_FeeProgramStartsPending(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 49900)
	app, err := f.apps.Submit(context.Background(), applicant(p.ID, "fee@example.com"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if app.Payment.Status != domain.PaymentPending || app.Payment.Amount != 49900 {
		t.Fatalf("unexpected payment: %+v", app.Payment)
	}
}

func TestSubmit_WithoutProgram(t *testing.T) {
	f := newFixture(t)
	app, err := f.apps.Submit(context.Background(), applicant("", "general@example.com"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if app.ProgramID != nil || app.Payment.Status != domain.PaymentNotRequired {
		t.Fatalf("unexpected general application: %+v", app)
	}
}

func TestSubmit_ValidationError(t *testing.T) {
	f := newFixture(t)
	in := applicant("", "not-an-email")
	in.Name = "  "
	_, err := f.apps.Submit(context.Background(), in)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Fields["name"] == "" || ve.Fields["email"] == "" {
		t.Fatalf("expected name and email field errors, got %v", ve.Fields)
	}
}

func TestSubmit_UnknownAndClosedProgram(t *testing.T) {
	f := newFixture(t)
	if _, err := f.apps.Submit(context.Background(), applicant("missing", "a@example.com")); !errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("expected ErrProgramNotFound, got %v", err)
	}

	p := seedProgram(t, f.db, 0)
	f.apps.Now = func() time.Time { return p.StartDate.AddDate(0, 0, 2) }
	if _, err := f.apps.Submit(context.Background(), applicant(p.ID, "late@example.com")); !errors.Is(err, ErrApplicationsClosed) {
		t.Fatalf("expected ErrApplicationsClosed, got %v", err)
	}
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	for name, guard := range map[string]repo.DuplicateGuard{"check": &repo.CheckThenInsert{}, "claim": &repo.ClaimInsert{}} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.apps.Guard = guard
			p := seedProgram(t, f.db, 0)
			ctx := context.Background()

			first, err := f.apps.Submit(ctx, applicant(p.ID, "dup@example.com"))
			if err != nil {
				t.Fatalf("first Submit: %v", err)
			}
			_, err = f.apps.Submit(ctx, applicant(p.ID, "DUP@example.com"))
			if !errors.Is(err, ErrDuplicateApplication) {
				t.Fatalf("expected ErrDuplicateApplication, got %v", err)
			}
			n, _ := repo.CountApplicationsByEmailProgram(ctx, f.db, "dup@example.com", &p.ID)
			if n != 1 {
				t.Fatalf("expected exactly one application, got %d", n)
			}
			got, _ := f.apps.Get(ctx, first.ID)
			if got.Name != first.Name {
				t.Fatalf("first application must not be overwritten")
			}
		})
	}
}

// seqRand replays vals, then keeps returning 0.
func seqRand(vals ...int64) func(int64) (int64, error) {
	var mu sync.Mutex
	return func(int64) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(vals) == 0 {
			return 0, nil
		}
		v := vals[0]
		vals = vals[1:]
		return v, nil
	}
}

func TestSubmit_TakenCodeIsRedrawn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// All zero draws give the 8 char code "AAAAAAAA".
	f.apps.IDs = &identity.Generator{MaxAttempts: 4, Rand: seqRand()}
	first, err := f.apps.Submit(ctx, applicant("", "first@example.com"))
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if first.Code != "AAAAAAAA" {
		t.Fatalf("unexpected seeded code %q", first.Code)
	}

	// First draw collides with the stored code, second draw is all "B".
	f.apps.IDs = &identity.Generator{MaxAttempts: 4, Rand: seqRand(0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1)}
	second, err := f.apps.Submit(ctx, applicant("", "second@example.com"))
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if second.Code != "BBBBBBBB" {
		t.Fatalf("expected redrawn code, got %q", second.Code)
	}

	// Nothing but collisions exhausts the generator.
	f.apps.IDs = &identity.Generator{MaxAttempts: 2, Rand: seqRand()}
	if _, err := f.apps.Submit(ctx, applicant("", "third@example.com")); !errors.Is(err, identity.ErrExhausted) {
		t.Fatalf("expected identity.ErrExhausted, got %v", err)
	}
}

// ---------- SubmitPaid() ----------

func TestSubmitPaid_VerifiedPaymentUnlocksOfferOnSelection(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 49900)
	ctx := context.Background()

	in := f.paidInput(t, p, "paid@example.com")
	app, err := f.apps.SubmitPaid(ctx, in)
	if err != nil {
		t.Fatalf("SubmitPaid: %v", err)
	}
	if app.Payment.Status != domain.PaymentPaid || app.Payment.OrderID != in.OrderID || app.Payment.TransactionRef != in.PaymentID {
		t.Fatalf("unexpected payment: %+v", app.Payment)
	}
	if app.Payment.Amount != 49900 || app.Payment.PaidAt == nil {
		t.Fatalf("payment amount/time not recorded: %+v", app.Payment)
	}
	order, _ := repo.GetPaymentOrder(ctx, f.db, in.OrderID)
	if order.Status != domain.OrderConsumed || order.ApplicationID == nil || *order.ApplicationID != app.ID {
		t.Fatalf("order not consumed: %+v", order)
	}

	if _, err := f.workflow.Transition(ctx, app.ID, "selected", "admin", ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	art, err := f.docs.Fetch(ctx, "offer-letter", app.Code, "paid@example.com")
	if err != nil {
		t.Fatalf("offer letter should be available without a further payment step: %v", err)
	}
	if len(art.Bytes) == 0 || art.Filename != "offer-letter-"+app.Code+".pdf" {
		t.Fatalf("unexpected artifact: %s (%d bytes)", art.Filename, len(art.Bytes))
	}

	f.settle()
	var n int64
	f.db.Model(&domain.Notification{}).Where("type = ?", notify.TypePaymentReceived).Count(&n)
	if n != 1 {
		t.Fatalf("expected a payment notification, got %d", n)
	}
}

func TestSubmitPaid_SignatureMismatchCreatesNothing(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 49900)
	ctx := context.Background()

	in := f.paidInput(t, p, "forger@example.com")
	for _, mutate := range []func(*PaidSubmitInput){
		func(in *PaidSubmitInput) { in.Signature = strings.Repeat("0", len(in.Signature)) },
		func(in *PaidSubmitInput) { in.PaymentID += "x" },
		func(in *PaidSubmitInput) { in.OrderID = in.OrderID[:len(in.OrderID)-1] + "9" },
	} {
		bad := in
		mutate(&bad)
		if _, err := f.apps.SubmitPaid(ctx, bad); !errors.Is(err, ErrSignatureMismatch) {
			t.Fatalf("expected ErrSignatureMismatch, got %v", err)
		}
	}
	n, _ := repo.CountApplications(ctx, f.db, repo.ApplicationFilter{})
	if n != 0 {
		t.Fatalf("no application may be created, got %d", n)
	}
	order, _ := repo.GetPaymentOrder(ctx, f.db, in.OrderID)
	if order.Status != domain.OrderCreated {
		t.Fatalf("order must stay unconsumed, got %q", order.Status)
	}
	f.settle()
	if len(f.mailer.Sent()) != 0 {
		t.Fatalf("no side effects may fire")
	}
}

func TestSubmitPaid_OrderBinding(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 49900)
	other := seedProgram(t, f.db, 49900)
	ctx := context.Background()

	// Signed for an order we never created.
	unknown := applicant(p.ID, "x@example.com")
	in := PaidSubmitInput{ApplicantInput: unknown, OrderID: "order_unknown", PaymentID: "pay_1"}
	in.Signature = f.verifier.Sign(in.OrderID, in.PaymentID)
	if _, err := f.apps.SubmitPaid(ctx, in); !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("expected ErrOrderMismatch for unknown order, got %v", err)
	}

	// Order created for another program.
	in = f.paidInput(t, other, "y@example.com")
	in.ProgramID = p.ID
	if _, err := f.apps.SubmitPaid(ctx, in); !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("expected ErrOrderMismatch for cross-program order, got %v", err)
	}

	// One payment, two applications.
	in = f.paidInput(t, p, "z@example.com")
	if _, err := f.apps.SubmitPaid(ctx, in); err != nil {
		t.Fatalf("first SubmitPaid: %v", err)
	}
	in.Email = "someone-else@example.com"
	if _, err := f.apps.SubmitPaid(ctx, in); !errors.Is(err, ErrPaymentReused) {
		t.Fatalf("expected ErrPaymentReused, got %v", err)
	}
}

func TestSubmitPaid_DisabledWithoutVerifier(t *testing.T) {
	f := newFixture(t)
	f.apps.Verifier = nil
	if _, err := f.apps.SubmitPaid(context.Background(), PaidSubmitInput{}); !errors.Is(err, ErrPaymentsDisabled) {
		t.Fatalf("expected ErrPaymentsDisabled, got %v", err)
	}
}

// ---------- CreateByAdmin() ----------

func TestCreateByAdmin_SelectedFiresTransitionEffects(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 49900)
	ctx := context.Background()

	app, err := f.apps.CreateByAdmin(ctx, AdminCreateInput{
		ApplicantInput: applicant(p.ID, "walkin@example.com"),
		Status:         "SELECTED",
		Notes:          "referral",
	}, "ops@example.com")
	if err != nil {
		t.Fatalf("CreateByAdmin: %v", err)
	}
	if app.Status != domain.StatusSelected || app.CreatedBy != domain.CreatedByAdmin {
		t.Fatalf("unexpected app: %s / %s", app.Status, app.CreatedBy)
	}
	if app.Payment.Status != domain.PaymentAdminExempt {
		t.Fatalf("expected admin_exempt payment, got %q", app.Payment.Status)
	}
	if got := filled(t, f.db, p.ID); got != 1 {
		t.Fatalf("expected ledger +1, got %d", got)
	}

	stored, _ := f.apps.Get(ctx, app.ID)
	if len(stored.History) != 2 || stored.History[0].Status != domain.StatusApplied || stored.History[1].Status != domain.StatusSelected {
		t.Fatalf("unexpected history: %+v", stored.History)
	}

	f.settle()
	if len(f.mailer.SentTo(notify.TplSelected)) != 1 {
		t.Fatalf("expected the selection email")
	}
	if len(f.mailer.SentTo(notify.TplApplicationReceived)) != 0 {
		t.Fatalf("admin-created applications get no confirmation email")
	}
}

func TestCreateByAdmin_IgnoresWindowAndValidatesStatus(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 0)
	f.apps.Now = func() time.Time { return p.EndDate }
	ctx := context.Background()

	app, err := f.apps.CreateByAdmin(ctx, AdminCreateInput{ApplicantInput: applicant(p.ID, "late@example.com")}, "")
	if err != nil {
		t.Fatalf("CreateByAdmin past deadline: %v", err)
	}
	if app.Status != domain.StatusApplied || filled(t, f.db, p.ID) != 0 {
		t.Fatalf("applied admin entry must not touch the ledger")
	}

	_, err = f.apps.CreateByAdmin(ctx, AdminCreateInput{ApplicantInput: applicant(p.ID, "b@example.com"), Status: "hired"}, "")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	_, err = f.apps.CreateByAdmin(ctx, AdminCreateInput{ApplicantInput: applicant(p.ID, "c@example.com"), PaymentStatus: "maybe"}, "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for payment status, got %v", err)
	}
}

// ---------- Verify / admin ops ----------

func TestVerify_ReturnsAvailabilityWithoutBytes(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 0)
	ctx := context.Background()
	app, err := f.apps.Submit(ctx, applicant(p.ID, "v@example.com"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res, err := f.apps.Verify(ctx, "V@EXAMPLE.COM", app.Code)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.ApplicationID != app.Code || res.Status != domain.StatusApplied || res.Program == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Documents) != 3 {
		t.Fatalf("expected three documents, got %d", len(res.Documents))
	}
	for _, d := range res.Documents {
		if d.Available {
			t.Fatalf("applied application must not unlock %s", d.Kind)
		}
	}

	if _, err := f.apps.Verify(ctx, "other@example.com", app.Code); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("wrong email must look like not found, got %v", err)
	}
}

func TestListPageNotesAndStats(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 0)
	ctx := context.Background()
	var ids []string
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		app, err := f.apps.Submit(ctx, applicant(p.ID, email))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, app.ID)
	}
	if _, err := f.workflow.Transition(ctx, ids[0], "shortlisted", "admin", ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	items, total, err := f.apps.ListPage(ctx, repo.ApplicationFilter{Status: domain.StatusApplied}, 1, 1)
	if err != nil || total != 2 || len(items) != 1 {
		t.Fatalf("ListPage: total=%d len=%d err=%v", total, len(items), err)
	}
	empty, total, err := f.apps.ListPage(ctx, repo.ApplicationFilter{Status: domain.StatusCompleted}, 0, 0)
	if err != nil || total != 0 || empty == nil {
		t.Fatalf("empty ListPage should return a non-nil slice: %v %d %v", empty, total, err)
	}

	app, err := f.apps.UpdateNotes(ctx, ids[1], "  call back  ")
	if err != nil || app.Notes != "call back" {
		t.Fatalf("UpdateNotes: %+v err=%v", app, err)
	}
	if _, err := f.apps.UpdateNotes(ctx, "missing", "x"); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound, got %v", err)
	}

	ov, err := f.apps.Stats(ctx, p.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if ov.Total != 3 || ov.ByStatus[domain.StatusApplied] != 2 || ov.ByStatus[domain.StatusShortlisted] != 1 {
		t.Fatalf("unexpected overview: %+v", ov)
	}
}

func TestDelete_SelectedGivesSlotBack(t *testing.T) {
	f := newFixture(t)
	p := seedProgram(t, f.db, 0)
	ctx := context.Background()
	app, err := f.apps.Submit(ctx, applicant(p.ID, "del@example.com"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.workflow.Transition(ctx, app.ID, "selected", "admin", ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if filled(t, f.db, p.ID) != 1 {
		t.Fatalf("expected one filled slot")
	}

	if err := f.apps.Delete(ctx, app.ID, "admin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if filled(t, f.db, p.ID) != 0 {
		t.Fatalf("deleting a selected application must give the slot back")
	}
	if _, err := f.apps.Get(ctx, app.ID); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound after delete, got %v", err)
	}
	if err := f.apps.Delete(ctx, app.ID, "admin"); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound on second delete, got %v", err)
	}
}

func TestReplayAndRemember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app, err := f.apps.Submit(ctx, applicant("", "idem@example.com"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := f.apps.Replay(ctx, "submit", "k1"); got != nil {
		t.Fatalf("unexpected replay before remember")
	}
	f.apps.Remember(ctx, "submit", "k1", app.ID, 201, time.Hour)
	f.apps.Remember(ctx, "submit", "k1", app.ID, 201, time.Hour)
	got := f.apps.Replay(ctx, "submit", "k1")
	if got == nil || got.ID != app.ID {
		t.Fatalf("expected replay of %s, got %+v", app.ID, got)
	}
}

func TestSubmissionOutcome(t *testing.T) {
	cases := map[error]string{
		nil:                     "created",
		ErrDuplicateApplication: "duplicate",
		ErrApplicationsClosed:   "closed",
		ErrSignatureMismatch:    "payment_failed",
		ErrPaymentReused:        "payment_failed",
		invalid("x", "y"):       "invalid",
		errors.New("db down"):   "error",
	}
	for err, want := range cases {
		if got := submissionOutcome(err); got != want {
			t.Fatalf("submissionOutcome(%v) = %q, want %q", err, got, want)
		}
	}
}
