package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain counters. HTTP traffic metrics live in the middleware package; these
// track what the application lifecycle actually did.
var (
	// Submissions counts submission attempts by path (free|paid|admin) and
	// outcome (created|duplicate|closed|payment_failed|invalid|error).
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "internship_submissions_total",
			Help: "Application submissions by path and outcome.",
		},
		[]string{"path", "outcome"},
	)

	// Transitions counts applied status changes.
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "internship_status_transitions_total",
			Help: "Status workflow transitions by source and target state.",
		},
		[]string{"from", "to"},
	)

	// Documents counts document fetches by kind and result (served|denied|error).
	Documents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "internship_document_fetches_total",
			Help: "Document gate decisions by kind and result.",
		},
		[]string{"kind", "result"},
	)

	// Emails counts best-effort mail dispatches by template and result.
	Emails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "internship_emails_total",
			Help: "Outbound email attempts by template and result.",
		},
		[]string{"template", "result"},
	)

	// ReminderSweeps counts scheduler runs by result (ran|skipped|error).
	ReminderSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "internship_reminder_sweeps_total",
			Help: "Reminder scheduler sweeps by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(Submissions, Transitions, Documents, Emails, ReminderSweeps)
}
