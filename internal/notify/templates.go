package notify

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"github.com/tbourn/internship-backend/internal/domain"
)

// Template names.
const (
	TplApplicationReceived  = "application_received"
	TplSelected             = "selected"
	TplCertificateAvailable = "certificate_available"
	TplTaskReminder         = "task_reminder"
)

// MailData is the view model every template renders from.
type MailData struct {
	Organization string
	Name         string
	Code         string
	Email        string
	ProgramTitle string
	Domain       string
	StartDate    string
	EndDate      string
}

// NewMailData builds the view model for app. Program fields are blank when the
// application is not tied to a program.
func NewMailData(org string, app *domain.Application) MailData {
	d := MailData{
		Organization: org,
		Name:         app.Name,
		Code:         app.Code,
		Email:        app.Email,
	}
	if p := app.Program; p != nil {
		d.ProgramTitle = p.Title
		d.Domain = p.Domain
		d.StartDate = formatDate(p.StartDate)
		d.EndDate = formatDate(p.EndDate)
	}
	return d
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("02 Jan 2006")
}

var subjects = map[string]string{
	TplApplicationReceived:  "We received your application ({{.Code}})",
	TplSelected:             "Congratulations {{.Name}}, you have been selected",
	TplCertificateAvailable: "Your internship certificate is ready",
	TplTaskReminder:         "Your internship starts tomorrow",
}

const layout = `<!doctype html><html><body style="font-family:Arial,sans-serif">
<p>Hi {{.Name}},</p>
{{template "body" .}}
<p>Your application ID is <strong>{{.Code}}</strong>. Keep it together with this email address to download your documents.</p>
<p>{{.Organization}}</p>
</body></html>`

var bodies = map[string]string{
	TplApplicationReceived:  `{{define "body"}}<p>Thank you for applying{{if .ProgramTitle}} to <strong>{{.ProgramTitle}}</strong>{{end}}. Our team will review your application and get back to you.</p>{{end}}`,
	TplSelected:             `{{define "body"}}<p>You have been selected{{if .ProgramTitle}} for <strong>{{.ProgramTitle}}</strong> ({{.Domain}}){{end}}.{{if .StartDate}} The internship runs from {{.StartDate}} to {{.EndDate}}.{{end}} Your offer letter is now available for download.</p>{{end}}`,
	TplCertificateAvailable: `{{define "body"}}<p>Congratulations on completing{{if .ProgramTitle}} <strong>{{.ProgramTitle}}</strong>{{else}} your internship{{end}}.{{if .EndDate}} Your certificate can be downloaded from {{.EndDate}}.{{end}}</p>{{end}}`,
	TplTaskReminder:         `{{define "body"}}<p>This is a reminder that{{if .ProgramTitle}} <strong>{{.ProgramTitle}}</strong>{{else}} your internship{{end}} starts tomorrow{{if .StartDate}} ({{.StartDate}}){{end}}. Your task assignment is available for download.</p>{{end}}`,
}

var (
	subjectTpls = map[string]*texttemplate.Template{}
	bodyTpls    = map[string]*template.Template{}
)

func init() {
	for name, s := range subjects {
		subjectTpls[name] = texttemplate.Must(texttemplate.New(name + "_subject").Parse(s))
	}
	for name, b := range bodies {
		t := template.Must(template.New(name).Parse(layout))
		bodyTpls[name] = template.Must(t.Parse(b))
	}
}

// Render builds the message for template name addressed to d.Email.
func Render(name string, d MailData) (Message, error) {
	st, ok := subjectTpls[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail template %q", name)
	}
	var subj, body bytes.Buffer
	if err := st.Execute(&subj, d); err != nil {
		return Message{}, err
	}
	if err := bodyTpls[name].Execute(&body, d); err != nil {
		return Message{}, err
	}
	return Message{
		To:       d.Email,
		Subject:  subj.String(),
		HTML:     body.String(),
		Template: name,
	}, nil
}
