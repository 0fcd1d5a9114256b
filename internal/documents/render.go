// Package documents renders the downloadable credentials issued to
// applicants: the offer letter, the task assignment, and the completion
// certificate. Rendering is pure: callers decide whether a document may be
// issued and what to record afterwards.
package documents

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/internship-backend/internal/domain"
)

// ContentType is the MIME type of every rendered document.
const ContentType = "application/pdf"

// Data is everything a document can print.
type Data struct {
	Name         string
	Code         string
	Email        string
	Institution  string
	ProgramTitle string
	Domain       string
	StartDate    time.Time
	EndDate      time.Time
	TaskTitle    string
	Tasks        []string
}

// Renderer draws PDFs with the organization's letterhead.
type Renderer struct {
	Organization string
	VerifyURL    string // optional; printed on certificates

	// TEST SEAM
	Now func() time.Time
}

// NewRenderer returns a Renderer for org.
func NewRenderer(org string) *Renderer {
	return &Renderer{Organization: org, Now: time.Now}
}

// Filename is deterministic: "<kind>-<CODE>.pdf".
func Filename(kind domain.DocumentKind, code string) string {
	return fmt.Sprintf("%s-%s.pdf", kind, strings.ToUpper(code))
}

// Render writes the document of the given kind to w.
func (r *Renderer) Render(kind domain.DocumentKind, d Data, w io.Writer) error {
	pdf := r.newDoc(kind, d)
	switch kind {
	case domain.DocOfferLetter:
		r.offerLetter(pdf, d)
	case domain.DocTaskAssignment:
		r.taskAssignment(pdf, d)
	case domain.DocCertificate:
		r.certificate(pdf, d)
	default:
		return fmt.Errorf("unknown document kind %q", kind)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render %s: %w", kind, err)
	}
	return pdf.Output(w)
}

// RenderBytes renders into memory. A failed render never yields partial
// bytes.
func (r *Renderer) RenderBytes(kind domain.DocumentKind, d Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(kind, d, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type doc struct {
	*fpdf.Fpdf
	tr func(string) string
}

func (r *Renderer) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Renderer) newDoc(kind domain.DocumentKind, d Data) *doc {
	orientation := "P"
	if kind == domain.DocCertificate {
		orientation = "L"
	}
	pdf := fpdf.New(orientation, "mm", "A4", "")
	pdf.SetCreationDate(r.now())
	pdf.SetTitle(fmt.Sprintf("%s %s", kind, d.Code), true)
	pdf.SetAuthor(r.Organization, true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	return &doc{Fpdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

func (r *Renderer) letterhead(p *doc) {
	p.SetFont("Helvetica", "B", 18)
	p.SetTextColor(20, 40, 90)
	p.CellFormat(0, 10, p.tr(r.Organization), "", 1, "L", false, 0, "")
	p.SetDrawColor(20, 40, 90)
	p.SetLineWidth(0.6)
	x, y := p.GetXY()
	w, _ := p.GetPageSize()
	p.Line(x, y+1, w-20, y+1)
	p.Ln(8)
	p.SetTextColor(0, 0, 0)
}

func (r *Renderer) kv(p *doc, label, value string) {
	if value == "" {
		return
	}
	p.SetFont("Helvetica", "B", 11)
	p.CellFormat(45, 7, p.tr(label), "", 0, "L", false, 0, "")
	p.SetFont("Helvetica", "", 11)
	p.CellFormat(0, 7, p.tr(value), "", 1, "L", false, 0, "")
}

func (r *Renderer) offerLetter(p *doc, d Data) {
	r.letterhead(p)
	p.SetFont("Helvetica", "", 11)
	p.CellFormat(0, 7, p.tr("Date: "+formatDate(r.now())), "", 1, "R", false, 0, "")
	p.Ln(4)

	p.SetFont("Helvetica", "B", 15)
	p.CellFormat(0, 10, "Internship Offer Letter", "", 1, "C", false, 0, "")
	p.Ln(4)

	p.SetFont("Helvetica", "", 11)
	p.MultiCell(0, 6, p.tr(fmt.Sprintf("Dear %s,", displayName(d.Name))), "", "L", false)
	p.Ln(2)
	body := fmt.Sprintf(
		"We are pleased to offer you an internship position%s with %s. "+
			"This offer follows the review of your application and confirmation of your enrollment.",
		programPhrase(d), r.Organization)
	p.MultiCell(0, 6, p.tr(body), "", "J", false)
	p.Ln(4)

	r.kv(p, "Application ID", d.Code)
	r.kv(p, "Program", d.ProgramTitle)
	r.kv(p, "Domain", d.Domain)
	r.kv(p, "Start date", formatDate(d.StartDate))
	r.kv(p, "End date", formatDate(d.EndDate))
	r.kv(p, "Institution", d.Institution)
	p.Ln(6)

	p.MultiCell(0, 6, p.tr("Your task assignment will be shared before the start date. "+
		"Please keep your application ID for all future correspondence."), "", "J", false)
	p.Ln(10)
	p.SetFont("Helvetica", "B", 11)
	p.CellFormat(0, 7, p.tr(r.Organization), "", 1, "L", false, 0, "")
}

func (r *Renderer) taskAssignment(p *doc, d Data) {
	r.letterhead(p)
	p.SetFont("Helvetica", "B", 15)
	p.CellFormat(0, 10, "Task Assignment", "", 1, "C", false, 0, "")
	p.Ln(2)

	r.kv(p, "Intern", displayName(d.Name))
	r.kv(p, "Application ID", d.Code)
	r.kv(p, "Program", d.ProgramTitle)
	r.kv(p, "Domain", d.Domain)
	r.kv(p, "Period", period(d))
	p.Ln(4)

	if d.TaskTitle != "" {
		p.SetFont("Helvetica", "B", 13)
		p.MultiCell(0, 7, p.tr(d.TaskTitle), "", "L", false)
		p.Ln(2)
	}
	p.SetFont("Helvetica", "", 11)
	for i, task := range d.Tasks {
		p.MultiCell(0, 6, p.tr(fmt.Sprintf("%d. %s", i+1, task)), "", "L", false)
		p.Ln(1)
	}
	p.Ln(6)
	p.SetFont("Helvetica", "I", 10)
	p.MultiCell(0, 5, "Submit your work before the end date. Reviews are based on the tasks listed above.", "", "L", false)
}

func (r *Renderer) certificate(p *doc, d Data) {
	w, h := p.GetPageSize()
	p.SetDrawColor(20, 40, 90)
	p.SetLineWidth(1.5)
	p.Rect(10, 10, w-20, h-20, "D")
	p.SetLineWidth(0.4)
	p.Rect(14, 14, w-28, h-28, "D")

	p.SetY(30)
	p.SetFont("Helvetica", "B", 28)
	p.SetTextColor(20, 40, 90)
	p.CellFormat(0, 14, "Certificate of Completion", "", 1, "C", false, 0, "")
	p.Ln(6)

	p.SetTextColor(0, 0, 0)
	p.SetFont("Helvetica", "", 14)
	p.CellFormat(0, 8, "This is to certify that", "", 1, "C", false, 0, "")
	p.Ln(2)
	p.SetFont("Helvetica", "B", 24)
	p.CellFormat(0, 14, p.tr(displayName(d.Name)), "", 1, "C", false, 0, "")
	p.Ln(2)
	p.SetFont("Helvetica", "", 14)
	line := "has successfully completed the internship"
	if d.ProgramTitle != "" {
		line += " " + d.ProgramTitle
	}
	if d.Domain != "" {
		line += " in " + d.Domain
	}
	p.MultiCell(0, 8, p.tr(line), "", "C", false)
	if pr := period(d); pr != "" {
		p.CellFormat(0, 8, p.tr(pr), "", 1, "C", false, 0, "")
	}
	p.Ln(8)
	p.SetFont("Helvetica", "B", 14)
	p.CellFormat(0, 8, p.tr(r.Organization), "", 1, "C", false, 0, "")

	p.SetY(h - 35)
	p.SetFont("Helvetica", "", 10)
	verify := "Certificate ID: " + d.Code
	if r.VerifyURL != "" {
		verify += "  |  Verify at " + r.VerifyURL
	}
	p.CellFormat(0, 6, p.tr(verify), "", 1, "C", false, 0, "")
	p.CellFormat(0, 6, p.tr("Issued "+formatDate(r.now())), "", 1, "C", false, 0, "")
}

// displayName title-cases a name typed in any casing. A Caser holds state,
// so each call gets its own.
func displayName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	return cases.Title(language.Und).String(strings.ToLower(name))
}

func programPhrase(d Data) string {
	switch {
	case d.ProgramTitle != "" && d.Domain != "":
		return fmt.Sprintf(" in %s (%s)", d.ProgramTitle, d.Domain)
	case d.ProgramTitle != "":
		return " in " + d.ProgramTitle
	default:
		return ""
	}
}

func period(d Data) string {
	if d.StartDate.IsZero() || d.EndDate.IsZero() {
		return ""
	}
	return formatDate(d.StartDate) + " to " + formatDate(d.EndDate)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("02 January 2006")
}
