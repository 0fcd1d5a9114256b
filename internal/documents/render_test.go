package documents

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/internship-backend/internal/domain"
)

func sample() Data {
	return Data{
		Name:         "  jANE   o'neil ",
		Code:         "ABCD2345",
		Email:        "jane@example.com",
		Institution:  "IIT Madras",
		ProgramTitle: "Backend Engineering",
		Domain:       "Web Development",
		StartDate:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		TaskTitle:    "Build a REST API",
		Tasks:        []string{"Design the schema", "Implement handlers", "Write tests"},
	}
}

func TestRender_AllKindsProducePDF(t *testing.T) {
	r := NewRenderer("Acme Labs")
	r.Now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

	for _, kind := range domain.DocumentKinds {
		t.Run(string(kind), func(t *testing.T) {
			b, err := r.RenderBytes(kind, sample())
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")), "missing PDF header")
			assert.Greater(t, len(b), 500)
		})
	}
}

func TestRender_UnknownKind(t *testing.T) {
	_, err := NewRenderer("Acme").RenderBytes(domain.DocumentKind("resume"), sample())
	assert.Error(t, err)
}

func TestRender_SparseDataStillRenders(t *testing.T) {
	b, err := NewRenderer("Acme").RenderBytes(domain.DocCertificate, Data{Name: "x", Code: "ABCD2345"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))
}

func TestRender_NonLatinNameDoesNotFail(t *testing.T) {
	d := sample()
	d.Name = "Zoë Ångström"
	_, err := NewRenderer("Acme").RenderBytes(domain.DocOfferLetter, d)
	assert.NoError(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "offer-letter-ABCD2345.pdf", Filename(domain.DocOfferLetter, "abcd2345"))
	assert.Equal(t, "certificate-ABCD2345.pdf", Filename(domain.DocCertificate, "ABCD2345"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", displayName("  jANE   doe "))
	assert.Equal(t, "", displayName("   "))
}

func TestPeriodAndPhrase(t *testing.T) {
	d := sample()
	assert.Equal(t, "01 June 2026 to 01 August 2026", period(d))
	assert.Equal(t, " in Backend Engineering (Web Development)", programPhrase(d))
	assert.Equal(t, "", period(Data{}))
	assert.Equal(t, "", programPhrase(Data{}))
}
