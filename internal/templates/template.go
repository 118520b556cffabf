// Package templates renders the notification email for a form submission.
package templates

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"text/template"

	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

// Subject is constant; it is never derived from the submission.
const Subject = "!!!DO NOT REPLY THIS EMAIL!!! - New form submission from website"

const submissionHTML = `
<h1>Submission information</h1>

<h2>Name</h2>
<p>{{ .Name }}</p>

<h2>Phone number</h2>
<p>[{{ .CountryCode }}-{{ .CountryName }}] +{{ .Phone }}</p>

<h2>Email</h2>
<p>{{ .Email }}</p>

<h2>Note</h2>
<p style="white-space: pre-wrap;">{{ .Note }}</p>
`

var submissionTmpl = template.Must(template.New("submission").Parse(submissionHTML))

// Fields holds the submission values after display normalization.
type Fields struct {
	Name        string
	CountryCode string
	CountryName string
	Phone       string
	Email       string
	Note        string
}

// Normalize applies the display rules: name and phone trimmed, country code
// upper-cased, email trimmed and lower-cased, note untouched.
func Normalize(s types.Submission) Fields {
	return Fields{
		Name:        strings.TrimSpace(s.Name),
		CountryCode: strings.ToUpper(s.CountryCode),
		CountryName: s.CountryName,
		Phone:       strings.TrimSpace(s.Phone),
		Email:       strings.ToLower(strings.TrimSpace(s.Email)),
		Note:        s.Note,
	}
}

// Compose renders the HTML body for s. User values are inserted as-is unless
// escape is true.
func Compose(s types.Submission, escape bool) (string, error) {
	f := Normalize(s)
	if escape {
		f = Fields{
			Name:        html.EscapeString(f.Name),
			CountryCode: html.EscapeString(f.CountryCode),
			CountryName: html.EscapeString(f.CountryName),
			Phone:       html.EscapeString(f.Phone),
			Email:       html.EscapeString(f.Email),
			Note:        html.EscapeString(f.Note),
		}
	}

	var buf bytes.Buffer
	if err := submissionTmpl.Execute(&buf, f); err != nil {
		return "", fmt.Errorf("failed to render submission template: %w", err)
	}
	return buf.String(), nil
}

// FormatFrom builds the From header value: "Name" <address>.
func FormatFrom(name, address string) string {
	return fmt.Sprintf("%q <%s>", name, address)
}
