package flow

import (
	"regexp"
	"strings"

	"github.com/BTreeMap/LuckyPipe/internal/models"
)

// Names reported for missing detail fields, in reporting order.
const (
	FieldName   = "Name"
	FieldNumber = "Number"
	FieldEmail  = "Email"
)

// labelPattern matches "label<sep>value" where sep is one of ':', '=' or '-'
// and value runs to the end of the line.
func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + label + `\s*[:=\-]\s*(.+)`)
}

var (
	namePattern   = labelPattern("name")
	numberPattern = labelPattern("number")
	emailPattern  = labelPattern("email")
)

func extractField(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseUserDetails extracts name, phone number and email from free text.
// It returns the details when all three are present, otherwise nil and the
// missing field names in the order Name, Number, Email. Values are not
// checked for phone or email format.
func ParseUserDetails(text string) (*models.UserDetails, []string) {
	d := models.UserDetails{
		Name:        extractField(namePattern, text),
		PhoneNumber: extractField(numberPattern, text),
		Email:       extractField(emailPattern, text),
	}

	var missing []string
	if d.Name == "" {
		missing = append(missing, FieldName)
	}
	if d.PhoneNumber == "" {
		missing = append(missing, FieldNumber)
	}
	if d.Email == "" {
		missing = append(missing, FieldEmail)
	}
	if len(missing) > 0 {
		return nil, missing
	}
	return &d, nil
}
