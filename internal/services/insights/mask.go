package insights

import (
	"regexp"
	"strings"
)

// PII patterns scanned over every free-text value before it is included
// in a remote prompt.
var (
	emailPattern = regexp.MustCompile(`\b([A-Za-z0-9._%+-])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern  = regexp.MustCompile(`\b(\d{4})[ -]?\d{4}[ -]?\d{4}[ -]?(\d{4})\b`)
	phonePattern = regexp.MustCompile(`\b(\(?\d{3}\)?)[ .-]?\d{3}[ .-]?(\d{4})\b`)
)

// MaskPII redacts email-, phone-, government-id- and card-like values.
// Emails keep the first character and domain, phones keep the area code
// and last four digits, SSNs are fully masked, card numbers keep the
// first and last four digits.
func MaskPII(text string) string {
	if text == "" {
		return text
	}

	out := emailPattern.ReplaceAllString(text, "$1***@$2")
	out = ssnPattern.ReplaceAllString(out, "***-**-****")
	out = cardPattern.ReplaceAllString(out, "$1-****-****-$2")
	out = phonePattern.ReplaceAllStringFunc(out, func(m string) string {
		groups := phonePattern.FindStringSubmatch(m)
		if len(groups) < 3 {
			return "***-***-****"
		}
		area := strings.Trim(groups[1], "()")
		return "(" + area + ") ***-" + groups[2]
	})
	return out
}

// MaskRows masks every cell of the given preview rows
func MaskRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		masked := make([]string, len(row))
		for j, cell := range row {
			masked[j] = MaskPII(cell)
		}
		out[i] = masked
	}
	return out
}
