package reply

import (
	"regexp"
	"strings"
)

// MatchFields returns the names in vocabulary that occur in text as whole
// words, ignoring case. Results keep vocabulary order.
func MatchFields(text string, vocabulary []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, name := range vocabulary {
		if name == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(name)) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(lower) {
			found = append(found, name)
		}
	}
	return found
}
