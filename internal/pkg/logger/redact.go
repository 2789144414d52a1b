package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	name, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactEmails masks every address in a list.
func RedactEmails(emails []string) []string {
	out := make([]string, len(emails))
	for i, e := range emails {
		out[i] = RedactEmail(e)
	}
	return out
}
