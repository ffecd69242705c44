// Package redact classifies form elements as sensitive and scrubs personal
// data from captured values before they are persisted. Patterns use Go's RE2
// regexp package for guaranteed linear-time matching, and redaction is
// idempotent: masked output contains nothing the patterns can match again.
package redact

import (
	"regexp"
	"strings"

	"github.com/stepcap/stepcap/internal/protocol"
)

// PasswordMask replaces password input values wholesale.
const PasswordMask = "********"

// sensitiveInputTypes are input type attributes whose values are never
// recorded in the clear.
var sensitiveInputTypes = map[string]bool{
	"password":  true,
	"email":     true,
	"tel":       true,
	"cc-number": true,
}

// sensitiveAutocomplete are autocomplete tokens that mark a field as
// carrying credentials or payment data.
var sensitiveAutocomplete = []string{
	"current-password",
	"new-password",
	"one-time-code",
	"cc-number",
	"cc-exp",
	"cc-csc",
}

// passwordKeywords flag password-ish fields by name or id, case-insensitive.
var passwordKeywords = []string{"password", "passwd", "pwd", "secret"}

// pattern pairs a compiled regex with its replacement function. Patterns
// target disjoint token shapes, so application order does not affect the
// result; they still run in a fixed sequence for determinism.
type pattern struct {
	name string
	re   *regexp.Regexp
	repl func(match string) string
}

var patterns = []pattern{
	{
		// 123-45-6789 → ***-**-****
		name: "ssn",
		re:   regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		repl: func(string) string { return "***-**-****" },
	},
	{
		// 16-digit card numbers keep only the last 4 digits.
		name: "credit-card",
		re:   regexp.MustCompile(`\b(?:\d[ -]?){12}\d{4}\b`),
		repl: func(m string) string {
			digits := strings.Map(keepDigits, m)
			return "**** **** **** " + digits[len(digits)-4:]
		},
	},
	{
		// Phone-like digit runs: mask every digit, keep separators.
		name: "phone",
		re:   regexp.MustCompile(`\b(?:\+?\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`),
		repl: func(m string) string {
			return strings.Map(func(r rune) rune {
				if r >= '0' && r <= '9' {
					return '*'
				}
				return r
			}, m)
		},
	},
	{
		// j.doe@example.com → j***@example.com
		name: "email",
		re:   regexp.MustCompile(`\b([A-Za-z0-9._%+-])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`),
		repl: func(m string) string {
			at := strings.IndexByte(m, '@')
			return m[:1] + "***@" + m[at+1:]
		},
	},
}

func keepDigits(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

// IsSensitive reports whether an element's value must be masked before it is
// recorded. Classification never touches the live page; it works purely on
// the captured descriptor.
func IsSensitive(el protocol.ElementInfo) bool {
	typ := strings.ToLower(el.Attributes["type"])
	if sensitiveInputTypes[typ] {
		return true
	}

	auto := strings.ToLower(el.Attributes["autocomplete"])
	for _, token := range sensitiveAutocomplete {
		if strings.Contains(auto, token) {
			return true
		}
	}

	nameID := strings.ToLower(el.Attributes["name"] + " " + el.Attributes["id"])
	for _, kw := range passwordKeywords {
		if strings.Contains(nameID, kw) {
			return true
		}
	}
	return false
}

// Value returns the element's value safe for persistence: password inputs
// get the fixed mask, everything else goes through Text.
func Value(el protocol.ElementInfo) string {
	if strings.EqualFold(el.Attributes["type"], "password") {
		return PasswordMask
	}
	return Text(el.Value)
}

// Text scrubs personal data tokens (emails, phone numbers, card numbers,
// SSNs) from free text. Applying Text to its own output is a no-op.
func Text(s string) string {
	for _, p := range patterns {
		s = p.re.ReplaceAllStringFunc(s, p.repl)
	}
	return s
}
