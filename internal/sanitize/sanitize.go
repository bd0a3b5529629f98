// Package sanitize cleans citizen-submitted text before it is stored.
// Pothole reports arrive from an untrusted public form; descriptions and
// location strings must not carry HTML into the admin view. Uses
// bluemonday's strict policy, which strips all markup.
package sanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton strict policy. Initialized once via sync.Once
// for thread-safe lazy initialization.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text strips all HTML from user-provided text and trims surrounding
// whitespace. MUST be called on every free-text field from the public
// report form before it reaches the database.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(getPolicy().Sanitize(input))
}
