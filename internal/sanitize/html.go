// Package sanitize cleans user-supplied event text before it is stored.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	StrictPolicy = bluemonday.StrictPolicy()

	// DescriptionPolicy allows basic formatting in event descriptions.
	DescriptionPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML and surrounding whitespace.
// Use for: event titles, venue names, search terms.
func Text(input string) string {
	return strings.TrimSpace(StrictPolicy.Sanitize(input))
}

// Description keeps safe formatting tags and drops scripts, frames, event
// handler attributes and styles.
func Description(input string) string {
	return strings.TrimSpace(DescriptionPolicy.Sanitize(input))
}
