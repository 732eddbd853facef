package content

import (
	"fmt"
	"regexp"
	"strconv"
)

var citationRef = regexp.MustCompile(`\[(\d+)\]`)

// RewriteCitations turns numeric references like [2] into markdown
// links against the 1-based citations list. Out-of-range or unparsable
// references are left verbatim. Call it on raw model text only, at
// render time.
func RewriteCitations(text string, citations []string) string {
	if len(citations) == 0 {
		return text
	}

	return citationRef.ReplaceAllStringFunc(text, func(ref string) string {
		n, err := strconv.Atoi(ref[1 : len(ref)-1])
		if err != nil || n < 1 || n > len(citations) {
			return ref
		}
		return fmt.Sprintf("[%d](%s)", n, citations[n-1])
	})
}
