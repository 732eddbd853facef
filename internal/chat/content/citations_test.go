package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteCitations(t *testing.T) {
	citations := []string{
		"https://nvd.nist.gov/vuln/detail/CVE-2024-3094",
		"https://nmap.org/book/man.html",
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"in range",
			"see [1] and [2] for details",
			"see [1](https://nvd.nist.gov/vuln/detail/CVE-2024-3094) and [2](https://nmap.org/book/man.html) for details",
		},
		{
			"out of range left verbatim",
			"see [3] and [0]",
			"see [3] and [0]",
		},
		{
			"mixed",
			"[1] then [9]",
			"[1](https://nvd.nist.gov/vuln/detail/CVE-2024-3094) then [9]",
		},
		{
			"non numeric untouched",
			"an [x] marker and [ 1 ] spaced",
			"an [x] marker and [ 1 ] spaced",
		},
		{
			"no references",
			"nothing to do here",
			"nothing to do here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RewriteCitations(tt.in, citations))
		})
	}
}

func TestRewriteCitations_NoCitations(t *testing.T) {
	assert.Equal(t, "see [1]", RewriteCitations("see [1]", nil))
	assert.Equal(t, "see [1]", RewriteCitations("see [1]", []string{}))
}
