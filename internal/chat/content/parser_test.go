package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PlainText(t *testing.T) {
	blocks := Parse("just a normal answer with no tags")
	require.Len(t, blocks, 1)
	assert.Equal(t, BlockText, blocks[0].Type)
	assert.Equal(t, "just a normal answer with no tags", blocks[0].Text)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse(""))
}

func TestParse_Terminal(t *testing.T) {
	input := "Scanning now.\n" +
		"<terminal><command>nmap -sS 10.0.0.1</command><output>22/tcp open ssh</output><exit-code>0</exit-code></terminal>" +
		"\nDone."

	blocks := Parse(input)
	require.Len(t, blocks, 3)

	assert.Equal(t, BlockText, blocks[0].Type)
	assert.Equal(t, "Scanning now.\n", blocks[0].Text)

	term := blocks[1]
	assert.Equal(t, BlockTerminal, term.Type)
	assert.Equal(t, "nmap -sS 10.0.0.1", term.Command)
	assert.Equal(t, "22/tcp open ssh", term.Output)
	require.NotNil(t, term.ExitCode)
	assert.Equal(t, 0, *term.ExitCode)
	assert.True(t, term.Succeeded())

	assert.Equal(t, "\nDone.", blocks[2].Text)
}

func TestParse_TerminalMissingExitCodeIsSuccess(t *testing.T) {
	blocks := Parse("<terminal><command>whoami</command><output>root</output></terminal>")
	require.Len(t, blocks, 1)
	assert.Nil(t, blocks[0].ExitCode)
	assert.True(t, blocks[0].Succeeded())
}

func TestParse_TerminalNonZeroExit(t *testing.T) {
	blocks := Parse("<terminal><command>cat /etc/shadow</command><output>permission denied</output><exit-code>1</exit-code></terminal>")
	require.Len(t, blocks, 1)
	require.NotNil(t, blocks[0].ExitCode)
	assert.Equal(t, 1, *blocks[0].ExitCode)
	assert.False(t, blocks[0].Succeeded())
}

func TestParse_ShellWait(t *testing.T) {
	blocks := Parse("waiting <shell-wait>30</shell-wait> for the scan")
	require.Len(t, blocks, 3)
	assert.Equal(t, BlockShellWait, blocks[1].Type)
	assert.Equal(t, 30, blocks[1].Seconds)
}

func TestParse_FileContent(t *testing.T) {
	blocks := Parse(`<file-content path="/tmp/payload.sh">#!/bin/sh
echo pwned</file-content>`)
	require.Len(t, blocks, 1)
	assert.Equal(t, BlockFileContent, blocks[0].Type)
	assert.Equal(t, "/tmp/payload.sh", blocks[0].Path)
	assert.Equal(t, "#!/bin/sh\necho pwned", blocks[0].Content)
}

func TestParse_InfoSearchWeb(t *testing.T) {
	blocks := Parse("<info-search-web> CVE-2024-3094 exploit </info-search-web>")
	require.Len(t, blocks, 1)
	assert.Equal(t, BlockInfoSearchWeb, blocks[0].Type)
	assert.Equal(t, "CVE-2024-3094 exploit", blocks[0].Query)
}

func TestParse_UnterminatedTagDegradesToText(t *testing.T) {
	input := "before <terminal><command>nmap</command> and it never closes"
	blocks := Parse(input)
	require.Len(t, blocks, 1)
	assert.Equal(t, BlockText, blocks[0].Type)
	assert.Equal(t, input, blocks[0].Text)
}

func TestParse_UnknownTagIsText(t *testing.T) {
	input := "a <b>bold</b> claim"
	blocks := Parse(input)
	require.Len(t, blocks, 1)
	assert.Equal(t, input, blocks[0].Text)
}

func TestParse_MalformedShellWaitIsText(t *testing.T) {
	input := "<shell-wait>soon</shell-wait>"
	blocks := Parse(input)
	require.Len(t, blocks, 1)
	assert.Equal(t, BlockText, blocks[0].Type)
	assert.Equal(t, input, blocks[0].Text)
}

func TestParse_AdjacentTagged(t *testing.T) {
	blocks := Parse("<shell-wait>5</shell-wait><info-search-web>sqlmap tamper scripts</info-search-web>")
	require.Len(t, blocks, 2)
	assert.Equal(t, BlockShellWait, blocks[0].Type)
	assert.Equal(t, BlockInfoSearchWeb, blocks[1].Type)
}

// Concatenating the text fields of a parse of pure text reproduces the
// input exactly, angle brackets included.
func TestParse_TextRoundTrip(t *testing.T) {
	inputs := []string{
		"x < y and y > z",
		"generics like Vec<T> are fine",
		"<<<>>>",
		"<terminal but not really",
	}
	for _, input := range inputs {
		blocks := Parse(input)
		var got string
		for _, b := range blocks {
			require.Equal(t, BlockText, b.Type)
			got += b.Text
		}
		assert.Equal(t, input, got)
	}
}
