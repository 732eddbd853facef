// Package content parses assistant output into renderable blocks and
// resolves citation references.
package content

// BlockType discriminates parsed content blocks.
type BlockType string

const (
	BlockText          BlockType = "text"
	BlockTerminal      BlockType = "terminal"
	BlockShellWait     BlockType = "shell-wait"
	BlockFileContent   BlockType = "file-content"
	BlockInfoSearchWeb BlockType = "info-search-web"
)

// Block is one parsed unit of assistant output. Exactly the fields for
// its Type are set.
type Block struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// terminal
	Command  string `json:"command,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`

	// shell-wait
	Seconds int `json:"seconds,omitempty"`

	// file-content
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`

	// info-search-web
	Query string `json:"query,omitempty"`
}

// Succeeded reports whether a terminal block ran cleanly. A missing
// exit code counts as success.
func (b *Block) Succeeded() bool {
	return b.ExitCode == nil || *b.ExitCode == 0
}
