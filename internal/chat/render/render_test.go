package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pentestgpt-backend/internal/chat/content"
)

func TestRenderMessage(t *testing.T) {
	r := New()

	raw := "See [1] for the advisory.\n" +
		"<terminal><command>id</command><output>uid=0(root)</output></terminal>"
	citations := []string{"https://example.com/advisory"}

	blocks, err := r.RenderMessage(raw, citations)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, content.BlockText, blocks[0].Type)
	assert.Contains(t, blocks[0].HTML, `<a href="https://example.com/advisory">1</a>`)

	assert.Equal(t, content.BlockTerminal, blocks[1].Type)
	assert.Equal(t, "id", blocks[1].Command)
	assert.Equal(t, "uid=0(root)", blocks[1].Output)
	assert.Empty(t, blocks[1].HTML)
}

func TestRenderMarkdown_GFM(t *testing.T) {
	r := New()

	html, err := r.RenderMarkdown("| a | b |\n|---|---|\n| 1 | 2 |")
	require.NoError(t, err)
	assert.Contains(t, html, "<table>")
}
