package content

import (
	"strconv"
	"strings"
)

// Parse splits assistant output into blocks in a single pass. The
// parser is total: malformed or unterminated tags fall back to plain
// text, and adjacent text runs are merged.
func Parse(input string) []Block {
	var blocks []Block
	var text strings.Builder

	flushText := func() {
		if text.Len() > 0 {
			blocks = append(blocks, Block{Type: BlockText, Text: text.String()})
			text.Reset()
		}
	}

	i := 0
	for i < len(input) {
		if input[i] != '<' {
			j := strings.IndexByte(input[i:], '<')
			if j < 0 {
				text.WriteString(input[i:])
				break
			}
			text.WriteString(input[i : i+j])
			i += j
			continue
		}

		block, consumed := matchTag(input[i:])
		if consumed == 0 {
			text.WriteByte('<')
			i++
			continue
		}

		flushText()
		blocks = append(blocks, block)
		i += consumed
	}

	flushText()
	return blocks
}

// matchTag tries to parse a tagged block at the start of s. It returns
// the block and the number of bytes consumed, or consumed == 0 when s
// does not start a complete well-formed tag.
func matchTag(s string) (Block, int) {
	switch {
	case strings.HasPrefix(s, "<terminal>"):
		body, consumed := tagBody(s, "<terminal>", "</terminal>")
		if consumed == 0 {
			return Block{}, 0
		}
		return parseTerminal(body), consumed

	case strings.HasPrefix(s, "<shell-wait>"):
		body, consumed := tagBody(s, "<shell-wait>", "</shell-wait>")
		if consumed == 0 {
			return Block{}, 0
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(body))
		if err != nil || seconds < 0 {
			return Block{}, 0
		}
		return Block{Type: BlockShellWait, Seconds: seconds}, consumed

	case strings.HasPrefix(s, "<info-search-web>"):
		body, consumed := tagBody(s, "<info-search-web>", "</info-search-web>")
		if consumed == 0 {
			return Block{}, 0
		}
		return Block{Type: BlockInfoSearchWeb, Query: strings.TrimSpace(body)}, consumed

	case strings.HasPrefix(s, "<file-content"):
		return matchFileContent(s)

	default:
		return Block{}, 0
	}
}

// tagBody extracts the body between open and close. consumed == 0 means
// the closing tag never appears.
func tagBody(s, open, close string) (string, int) {
	rest := s[len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		return "", 0
	}
	return rest[:end], len(open) + end + len(close)
}

// matchFileContent handles the one tag that carries attributes:
// <file-content path="...">body</file-content>.
func matchFileContent(s string) (Block, int) {
	gt := strings.IndexByte(s, '>')
	if gt < 0 {
		return Block{}, 0
	}
	openTag := s[:gt+1]

	// the name must be followed by an attribute or the closing bracket
	afterName := s[len("<file-content")]
	if afterName != ' ' && afterName != '>' {
		return Block{}, 0
	}

	rest := s[gt+1:]
	end := strings.Index(rest, "</file-content>")
	if end < 0 {
		return Block{}, 0
	}

	return Block{
		Type:    BlockFileContent,
		Path:    attrValue(openTag, "path"),
		Content: rest[:end],
	}, gt + 1 + end + len("</file-content>")
}

func parseTerminal(body string) Block {
	block := Block{
		Type:    BlockTerminal,
		Command: innerTag(body, "command"),
		Output:  innerTag(body, "output"),
	}

	if raw := innerTag(body, "exit-code"); raw != "" {
		if code, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			block.ExitCode = &code
		}
	}

	return block
}

// innerTag returns the body of the first <name>...</name> pair, or "".
func innerTag(s, name string) string {
	open := "<" + name + ">"
	start := strings.Index(s, open)
	if start < 0 {
		return ""
	}
	rest := s[start+len(open):]
	end := strings.Index(rest, "</"+name+">")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// attrValue extracts a double-quoted attribute from an open tag.
func attrValue(openTag, name string) string {
	marker := name + `="`
	start := strings.Index(openTag, marker)
	if start < 0 {
		return ""
	}
	rest := openTag[start+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
