package compiler

import (
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// block is one heading-delimited region of a guidance document.
type block struct {
	heading string
	lines   []string // raw content lines, in document order
	bullets []string // list item texts, for implicit rule extraction
}

// markdownParser is initialized once and reused. The goldmark Parser is
// safe to share; parsing allocates per-call state via Parse(reader).
var (
	markdownParser goldmark.Markdown
	parserOnce     sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		markdownParser = goldmark.New()
	})
	return markdownParser
}

// splitBlocks parses a markdown document and splits it into blocks at
// heading and thematic-break boundaries. A leading region before the
// first heading becomes a headingless block. Malformed input cannot
// fail: goldmark parses any byte sequence into some tree.
func splitBlocks(doc string) []block {
	if strings.TrimSpace(doc) == "" {
		return nil
	}

	source := []byte(doc)
	root := getParser().Parser().Parse(text.NewReader(source))

	var blocks []block
	current := block{}
	flush := func() {
		if current.heading != "" || len(current.lines) > 0 {
			blocks = append(blocks, current)
		}
		current = block{}
	}

	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			flush()
			current.heading = nodeText(n, source)
		case *ast.ThematicBreak:
			flush()
		case *ast.List:
			collectList(n, source, &current)
		default:
			appendLines(&current, nodeText(node, source))
		}
	}
	flush()

	return blocks
}

// collectList appends each list item's text both to the block's lines
// (for explicit rule-ID scanning) and to its bullets (for implicit
// extraction). Nested lists flatten into the same block.
func collectList(list *ast.List, source []byte, blk *block) {
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var itemText []string
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			if nested, ok := child.(*ast.List); ok {
				collectList(nested, source, blk)
				continue
			}
			if t := nodeText(child, source); t != "" {
				itemText = append(itemText, t)
			}
		}
		if len(itemText) > 0 {
			joined := strings.Join(itemText, " ")
			blk.bullets = append(blk.bullets, joined)
			appendLines(blk, joined)
		}
	}
}

// nodeText extracts the raw source text covered by a node. Leaf blocks
// expose their line segments directly; container nodes recurse.
func nodeText(n ast.Node, source []byte) string {
	if n.Lines() != nil && n.Lines().Len() > 0 {
		var sb strings.Builder
		for i := 0; i < n.Lines().Len(); i++ {
			seg := n.Lines().At(i)
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.Write(seg.Value(source))
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	var parts []string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t := nodeText(child, source); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func appendLines(blk *block, text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t")
		if line != "" {
			blk.lines = append(blk.lines, line)
		}
	}
}
