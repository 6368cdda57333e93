// Package snippet extracts the single executable code block from a skill's
// document body. Blocks may carry a label after the language in the fence
// info string; a "test-execution" block is authoritative, otherwise the
// first unlabeled block wins. "usage-example" blocks are documentation and
// never selected.
package snippet

import (
	"errors"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Labels recognized in fence info strings, e.g. ```go test-execution.
const (
	LabelTestExecution = "test-execution"
	LabelUsageExample  = "usage-example"
)

var (
	// ErrNoSnippet means the document body contains no selectable block.
	ErrNoSnippet = errors.New("no executable snippet in document body")
	// ErrUnterminated means a fence was opened but never closed.
	ErrUnterminated = errors.New("unterminated code fence in document body")
)

// Block is one fenced code block found in a document body.
type Block struct {
	Language string
	Label    string
	Code     string
}

// Extract returns the code of the one block selected per the precedence
// rule. Exactly one snippet is selected per execution attempt.
func Extract(body string) (string, error) {
	blocks, err := Blocks(body)
	if err != nil {
		return "", err
	}

	var firstUnlabeled *Block
	for i := range blocks {
		b := &blocks[i]
		if b.Language != "go" {
			continue
		}
		if b.Label == LabelTestExecution {
			return b.Code, nil
		}
		if b.Label == "" && firstUnlabeled == nil {
			firstUnlabeled = b
		}
	}
	if firstUnlabeled != nil {
		return firstUnlabeled.Code, nil
	}
	return "", ErrNoSnippet
}

// Blocks parses every fenced code block in document order.
func Blocks(body string) ([]Block, error) {
	if err := checkFencesTerminated(body); err != nil {
		return nil, err
	}

	source := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []Block
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var info string
		if fcb.Info != nil {
			info = strings.TrimSpace(string(fcb.Info.Segment.Value(source)))
		}
		fields := strings.Fields(info)
		var lang, label string
		if len(fields) > 0 {
			lang = fields[0]
		}
		if len(fields) > 1 {
			label = fields[1]
		}

		var sb strings.Builder
		lines := fcb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(source))
		}

		blocks = append(blocks, Block{Language: lang, Label: label, Code: sb.String()})
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// checkFencesTerminated rejects a document whose last opened fence never
// closes. The markdown parser silently swallows the rest of the document in
// that case, which here is a definition error, not a cosmetic one.
func checkFencesTerminated(body string) error {
	open := false
	var openMarker string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if !open {
			if strings.HasPrefix(trimmed, "```") {
				open = true
				openMarker = leadingBackticks(trimmed)
			}
			continue
		}
		if strings.HasPrefix(trimmed, openMarker) && strings.Trim(trimmed, "`") == "" {
			open = false
		}
	}
	if open {
		return ErrUnterminated
	}
	return nil
}

func leadingBackticks(s string) string {
	n := 0
	for n < len(s) && s[n] == '`' {
		n++
	}
	return s[:n]
}
