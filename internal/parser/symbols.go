package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sokinpui/chatdoc/model"
)

// titleRunes is how much content an unnamed block shows in its title.
const titleRunes = 30

// Title is the block's name, or its type and the start of its content.
func Title(b model.Block) string {
	if b.Name != "" {
		return b.Name
	}
	preview := strings.Join(strings.Fields(b.Content), " ")
	if utf8.RuneCountInString(preview) > titleRunes {
		preview = string([]rune(preview)[:titleRunes]) + "..."
	}
	return "[" + string(b.Type) + "] " + preview
}

// Symbols describes every block in text with its line range and the fenced
// code blocks inside it. blocks must come from Parse(text).
func Symbols(text string, blocks []model.Block) ([]model.BlockSymbol, error) {
	symbols := make([]model.BlockSymbol, 0, len(blocks))
	for _, b := range blocks {
		sym := model.BlockSymbol{
			ID:        b.ID,
			Type:      b.Type,
			State:     b.State,
			Title:     Title(b),
			StartLine: lineAt(text, b.Span.Start),
			EndLine:   lineAt(text, b.Span.End),
		}

		fences, err := FindCodeFences(b.Content)
		if err != nil {
			return nil, err
		}
		first := lineAt(text, contentStart(text, b))
		for _, f := range fences {
			f.StartLine += first
			f.EndLine += first
			sym.Fences = append(sym.Fences, f)
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// contentStart finds where b's trimmed content begins in text. The closing
// tag sits at the end of the span and only whitespace separates it from the
// content.
func contentStart(text string, b model.Block) int {
	closeAt := b.Span.End - len("</"+string(b.Type)+">")
	end := len(strings.TrimRightFunc(text[b.Span.Start:closeAt], unicode.IsSpace))
	return b.Span.Start + end - len(b.Content)
}

func lineAt(text string, offset int) int {
	return strings.Count(text[:offset], "\n")
}
