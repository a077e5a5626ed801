package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sokinpui/chatdoc/model"
)

var (
	// ErrUnsupportedType is returned when a block type has no tag letter.
	ErrUnsupportedType = errors.New("block type has no tag letter")
	// ErrInvalidAttribute is returned for an empty id or an attribute value
	// containing a double quote.
	ErrInvalidAttribute = errors.New("invalid block attribute")
	// ErrClosingTagInContent is returned when content holds the block's own
	// closing tag. The grammar has no escape for it.
	ErrClosingTagInContent = errors.New("content contains the closing tag")
)

var (
	// openTagRegex matches the opening tag of a block. Attribute order is fixed:
	// id, then optional name, then optional model.
	openTagRegex = regexp.MustCompile(
		`<(?P<type>[SUAN])\s+(?P<state>[AI])\s+id="(?P<id>[^"]+)"` +
			`(?:\s+name="(?P<name>[^"]+)")?` +
			`(?:\s+model="(?P<model>[^"]+)")?\s*>`)

	headingRegex = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)
)

// Parse scans text left to right and returns every well-formed block, in
// source order. Malformed or unterminated tags and text between blocks are
// skipped.
func Parse(text string) []model.Block {
	var blocks []model.Block
	names := openTagRegex.SubexpNames()

	pos := 0
	for pos < len(text) {
		loc := openTagRegex.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			if i == 0 || name == "" || loc[2*i] < 0 {
				continue
			}
			attrs[name] = text[pos+loc[2*i] : pos+loc[2*i+1]]
		}

		start := pos + loc[0]
		contentStart := pos + loc[1]
		closing := "</" + attrs["type"] + ">"
		rel := strings.Index(text[contentStart:], closing)
		if rel < 0 {
			// No matching closing tag: retry one byte past this opening.
			pos = start + 1
			continue
		}
		contentEnd := contentStart + rel
		end := contentEnd + len(closing)

		blocks = append(blocks, model.Block{
			Type:       model.BlockType(attrs["type"]),
			State:      model.BlockState(attrs["state"]),
			ID:         attrs["id"],
			Name:       attrs["name"],
			ModelAlias: attrs["model"],
			Content:    strings.TrimSpace(text[contentStart:contentEnd]),
			Span:       model.Span{Start: start, End: end},
		})
		pos = end
	}

	return blocks
}

// Serialize renders a block back into its tagged form. Optional attributes are
// only emitted when set.
func Serialize(b model.Block) string {
	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(string(b.Type))
	sb.WriteString(" ")
	sb.WriteString(string(b.State))
	fmt.Fprintf(&sb, ` id="%s"`, b.ID)
	if b.Name != "" {
		fmt.Fprintf(&sb, ` name="%s"`, b.Name)
	}
	if b.ModelAlias != "" {
		fmt.Fprintf(&sb, ` model="%s"`, b.ModelAlias)
	}
	sb.WriteString(">")
	sb.WriteString(b.Content)
	sb.WriteString("</")
	sb.WriteString(string(b.Type))
	sb.WriteString(">")
	return sb.String()
}

// SerializeChecked is Serialize for callers writing into a document. It
// refuses any block Parse could not read back unchanged.
func SerializeChecked(b model.Block) (string, error) {
	if !b.Type.Taggable() {
		return "", fmt.Errorf("serialize block %q: %w: %s", b.ID, ErrUnsupportedType, b.Type)
	}
	if b.ID == "" {
		return "", fmt.Errorf("serialize block: %w: empty id", ErrInvalidAttribute)
	}
	for _, attr := range []struct{ key, value string }{
		{"id", b.ID},
		{"name", b.Name},
		{"model", b.ModelAlias},
	} {
		if strings.Contains(attr.value, `"`) {
			return "", fmt.Errorf("serialize block %q: %w: %s contains a double quote", b.ID, ErrInvalidAttribute, attr.key)
		}
	}
	if closing := "</" + string(b.Type) + ">"; strings.Contains(b.Content, closing) {
		return "", fmt.Errorf("serialize block %q: %w %s", b.ID, ErrClosingTagInContent, closing)
	}
	return Serialize(b), nil
}

// FindHeadings locates ATX heading lines ("#" to "######").
func FindHeadings(text string) []model.Heading {
	var headings []model.Heading
	line := 0
	last := 0
	for _, m := range headingRegex.FindAllStringSubmatchIndex(text, -1) {
		line += strings.Count(text[last:m[0]], "\n")
		last = m[0]

		headings = append(headings, model.Heading{
			Level: m[3] - m[2],
			Text:  strings.TrimRight(text[m[4]:m[5]], " \t\r"),
			Line:  line,
			Span:  model.Span{Start: m[0], End: m[1]},
		})
	}
	return headings
}

// BlockAt returns the block whose span contains offset.
func BlockAt(blocks []model.Block, offset int) (model.Block, bool) {
	for _, b := range blocks {
		if b.Span.Contains(offset) {
			return b, true
		}
	}
	return model.Block{}, false
}
