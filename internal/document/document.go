package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sokinpui/chatdoc/model"
)

// ErrInvalidEdit is returned when an edit set cannot be applied as a whole.
var ErrInvalidEdit = errors.New("invalid edit")

// Document is the text a chat session lives in. Implementations apply an edit
// set atomically: either every edit lands or none does.
type Document interface {
	Text() string
	PositionAt(offset int) model.Position
	OffsetAt(pos model.Position) int
	ApplyEdits(edits []model.Edit) error
}

// Versioned is implemented by documents that count their changes.
type Versioned interface {
	Version() int
}

// PositionAt converts a byte offset in text into a line and byte column.
// Offsets outside the text are clamped.
func PositionAt(text string, offset int) model.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	before := text[:offset]
	line := strings.Count(before, "\n")
	col := offset - (strings.LastIndexByte(before, '\n') + 1)
	return model.Position{Line: line, Column: col}
}

// OffsetAt converts a line and byte column into an offset in text. Positions
// past the end of a line or of the text are clamped.
func OffsetAt(text string, pos model.Position) int {
	if pos.Line < 0 {
		return 0
	}
	offset := 0
	for line := 0; line < pos.Line; line++ {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return len(text)
		}
		offset += i + 1
	}
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text) - offset
	}
	col := pos.Column
	if col < 0 {
		col = 0
	}
	if col > end {
		col = end
	}
	return offset + col
}

// Validate checks that every edit lies within a text of the given length and
// that no two edits overlap. It returns the edits sorted by ascending start.
func Validate(length int, edits []model.Edit) ([]model.Edit, error) {
	sorted := make([]model.Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Span.Start < sorted[j].Span.Start
	})

	prevEnd := 0
	for i, e := range sorted {
		if e.Span.Start < 0 || e.Span.End < e.Span.Start || e.Span.End > length {
			return nil, fmt.Errorf("%w: span [%d,%d) outside text of length %d",
				ErrInvalidEdit, e.Span.Start, e.Span.End, length)
		}
		if i > 0 && e.Span.Start < prevEnd {
			return nil, fmt.Errorf("%w: span [%d,%d) overlaps previous edit",
				ErrInvalidEdit, e.Span.Start, e.Span.End)
		}
		prevEnd = e.Span.End
	}
	return sorted, nil
}

// Apply returns text with all edits applied. Spans refer to the original text.
func Apply(text string, edits []model.Edit) (string, error) {
	sorted, err := Validate(len(text), edits)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, e := range sorted {
		b.WriteString(text[last:e.Span.Start])
		b.WriteString(e.Text)
		last = e.Span.End
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// Buffer is an in-memory Document.
type Buffer struct {
	text    string
	version int
}

// NewBuffer creates a Buffer holding text.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

func (b *Buffer) Text() string { return b.text }

func (b *Buffer) Version() int { return b.version }

func (b *Buffer) PositionAt(offset int) model.Position { return PositionAt(b.text, offset) }

func (b *Buffer) OffsetAt(pos model.Position) int { return OffsetAt(b.text, pos) }

// ApplyEdits applies edits atomically. An empty set is a no-op and does not
// bump the version.
func (b *Buffer) ApplyEdits(edits []model.Edit) error {
	if len(edits) == 0 {
		return nil
	}
	text, err := Apply(b.text, edits)
	if err != nil {
		return err
	}
	b.text = text
	b.version++
	return nil
}

// SetText replaces the whole content, as an external editor would.
func (b *Buffer) SetText(text string) {
	b.text = text
	b.version++
}

// AppendEdit returns the edit that appends text at the end of doc, separated
// from existing content by a blank line.
func AppendEdit(doc Document, text string) model.Edit {
	current := doc.Text()
	end := len(current)
	sep := ""
	if strings.TrimSpace(current) != "" {
		switch {
		case strings.HasSuffix(current, "\n\n"):
		case strings.HasSuffix(current, "\n"):
			sep = "\n"
		default:
			sep = "\n\n"
		}
	}
	return model.Edit{Span: model.Span{Start: end, End: end}, Text: sep + text}
}
