package nvim

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/neovim/go-client/nvim"
	"go.uber.org/zap"

	"github.com/sokinpui/chatdoc/internal/document"
	"github.com/sokinpui/chatdoc/model"
)

// BufferDocument is a Neovim buffer seen as a document. The text is the
// buffer's lines joined with newlines.
type BufferDocument struct {
	nvim *nvim.Nvim
	buf  nvim.Buffer
	log  *zap.Logger
	Path string
}

// Text returns the buffer content, or an empty string if nvim is unreachable.
func (d *BufferDocument) Text() string {
	text, err := d.read()
	if err != nil {
		d.log.Warn("failed to read buffer", zap.String("path", d.Path), zap.Error(err))
		return ""
	}
	return text
}

func (d *BufferDocument) read() (string, error) {
	lines, err := d.nvim.BufferLines(d.buf, 0, -1, true)
	if err != nil {
		return "", err
	}
	return string(bytes.Join(lines, []byte("\n"))), nil
}

func (d *BufferDocument) PositionAt(offset int) model.Position {
	return document.PositionAt(d.Text(), offset)
}

func (d *BufferDocument) OffsetAt(pos model.Position) int {
	return document.OffsetAt(d.Text(), pos)
}

// ApplyEdits validates every edit against the current text, then sends them
// in one batch, last edit first so earlier positions stay valid. Nvim runs a
// batch as a single request, so the edits land together.
func (d *BufferDocument) ApplyEdits(edits []model.Edit) error {
	if len(edits) == 0 {
		return nil
	}
	text, err := d.read()
	if err != nil {
		return fmt.Errorf("read buffer %s: %w", d.Path, err)
	}
	sorted, err := document.Validate(len(text), edits)
	if err != nil {
		return err
	}

	b := d.nvim.NewBatch()
	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		start := document.PositionAt(text, e.Span.Start)
		end := document.PositionAt(text, e.Span.End)
		b.SetBufferText(d.buf, start.Line, start.Column, end.Line, end.Column, replacement(e.Text))
	}
	if err := b.Execute(); err != nil {
		return fmt.Errorf("apply %d edits to %s: %w", len(sorted), d.Path, err)
	}
	d.log.Debug("applied buffer edits", zap.String("path", d.Path), zap.Int("edits", len(sorted)))
	return nil
}

// Save writes the buffer to its file.
func (d *BufferDocument) Save() error {
	b := d.nvim.NewBatch()
	b.SetCurrentBuffer(d.buf)
	b.Command("write")
	if err := b.Execute(); err != nil {
		return fmt.Errorf("write %s: %w", d.Path, err)
	}
	return nil
}

// replacement splits text into the line list nvim_buf_set_text expects.
func replacement(text string) [][]byte {
	parts := strings.Split(text, "\n")
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}
