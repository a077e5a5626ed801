package convo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/chatdoc/internal/llm"
	"github.com/sokinpui/chatdoc/internal/parser"
	"github.com/sokinpui/chatdoc/model"
)

const separator = "\n\n"

// Label returns the role prefix placed before a block's content in the
// flattened context.
func Label(b model.Block) string {
	switch b.Type {
	case model.System:
		return "[System] "
	case model.User:
		return "[User] "
	case model.Assistant:
		if b.Name != "" {
			return "[" + b.Name + "] "
		}
		return "[Assistant] "
	case model.Tool:
		return "[Tool] "
	}
	return ""
}

// included reports whether b takes part in the conversation.
func included(b model.Block, active model.IDSet) bool {
	return b.Type != model.Note && active.Has(b.ID)
}

// BuildContext flattens the active, non-note blocks into one string in
// document order. Inactive blocks and notes never appear.
func BuildContext(blocks []model.Block, active model.IDSet) string {
	var parts []string
	for _, b := range blocks {
		if !included(b, active) {
			continue
		}
		parts = append(parts, Label(b)+b.Content)
	}
	return strings.Join(parts, separator)
}

// Skipped is an active block left out of a message list, with the reason.
type Skipped struct {
	ID     string
	Reason string
}

// Messages converts the active blocks into chat messages in document order.
// Tool blocks without a call id cannot be sent and are reported as skipped.
func Messages(blocks []model.Block, active model.IDSet) ([]llm.Message, []Skipped) {
	var (
		msgs    []llm.Message
		skipped []Skipped
	)
	for _, b := range blocks {
		if !included(b, active) {
			continue
		}
		msg := llm.Message{Content: b.Content}
		switch b.Type {
		case model.System:
			msg.Role = llm.RoleSystem
		case model.User:
			msg.Role = llm.RoleUser
		case model.Assistant:
			msg.Role = llm.RoleAssistant
		case model.Tool:
			if b.ToolCallID == "" {
				skipped = append(skipped, Skipped{ID: b.ID, Reason: "tool block has no tool call id"})
				continue
			}
			msg.Role = llm.RoleTool
			msg.ToolCallID = b.ToolCallID
			msg.Name = b.ToolName
		default:
			skipped = append(skipped, Skipped{ID: b.ID, Reason: fmt.Sprintf("unsupported block type %q", b.Type)})
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, skipped
}

// NewBlockID returns an id made of the lower-case type letter, the current
// time in milliseconds and a random suffix. Collisions are not checked.
func NewBlockID(t model.BlockType) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", strings.ToLower(string(t)), time.Now().UnixMilli(), random)
}

// BlockOption sets an optional attribute on a created block.
type BlockOption func(*model.Block)

// WithName sets the display name, used as the label of assistant blocks.
func WithName(name string) BlockOption {
	return func(b *model.Block) { b.Name = name }
}

// WithModelAlias records which model produced the block.
func WithModelAlias(alias string) BlockOption {
	return func(b *model.Block) { b.ModelAlias = alias }
}

// NewBlock builds a block with a fresh id. Notes start inactive, everything
// else active.
func NewBlock(t model.BlockType, content string, opts ...BlockOption) model.Block {
	b := model.Block{
		Type:    t,
		State:   model.Active,
		ID:      NewBlockID(t),
		Content: content,
	}
	if t == model.Note {
		b.State = model.Inactive
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// CreateBlock returns the serialized text of a new block.
func CreateBlock(t model.BlockType, content string, opts ...BlockOption) (string, error) {
	return parser.SerializeChecked(NewBlock(t, content, opts...))
}
