package model

// BlockType is the role letter of a chat block.
type BlockType string

const (
	System    BlockType = "S"
	User      BlockType = "U"
	Assistant BlockType = "A"
	Note      BlockType = "N"
	// Tool has no tag letter in the document grammar. Tool blocks are built
	// programmatically and never round-trip through document text.
	Tool BlockType = "Tool"
)

// String returns the role name of the block type.
func (t BlockType) String() string {
	switch t {
	case System:
		return "system"
	case User:
		return "user"
	case Assistant:
		return "assistant"
	case Note:
		return "note"
	case Tool:
		return "tool"
	default:
		return string(t)
	}
}

// Taggable reports whether the type has a letter in the block grammar.
func (t BlockType) Taggable() bool {
	switch t {
	case System, User, Assistant, Note:
		return true
	}
	return false
}

// ParseBlockType accepts either the tag letter or the role name.
func ParseBlockType(s string) (BlockType, bool) {
	switch s {
	case "S", "s", "system":
		return System, true
	case "U", "u", "user":
		return User, true
	case "A", "a", "assistant":
		return Assistant, true
	case "N", "n", "note":
		return Note, true
	case "Tool", "tool":
		return Tool, true
	}
	return "", false
}

// BlockState says whether a block takes part in the assembled context.
type BlockState string

const (
	Active   BlockState = "A"
	Inactive BlockState = "I"
)

// Flip returns the opposite state.
func (s BlockState) Flip() BlockState {
	if s == Active {
		return Inactive
	}
	return Active
}

// Span is a half-open byte range [Start, End) into a document's text.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether offset falls inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// Position is a zero-based line and byte column.
type Position struct {
	Line   int
	Column int
}

// Block is one tagged unit of the conversation.
type Block struct {
	Type       BlockType
	State      BlockState
	ID         string
	Name       string
	ModelAlias string
	ToolCallID string
	ToolName   string
	// Content is the inner text, trimmed of surrounding whitespace.
	Content string
	// Span is a back-reference to the source text and is not part of identity.
	Span Span
}

// Equal compares two blocks ignoring their source spans.
func (b Block) Equal(o Block) bool {
	b.Span, o.Span = Span{}, Span{}
	return b == o
}

// Edit replaces Span with Text. An empty span is an insertion.
type Edit struct {
	Span Span
	Text string
}

// Heading is an ATX heading line found in a document.
type Heading struct {
	Level int
	Text  string
	Line  int
	Span  Span
}

// CodeFence is a fenced code block found inside block content.
type CodeFence struct {
	Lang      string
	Content   string
	StartLine int
	EndLine   int
}

// BlockSymbol is one block as listed in a document overview. Lines are
// zero-based document lines; Fences carry document lines too.
type BlockSymbol struct {
	ID        string
	Type      BlockType
	State     BlockState
	Title     string
	StartLine int
	EndLine   int
	Fences    []CodeFence
}

// IDSet is an unordered set of block ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from the given ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id into the set.
func (s IDSet) Add(id string) { s[id] = struct{}{} }

// Len returns the number of ids in the set.
func (s IDSet) Len() int { return len(s) }

// Summary holds the results of an operation for display.
type Summary struct {
	Changed  []string
	Inserted []string
	Skipped  []string
	Model    string
	Usage    string
	Message  string
}
