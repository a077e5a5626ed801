package state

import (
	"errors"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/sokinpui/chatdoc/internal/document"
	"github.com/sokinpui/chatdoc/internal/parser"
	"github.com/sokinpui/chatdoc/model"
)

// ErrBlockNotFound is returned when a block id is unknown to both the
// activation state and the document.
var ErrBlockNotFound = errors.New("block not found")

// Manager owns the activation state of one document. It is not safe for
// concurrent use; callers sequence access per document.
type Manager struct {
	doc     document.Document
	log     *zap.Logger
	current map[string]model.BlockState
	stack   []map[string]model.BlockState

	// Parse cache, only used when doc implements document.Versioned.
	cached        []model.Block
	cachedVersion int
	cacheValid    bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for load and reconcile diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// New creates a Manager bound to doc and loads its state.
func New(doc document.Document, opts ...Option) *Manager {
	m := &Manager{
		doc: doc,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.load()
	return m
}

// load rebuilds the state map from the document. When an id occurs more than
// once, the last occurrence in document order wins.
func (m *Manager) load() {
	blocks := m.blocks()
	m.current = make(map[string]model.BlockState, len(blocks))
	for _, b := range blocks {
		m.current[b.ID] = b.State
	}
	m.log.Debug("loaded block state", zap.Int("blocks", len(blocks)), zap.Int("ids", len(m.current)))
}

// blocks parses the document, reusing the previous parse while the document
// version is unchanged.
func (m *Manager) blocks() []model.Block {
	v, ok := m.doc.(document.Versioned)
	if !ok {
		return parser.Parse(m.doc.Text())
	}
	if m.cacheValid && m.cachedVersion == v.Version() {
		return m.cached
	}
	m.cached = parser.Parse(m.doc.Text())
	m.cachedVersion = v.Version()
	m.cacheValid = true
	return m.cached
}

// Blocks returns the document's current blocks in source order.
func (m *Manager) Blocks() []model.Block {
	blocks := m.blocks()
	out := make([]model.Block, len(blocks))
	copy(out, blocks)
	return out
}

// Document returns the document the manager is bound to.
func (m *Manager) Document() document.Document {
	return m.doc
}

// Reload discards the in-memory state and re-derives it from the document.
func (m *Manager) Reload() {
	m.load()
}

// BlockState returns the desired state of a block.
func (m *Manager) BlockState(id string) (model.BlockState, bool) {
	s, ok := m.current[id]
	return s, ok
}

// SetBlockState records the desired state of a block. The document is not
// touched until the edits from Reconcile are applied.
func (m *Manager) SetBlockState(id string, s model.BlockState) {
	m.current[id] = s
}

// Has reports whether the document holds a block with id.
func (m *Manager) Has(id string) bool {
	for _, b := range m.blocks() {
		if b.ID == id {
			return true
		}
	}
	return false
}

// Toggle flips a block between Active and Inactive and returns the new state.
// A block present in the document but missing from the state is treated as
// Inactive.
func (m *Manager) Toggle(id string) (model.BlockState, error) {
	s, ok := m.current[id]
	if !ok {
		if !m.Has(id) {
			return "", fmt.Errorf("toggle %q: %w", id, ErrBlockNotFound)
		}
		s = model.Inactive
	}
	next := s.Flip()
	m.current[id] = next
	return next, nil
}

// Push saves a copy of the current state on the undo stack.
func (m *Manager) Push() {
	m.stack = append(m.stack, maps.Clone(m.current))
}

// Pop restores the most recently pushed state. It returns false and leaves the
// state alone when the stack is empty.
func (m *Manager) Pop() bool {
	if len(m.stack) == 0 {
		return false
	}
	last := len(m.stack) - 1
	m.current = m.stack[last]
	m.stack[last] = nil
	m.stack = m.stack[:last]
	return true
}

// Depth returns the number of saved states.
func (m *Manager) Depth() int {
	return len(m.stack)
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() map[string]model.BlockState {
	return maps.Clone(m.current)
}

// ActiveBlocks returns the ids whose desired state is Active. The set is
// unordered; intersect it with a parse to get document order.
func (m *Manager) ActiveBlocks() model.IDSet {
	ids := make(model.IDSet)
	for id, s := range m.current {
		if s == model.Active {
			ids.Add(id)
		}
	}
	return ids
}

// Reconcile compares the desired state with a fresh parse of the document and
// returns one replacement edit per block whose state differs. Blocks whose id
// has no desired state are left alone. The edits are not applied here; after
// they are, call Reload.
func (m *Manager) Reconcile() []model.Edit {
	var edits []model.Edit
	for _, b := range m.blocks() {
		desired, ok := m.current[b.ID]
		if !ok || desired == b.State {
			continue
		}
		m.log.Debug("block state differs from document",
			zap.String("id", b.ID),
			zap.String("document", string(b.State)),
			zap.String("desired", string(desired)))

		b.State = desired
		edits = append(edits, model.Edit{Span: b.Span, Text: parser.Serialize(b)})
	}
	return edits
}
