package chatdoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sokinpui/chatdoc/internal/config"
	"github.com/sokinpui/chatdoc/internal/convo"
	"github.com/sokinpui/chatdoc/internal/document"
	"github.com/sokinpui/chatdoc/internal/llm"
	"github.com/sokinpui/chatdoc/internal/parser"
	"github.com/sokinpui/chatdoc/internal/source"
	"github.com/sokinpui/chatdoc/internal/state"
	"github.com/sokinpui/chatdoc/internal/textproc"
	"github.com/sokinpui/chatdoc/internal/thinking"
	"github.com/sokinpui/chatdoc/model"
)

var (
	// ErrEditRejected is returned when the document refuses an edit set. The
	// in-memory state is left as it was.
	ErrEditRejected = errors.New("document rejected edits")
	// ErrNothingToSend is returned by Send when no active block can be sent.
	ErrNothingToSend = errors.New("no active blocks to send")
)

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// Options configures an App. Every field is optional.
type Options struct {
	Logger *zap.Logger
	// Config defaults to config.Default().
	Config *config.Config
	// ConfigPath is the file WatchConfig follows.
	ConfigPath string
	// Client defaults to an HTTP client.
	Client llm.Client
	// Source supplies content for Execute's --new and --process actions.
	Source source.Content
	// Out receives printed output from Execute. Defaults to os.Stdout.
	Out io.Writer
}

// App binds one chat document to its block state, the text processing rules
// and a model. Calls on one App must not overlap, except for configuration
// reloads which may arrive from WatchConfig at any time.
type App struct {
	doc       document.Document
	state     *state.Manager
	engine    *textproc.Engine
	extractor *thinking.Extractor
	service   *llm.Service
	log       *zap.Logger

	configPath string
	source     source.Content
	out        io.Writer

	mu     sync.RWMutex
	rules  []textproc.Rule
	editor config.EditorConfig

	progressCallback ProgressUpdate
}

// New creates an App over doc. A nil doc is an empty in-memory document.
func New(doc document.Document, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if doc == nil {
		doc = document.NewBuffer("")
	}

	rules, err := config.Rules(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load text processing rules: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = llm.NewHTTPClient(nil, log.Named("llm"))
	}
	src := opts.Source
	if src == nil {
		src = source.New()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	engine := textproc.New(log.Named("textproc"))
	a := &App{
		doc:        doc,
		state:      state.New(doc, state.WithLogger(log.Named("state"))),
		engine:     engine,
		extractor:  thinking.New(engine),
		service:    llm.NewService(client, cfg.LLMProviders(), log.Named("llm")),
		log:        log,
		configPath: opts.ConfigPath,
		source:     src,
		out:        out,
		rules:      rules,
		editor:     cfg.Editor,
	}
	if cfg.DefaultModel != "" {
		if err := a.service.SetCurrentModel(cfg.DefaultModel); err != nil {
			log.Warn("default model unavailable", zap.String("model", cfg.DefaultModel), zap.Error(err))
		}
	}
	return a, nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

func (a *App) progress(current, total int) {
	if a.progressCallback != nil {
		a.progressCallback(current, total)
	}
}

// Document returns the bound document.
func (a *App) Document() document.Document { return a.doc }

// Service exposes model selection.
func (a *App) Service() *llm.Service { return a.service }

// SetModel selects the model Send uses, by id or alias.
func (a *App) SetModel(idOrAlias string) error {
	return a.service.SetCurrentModel(idOrAlias)
}

// Rules returns the current rule set, presets first.
func (a *App) Rules() []textproc.Rule {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]textproc.Rule(nil), a.rules...)
}

func (a *App) editorConfig() config.EditorConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.editor
}

// Blocks parses the document.
func (a *App) Blocks() []model.Block {
	return a.state.Blocks()
}

// Context assembles the active blocks into one string.
func (a *App) Context() string {
	return convo.BuildContext(a.state.Blocks(), a.state.ActiveBlocks())
}

// BlockState reports the desired state of a block.
func (a *App) BlockState(id string) (model.BlockState, bool) {
	return a.state.BlockState(id)
}

// Toggle flips a block's desired state. Call Commit to write it.
func (a *App) Toggle(id string) (model.BlockState, error) {
	return a.state.Toggle(id)
}

// SetState sets a block's desired state. Call Commit to write it.
func (a *App) SetState(id string, s model.BlockState) error {
	if !a.state.Has(id) {
		return fmt.Errorf("set state of %q: %w", id, state.ErrBlockNotFound)
	}
	a.state.SetBlockState(id, s)
	return nil
}

// Push saves the current state for a later Pop.
func (a *App) Push() { a.state.Push() }

// Pop restores the last pushed state. Call Commit to write it.
func (a *App) Pop() bool { return a.state.Pop() }

// Commit writes every pending state change into the document and reloads the
// state from the result. The ids of the rewritten blocks are returned.
func (a *App) Commit() ([]string, error) {
	blocks := a.state.Blocks()
	edits := a.state.Reconcile()
	if len(edits) == 0 {
		return nil, nil
	}
	if err := a.doc.ApplyEdits(edits); err != nil {
		a.log.Warn("state commit rejected", zap.Int("edits", len(edits)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEditRejected, err)
	}
	a.state.Reload()

	ids := make([]string, 0, len(edits))
	for _, e := range edits {
		if b, ok := parser.BlockAt(blocks, e.Span.Start); ok {
			ids = append(ids, b.ID)
		}
	}
	a.log.Info("committed block state", zap.Strings("ids", ids))
	return ids, nil
}

// Insert appends a new block at the end of the document, separated by a blank
// line, and returns its id.
func (a *App) Insert(t model.BlockType, content string, opts ...convo.BlockOption) (string, error) {
	ids, err := a.append([]model.Block{convo.NewBlock(t, content, opts...)})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// append writes blocks as one edit at the end of the document.
func (a *App) append(blocks []model.Block) ([]string, error) {
	texts := make([]string, 0, len(blocks))
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		text, err := parser.SerializeChecked(b)
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
		ids = append(ids, b.ID)
	}

	edit := document.AppendEdit(a.doc, strings.Join(texts, "\n\n"))
	if err := a.doc.ApplyEdits([]model.Edit{edit}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEditRejected, err)
	}
	for _, b := range blocks {
		a.state.SetBlockState(b.ID, b.State)
	}
	return ids, nil
}

// Rename sets the name attribute of every block carrying id.
func (a *App) Rename(id, name string) error {
	var edits []model.Edit
	for _, b := range a.state.Blocks() {
		if b.ID != id {
			continue
		}
		b.Name = name
		text, err := parser.SerializeChecked(b)
		if err != nil {
			return fmt.Errorf("rename %q: %w", id, err)
		}
		edits = append(edits, model.Edit{Span: b.Span, Text: text})
	}
	if len(edits) == 0 {
		return fmt.Errorf("rename %q: %w", id, state.ErrBlockNotFound)
	}
	if err := a.doc.ApplyEdits(edits); err != nil {
		return fmt.Errorf("%w: %w", ErrEditRejected, err)
	}
	return nil
}

// Outline lists the document's headings.
func (a *App) Outline() []model.Heading {
	return parser.FindHeadings(a.doc.Text())
}

// Symbols lists every block with its title, line range and code fences. The
// state shown is the desired one, which may not be committed yet.
func (a *App) Symbols() ([]model.BlockSymbol, error) {
	text := a.doc.Text()
	symbols, err := parser.Symbols(text, parser.Parse(text))
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	for i, sym := range symbols {
		if s, ok := a.state.BlockState(sym.ID); ok {
			symbols[i].State = s
		}
	}
	return symbols, nil
}

// Verify sends a fixed test prompt to the current model.
func (a *App) Verify(ctx context.Context) (llm.Verification, error) {
	return a.service.Verify(ctx)
}

// Process applies one rule, looked up by id, to text.
func (a *App) Process(ruleID, text string) (textproc.Result, error) {
	rule, err := textproc.ByID(a.Rules(), ruleID)
	if err != nil {
		return textproc.Result{}, err
	}
	return a.engine.ApplyRule(text, rule), nil
}

// Send posts the active blocks to the current model. The reply is appended as
// an assistant block tagged with the model alias, preceded by a thinking note
// when the reply carried reasoning and followed by an empty user block.
func (a *App) Send(ctx context.Context) (model.Summary, error) {
	const steps = 3
	a.progress(0, steps)

	msgs, skipped := convo.Messages(a.state.Blocks(), a.state.ActiveBlocks())
	summary := model.Summary{}
	for _, s := range skipped {
		a.log.Warn("block left out of request", zap.String("id", s.ID), zap.String("reason", s.Reason))
		summary.Skipped = append(summary.Skipped, s.ID)
	}
	if len(msgs) == 0 {
		return summary, ErrNothingToSend
	}
	current, ok := a.service.CurrentModel()
	if !ok {
		return summary, llm.ErrNoModel
	}
	a.progress(1, steps)

	resp, err := a.service.Send(ctx, msgs)
	if err != nil {
		return summary, err
	}
	a.progress(2, steps)

	res := a.extractor.Extract(resp, textproc.RulesFor("thinking-chain"))
	editor := a.editorConfig()

	alias := current.Alias
	if alias == "" {
		alias = current.ID
	}
	var blocks []model.Block
	if res.HasThinking && editor.ThinkingAsNote {
		blocks = append(blocks, convo.NewBlock(model.Note, res.Thinking, convo.WithName(editor.ThinkingBlockName)))
	}
	blocks = append(blocks,
		convo.NewBlock(model.Assistant, res.Main, convo.WithModelAlias(alias)),
		convo.NewBlock(model.User, ""),
	)

	ids, err := a.append(blocks)
	if err != nil {
		// The reply cannot be stored as a block; keep it in the log instead
		// of losing it.
		a.log.Warn("reply not appended",
			zap.String("model", current.ID), zap.String("reply", resp.Content), zap.Error(err))
		return summary, fmt.Errorf("append reply: %w", err)
	}
	a.progress(3, steps)

	summary.Inserted = ids
	summary.Model = alias
	if resp.Usage.TotalTokens > 0 {
		summary.Usage = fmt.Sprintf("%d prompt + %d completion = %d tokens",
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}
	summary.Message = "Reply appended."
	a.log.Info("reply appended",
		zap.String("model", current.ID),
		zap.Stringer("thinking", res.Source),
		zap.Strings("ids", ids))
	return summary, nil
}

// Save writes the document if it is backed by storage.
func (a *App) Save() error {
	if s, ok := a.doc.(interface{ Save() error }); ok {
		return s.Save()
	}
	return nil
}

// ApplyConfig replaces the providers, rules and editor settings. The current
// ones stay in place when the new rules are invalid.
func (a *App) ApplyConfig(cfg *config.Config) error {
	rules, err := config.Rules(cfg)
	if err != nil {
		return err
	}
	a.service.Reload(cfg.LLMProviders())
	if _, ok := a.service.CurrentModel(); !ok && cfg.DefaultModel != "" {
		if err := a.service.SetCurrentModel(cfg.DefaultModel); err != nil {
			a.log.Warn("default model unavailable", zap.String("model", cfg.DefaultModel), zap.Error(err))
		}
	}

	a.mu.Lock()
	a.rules = rules
	a.editor = cfg.Editor
	a.mu.Unlock()
	return nil
}

// WatchConfig reloads the configuration file whenever it changes, until ctx
// is done.
func (a *App) WatchConfig(ctx context.Context) error {
	if a.configPath == "" {
		return errors.New("no configuration file to watch")
	}
	return config.Watch(ctx, a.configPath, config.DefaultDebounce, a.log.Named("config"), func(cfg *config.Config, err error) {
		if err != nil {
			return
		}
		if err := a.ApplyConfig(cfg); err != nil {
			a.log.Warn("ignoring invalid configuration", zap.String("path", a.configPath), zap.Error(err))
		}
	})
}
