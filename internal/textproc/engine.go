package textproc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/sokinpui/chatdoc/model"
)

// DefaultMatchTimeout bounds a single regex match.
const DefaultMatchTimeout = time.Second

var errNoPattern = errors.New("rule has neither regex nor matcher")

// ExtractedBlock is the block an extract rule produces.
type ExtractedBlock struct {
	Type    model.BlockType
	Content string
	Name    string
}

// Result is the outcome of applying one rule.
type Result struct {
	ProcessedText    string
	Success          bool
	ExtractedContent string
	ExtractedBlock   *ExtractedBlock
}

// Pipeline is the outcome of applying a rule set in order.
type Pipeline struct {
	FinalText       string
	Results         []Result
	ExtractedBlocks []ExtractedBlock
}

// Engine applies rules to text. It holds no per-call state and is safe to
// share.
type Engine struct {
	log     *zap.Logger
	timeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithMatchTimeout sets the per-match regex timeout.
func WithMatchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// New creates an Engine. A nil logger discards output.
func New(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{log: logger, timeout: DefaultMatchTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// found is a match plus what a Replacer needs.
type found struct {
	Match
	full   string
	groups []string
}

// ApplyRule applies a single rule to text. Only the first match is used, even
// when the pattern declares a global flag. A malformed pattern, a failing
// matcher or a panicking strategy is logged and reported as no match.
func (e *Engine) ApplyRule(text string, rule Rule) (result Result) {
	result = Result{ProcessedText: text}

	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("text processing rule panicked",
				zap.String("rule", rule.ID), zap.Any("panic", r))
			result = Result{ProcessedText: text}
		}
	}()

	m, err := e.match(text, rule.Pattern)
	if err != nil {
		e.log.Warn("text processing rule failed",
			zap.String("rule", rule.ID), zap.Error(err))
		return result
	}
	if !m.Matched {
		return result
	}

	result.Success = true
	result.ExtractedContent = m.Content
	located := m.Start >= 0 && m.Start <= m.End && m.End <= len(text)

	switch rule.Type {
	case ProcessExtract:
		if rule.Extract == nil {
			break
		}
		result.ExtractedBlock = &ExtractedBlock{
			Type:    rule.Extract.BlockType,
			Content: m.Content,
			Name:    rule.Extract.BlockName,
		}
		if rule.Extract.RemoveFromSource && located {
			result.ProcessedText = text[:m.Start] + text[m.End:]
		}

	case ProcessReplace:
		if rule.Replace == nil || !located {
			break
		}
		replacement := rule.Replace.With
		if rule.Replace.Func != nil {
			replacement = rule.Replace.Func.Replace(m.full, m.groups)
		}
		result.ProcessedText = text[:m.Start] + replacement + text[m.End:]

	case ProcessTransform:
		if rule.Transform == nil || !located {
			break
		}
		result.ProcessedText = text[:m.Start] + rule.Transform.Transform(m.Content) + text[m.End:]
	}

	return result
}

// ApplyRules folds rules over text: each rule sees the previous rule's output
// and runs exactly once.
func (e *Engine) ApplyRules(text string, rules []Rule) Pipeline {
	p := Pipeline{
		FinalText: text,
		Results:   make([]Result, 0, len(rules)),
	}
	for _, rule := range rules {
		res := e.ApplyRule(p.FinalText, rule)
		p.Results = append(p.Results, res)
		p.FinalText = res.ProcessedText
		if res.ExtractedBlock != nil {
			p.ExtractedBlocks = append(p.ExtractedBlocks, *res.ExtractedBlock)
		}
	}
	return p
}

func (e *Engine) match(text string, pattern Pattern) (found, error) {
	if pattern.Matcher != nil {
		m, err := pattern.Matcher.Match(text)
		if err != nil {
			return found{}, fmt.Errorf("custom matcher: %w", err)
		}
		f := found{Match: m}
		if m.Start >= 0 && m.Start <= m.End && m.End <= len(text) {
			f.full = text[m.Start:m.End]
		}
		return f, nil
	}
	if pattern.Regex == "" {
		return found{}, errNoPattern
	}

	re, err := Compile(pattern.Regex, pattern.Flags)
	if err != nil {
		return found{}, err
	}
	re.MatchTimeout = e.timeout

	m, err := re.FindStringMatch(text)
	if err != nil {
		return found{}, fmt.Errorf("match %q: %w", pattern.Regex, err)
	}
	if m == nil {
		return found{}, nil
	}

	n := 0
	if pattern.CaptureGroup != nil {
		n = *pattern.CaptureGroup
	}
	g := m.GroupByNumber(n)
	if g == nil || len(g.Captures) == 0 {
		return found{}, nil
	}

	groups := m.Groups()
	f := found{
		Match: Match{
			Matched: true,
			Content: g.String(),
			Start:   byteOffset(text, m.Index),
			End:     byteOffset(text, m.Index+m.Length),
		},
		full:   m.String(),
		groups: make([]string, 0, len(groups)),
	}
	for _, sub := range groups[1:] {
		f.groups = append(f.groups, sub.String())
	}
	return f, nil
}

// Compile builds a regex from a pattern and JavaScript-style flags, with
// JavaScript matching rules: ASCII \d \w \s classes, "$" only at the end of
// input unless m is set, and "." crossing newlines only under s. The flags g,
// y and d are accepted and have no effect.
func Compile(pattern, flags string) (*regexp2.Regexp, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	var dotAll bool
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			dotAll = true
		case 'u':
			opts |= regexp2.Unicode
		case 'g', 'y', 'd':
		default:
			return nil, fmt.Errorf("compile %q: invalid flag %q", pattern, f)
		}
	}
	src := jsAnchors(pattern, opts&regexp2.Multiline != 0, dotAll)
	re, err := regexp2.Compile(src, opts)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}
	return re, nil
}

// jsAnchors rewrites the two tokens whose meaning regexp2's ECMAScript mode
// does not take from JavaScript. Outside character classes a bare "$" becomes
// \z unless multiline, and a bare "." becomes [\s\S] under dotAll.
func jsAnchors(pattern string, multiline, dotAll bool) string {
	if multiline && !dotAll {
		return pattern
	}
	var sb strings.Builder
	sb.Grow(len(pattern))
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			sb.WriteByte(c)
			i++
			sb.WriteByte(pattern[i])
			continue
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '$' && !multiline:
			sb.WriteString(`\z`)
			continue
		case c == '.' && dotAll:
			sb.WriteString(`[\s\S]`)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// byteOffset converts a rune index into a byte offset within text.
func byteOffset(text string, runeIndex int) int {
	i := 0
	for off := range text {
		if i == runeIndex {
			return off
		}
		i++
	}
	return len(text)
}
