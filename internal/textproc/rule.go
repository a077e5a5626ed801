package textproc

import (
	"errors"
	"fmt"

	"github.com/sokinpui/chatdoc/model"
)

// ErrRuleNotFound is returned when a rule id is not in a rule set.
var ErrRuleNotFound = errors.New("rule not found")

// ErrInvalidRule is returned by Validate for rules that can never run.
var ErrInvalidRule = errors.New("invalid rule")

// ProcessorType selects what a rule does with its match.
type ProcessorType string

const (
	ProcessExtract   ProcessorType = "extract"
	ProcessReplace   ProcessorType = "replace"
	ProcessTransform ProcessorType = "transform"
)

// NoSpan marks a match whose location in the text is unknown.
const NoSpan = -1

// Match is what a matcher reports. Start and End are byte offsets; a matcher
// that cannot locate its match sets both to NoSpan, in which case extraction
// still works but nothing is spliced.
type Match struct {
	Matched bool
	Content string
	Start   int
	End     int
}

// Matcher finds the single match a rule acts on.
type Matcher interface {
	Match(text string) (Match, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(text string) (Match, error)

func (f MatcherFunc) Match(text string) (Match, error) { return f(text) }

// Replacer computes a replacement from the full match and its capture groups.
type Replacer interface {
	Replace(full string, groups []string) string
}

// ReplacerFunc adapts a function to Replacer.
type ReplacerFunc func(full string, groups []string) string

func (f ReplacerFunc) Replace(full string, groups []string) string { return f(full, groups) }

// Transformer rewrites matched content.
type Transformer interface {
	Transform(content string) string
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(content string) string

func (f TransformerFunc) Transform(content string) string { return f(content) }

// Pattern describes how a rule finds its match. Matcher takes precedence over
// Regex when both are set.
type Pattern struct {
	Regex string
	Flags string
	// CaptureGroup selects the group whose text becomes the match content.
	// Nil means the whole match.
	CaptureGroup *int
	Matcher      Matcher
}

// ExtractSpec configures an extract rule.
type ExtractSpec struct {
	BlockType        model.BlockType
	BlockName        string
	RemoveFromSource bool
}

// ReplaceSpec configures a replace rule. Func wins over With when set.
type ReplaceSpec struct {
	With string
	Func Replacer
}

// Rule is a matcher plus an action.
type Rule struct {
	ID          string
	Name        string
	Description string
	Pattern     Pattern
	Type        ProcessorType
	Extract     *ExtractSpec
	Replace     *ReplaceSpec
	Transform   Transformer
}

// Programmatic reports whether the rule carries Go functions and therefore
// cannot be expressed in a configuration file.
func (r Rule) Programmatic() bool {
	return r.Pattern.Matcher != nil ||
		r.Transform != nil ||
		(r.Replace != nil && r.Replace.Func != nil)
}

// Validate checks the rule is complete enough to run. The engine itself does
// not require this; it treats incomplete rules as non-matching.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRule)
	}
	if r.Pattern.Matcher == nil && r.Pattern.Regex == "" {
		return fmt.Errorf("%w: rule %q has no regex or matcher", ErrInvalidRule, r.ID)
	}
	if r.Pattern.CaptureGroup != nil && *r.Pattern.CaptureGroup < 0 {
		return fmt.Errorf("%w: rule %q has a negative capture group", ErrInvalidRule, r.ID)
	}

	switch r.Type {
	case ProcessExtract:
		if r.Extract == nil {
			return fmt.Errorf("%w: extract rule %q has no block spec", ErrInvalidRule, r.ID)
		}
		if !r.Extract.BlockType.Taggable() {
			return fmt.Errorf("%w: extract rule %q targets block type %q", ErrInvalidRule, r.ID, r.Extract.BlockType)
		}
	case ProcessReplace:
		if r.Replace == nil {
			return fmt.Errorf("%w: replace rule %q has no replacement", ErrInvalidRule, r.ID)
		}
	case ProcessTransform:
		if r.Transform == nil {
			return fmt.Errorf("%w: transform rule %q has no transform", ErrInvalidRule, r.ID)
		}
	default:
		return fmt.Errorf("%w: rule %q has unknown processor type %q", ErrInvalidRule, r.ID, r.Type)
	}
	return nil
}

// Group returns a pointer to n, for building Pattern.CaptureGroup literals.
func Group(n int) *int { return &n }

// Merge appends custom rules to presets, skipping any whose id is already
// present. Presets always win an id collision.
func Merge(presets, custom []Rule) []Rule {
	rules := make([]Rule, 0, len(presets)+len(custom))
	seen := make(map[string]struct{}, len(presets)+len(custom))
	for _, r := range presets {
		rules = append(rules, r)
		seen[r.ID] = struct{}{}
	}
	for _, r := range custom {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		rules = append(rules, r)
		seen[r.ID] = struct{}{}
	}
	return rules
}

// ByID returns the first rule with the given id.
func ByID(rules []Rule, id string) (Rule, error) {
	for _, r := range rules {
		if r.ID == id {
			return r, nil
		}
	}
	return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
}
