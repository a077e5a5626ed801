package thinking

import (
	"regexp"
	"strings"

	"github.com/sokinpui/chatdoc/internal/llm"
	"github.com/sokinpui/chatdoc/internal/textproc"
)

// Tier says which step produced the thinking content.
type Tier int

const (
	TierNone Tier = iota
	// TierReasoningField: the provider returned reasoning separately.
	TierReasoningField
	// TierRules: a thinking rule extracted a block.
	TierRules
	// TierFallback: the built-in <think> tag match.
	TierFallback
)

func (t Tier) String() string {
	switch t {
	case TierReasoningField:
		return "reasoning-field"
	case TierRules:
		return "rules"
	case TierFallback:
		return "fallback"
	}
	return "none"
}

var thinkTag = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// Result splits a completion into the answer and the model's reasoning.
type Result struct {
	Main        string
	Thinking    string
	HasThinking bool
	Source      Tier
}

// Extractor separates reasoning from completions.
type Extractor struct {
	Engine *textproc.Engine
}

// New returns an Extractor using engine, or a silent engine when nil.
func New(engine *textproc.Engine) *Extractor {
	if engine == nil {
		engine = textproc.New(nil)
	}
	return &Extractor{Engine: engine}
}

// Extract applies, in order, the first of: the response's reasoning field,
// the thinking rules, the built-in <think> tag. When none applies the content
// is returned untouched.
func (x *Extractor) Extract(resp llm.Response, rules []textproc.Rule) Result {
	if resp.Reasoning != "" {
		return Result{
			Main:        resp.Content,
			Thinking:    resp.Reasoning,
			HasThinking: true,
			Source:      TierReasoningField,
		}
	}

	if len(rules) > 0 {
		p := x.engine().ApplyRules(resp.Content, rules)
		if len(p.ExtractedBlocks) > 0 {
			return Result{
				Main:        strings.TrimSpace(p.FinalText),
				Thinking:    p.ExtractedBlocks[0].Content,
				HasThinking: true,
				Source:      TierRules,
			}
		}
	}

	if loc := thinkTag.FindStringSubmatchIndex(resp.Content); loc != nil {
		main := resp.Content[:loc[0]] + resp.Content[loc[1]:]
		return Result{
			Main:        strings.TrimSpace(main),
			Thinking:    strings.TrimSpace(resp.Content[loc[2]:loc[3]]),
			HasThinking: true,
			Source:      TierFallback,
		}
	}

	return Result{Main: resp.Content}
}

// ExtractRaw decodes an OpenAI-style body and extracts from it. A body that
// does not decode is returned verbatim as the main content.
func (x *Extractor) ExtractRaw(raw []byte, rules []textproc.Rule) Result {
	resp, err := llm.DecodeResponse(raw)
	if err != nil {
		return Result{Main: string(raw)}
	}
	return x.Extract(resp, rules)
}

func (x *Extractor) engine() *textproc.Engine {
	if x.Engine == nil {
		x.Engine = textproc.New(nil)
	}
	return x.Engine
}
