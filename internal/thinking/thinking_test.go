package thinking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sokinpui/chatdoc/internal/llm"
	"github.com/sokinpui/chatdoc/internal/textproc"
)

func TestExtract(t *testing.T) {
	x := New(nil)
	rules := textproc.ThinkingRules()

	tests := []struct {
		name  string
		resp  llm.Response
		rules []textproc.Rule
		want  Result
	}{
		{
			name:  "reasoning field wins and leaves content alone",
			resp:  llm.Response{Content: "<think>tag</think> Answer", Reasoning: "field"},
			rules: rules,
			want:  Result{Main: "<think>tag</think> Answer", Thinking: "field", HasThinking: true, Source: TierReasoningField},
		},
		{
			name:  "rules extract and trim main",
			resp:  llm.Response{Content: "<think>step one</think>\n\nAnswer"},
			rules: rules,
			want:  Result{Main: "Answer", Thinking: "step one", HasThinking: true, Source: TierRules},
		},
		{
			name: "fallback without rules",
			resp: llm.Response{Content: "Intro <think>\n  hmm  \n</think> Answer"},
			want: Result{Main: "Intro  Answer", Thinking: "hmm", HasThinking: true, Source: TierFallback},
		},
		{
			name:  "fallback when rules do not match",
			resp:  llm.Response{Content: "<think>a</think>B"},
			rules: []textproc.Rule{textproc.Templates()[3]},
			want:  Result{Main: "B", Thinking: "a", HasThinking: true, Source: TierFallback},
		},
		{
			name: "fallback strips only the first tag",
			resp: llm.Response{Content: "<think>a</think>B<think>c</think>"},
			want: Result{Main: "B<think>c</think>", Thinking: "a", HasThinking: true, Source: TierFallback},
		},
		{
			name:  "no thinking",
			resp:  llm.Response{Content: "  plain answer "},
			rules: rules,
			want:  Result{Main: "  plain answer "},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, x.Extract(tc.resp, tc.rules))
		})
	}
}

func TestExtractRaw(t *testing.T) {
	x := New(textproc.New(nil))

	got := x.ExtractRaw([]byte(`{"choices":[{"message":{"content":"Answer","reasoning_content":"why"}}]}`), nil)
	assert.Equal(t, Result{Main: "Answer", Thinking: "why", HasThinking: true, Source: TierReasoningField}, got)

	got = x.ExtractRaw([]byte(`{"choices":[{"message":{"content":"<think>r</think>ok"}}]}`), textproc.ThinkingRules())
	assert.Equal(t, "ok", got.Main)
	assert.Equal(t, TierRules, got.Source)

	got = x.ExtractRaw([]byte(`{"unexpected":true}`), textproc.ThinkingRules())
	assert.Equal(t, Result{Main: `{"unexpected":true}`}, got)

	got = x.ExtractRaw([]byte("just text <think>x</think>"), textproc.ThinkingRules())
	assert.Equal(t, Result{Main: "just text <think>x</think>"}, got)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "none", TierNone.String())
	assert.Equal(t, "rules", TierRules.String())
}
