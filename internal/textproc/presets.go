package textproc

import "github.com/sokinpui/chatdoc/model"

// ThinkingBlockName is the name given to extracted thinking chains.
const ThinkingBlockName = "Thinking"

// ThinkingRules returns the default rules that pull a thinking chain out of a
// model answer.
func ThinkingRules() []Rule {
	return []Rule{
		{
			ID:          "openai-thinking-tag",
			Name:        "Extract thinking chain (OpenAI format)",
			Description: "Moves the content of a <think> tag into a note block",
			Pattern: Pattern{
				Regex:        `<think>([\s\S]*?)</think>`,
				CaptureGroup: Group(1),
			},
			Type: ProcessExtract,
			Extract: &ExtractSpec{
				BlockType:        model.Note,
				BlockName:        ThinkingBlockName,
				RemoveFromSource: true,
			},
		},
	}
}

// Presets returns the built-in rule set.
func Presets() []Rule {
	return append(ThinkingRules(), Rule{
		ID:          "extract-to-note",
		Name:        "Extract to note",
		Description: "Moves the whole text into a note block",
		Pattern: Pattern{
			Matcher: MatcherFunc(func(text string) (Match, error) {
				return Match{Matched: true, Content: text, Start: 0, End: len(text)}, nil
			}),
		},
		Type: ProcessExtract,
		Extract: &ExtractSpec{
			BlockType:        model.Note,
			RemoveFromSource: true,
		},
	})
}

// RulesFor returns the rules used for a named purpose.
func RulesFor(purpose string) []Rule {
	switch purpose {
	case "thinking-chain":
		return ThinkingRules()
	default:
		return nil
	}
}

// Templates returns example data rules, suitable for seeding a configuration
// file.
func Templates() []Rule {
	return []Rule{
		{
			ID:          "extract-markdown-code-blocks",
			Name:        "Extract markdown code block",
			Description: "Moves the first fenced code block into a note block",
			Pattern: Pattern{
				Regex:        "```([a-zA-Z0-9]*)\\n([\\s\\S]*?)\\n```",
				Flags:        "g",
				CaptureGroup: Group(2),
			},
			Type: ProcessExtract,
			Extract: &ExtractSpec{
				BlockType:        model.Note,
				BlockName:        "Code block",
				RemoveFromSource: true,
			},
		},
		{
			ID:          "extract-json-data",
			Name:        "Extract JSON data",
			Description: "Copies the first JSON object into a note block",
			Pattern: Pattern{
				Regex: `\{[\s\S]*?\}`,
				Flags: "g",
			},
			Type: ProcessExtract,
			Extract: &ExtractSpec{
				BlockType: model.Note,
				BlockName: "JSON data",
			},
		},
		{
			ID:          "extract-python-function",
			Name:        "Extract Python function",
			Description: "Moves the first Python function definition into a note block",
			Pattern: Pattern{
				Regex: `def\s+[a-zA-Z_][a-zA-Z0-9_]*\s*\([^)]*\)\s*:[\s\S]*?(?=\n\S|$)`,
				Flags: "g",
			},
			Type: ProcessExtract,
			Extract: &ExtractSpec{
				BlockType:        model.Note,
				BlockName:        "Python function",
				RemoveFromSource: true,
			},
		},
		{
			ID:          "extract-thinking-chain-xml",
			Name:        "Extract XML thinking chain",
			Description: "Moves the content of a <thinking> tag into a note block",
			Pattern: Pattern{
				Regex:        `<thinking>(\s*.*?\s*)</thinking>`,
				Flags:        "s",
				CaptureGroup: Group(1),
			},
			Type: ProcessExtract,
			Extract: &ExtractSpec{
				BlockType:        model.Note,
				BlockName:        ThinkingBlockName,
				RemoveFromSource: true,
			},
		},
	}
}
