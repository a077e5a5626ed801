package config

import (
	"errors"
	"fmt"

	"github.com/sokinpui/chatdoc/internal/textproc"
	"github.com/sokinpui/chatdoc/model"
)

// ErrProgrammaticRule is returned for rule kinds that need Go code and so
// cannot come from a configuration file.
var ErrProgrammaticRule = errors.New("rule requires a programmatic transform")

// RuleConfig is a text processing rule as written in the configuration file.
type RuleConfig struct {
	ID            string         `yaml:"id" json:"id"`
	Name          string         `yaml:"name" json:"name"`
	Description   string         `yaml:"description" json:"description"`
	Pattern       PatternConfig  `yaml:"pattern" json:"pattern"`
	ProcessorType string         `yaml:"processor_type" json:"processor_type"`
	Extract       *ExtractConfig `yaml:"extract,omitempty" json:"extract,omitempty"`
	Replace       *ReplaceConfig `yaml:"replace,omitempty" json:"replace,omitempty"`
}

type PatternConfig struct {
	Regex        string `yaml:"regex" json:"regex"`
	Flags        string `yaml:"flags" json:"flags"`
	CaptureGroup *int   `yaml:"capture_group,omitempty" json:"capture_group,omitempty"`
}

type ExtractConfig struct {
	BlockType        string `yaml:"block_type" json:"block_type"`
	BlockName        string `yaml:"block_name" json:"block_name"`
	RemoveFromSource bool   `yaml:"remove_from_source" json:"remove_from_source"`
}

type ReplaceConfig struct {
	With string `yaml:"with" json:"with"`
}

// Rule converts the entry into an engine rule and validates it.
func (rc RuleConfig) Rule() (textproc.Rule, error) {
	r := textproc.Rule{
		ID:          rc.ID,
		Name:        rc.Name,
		Description: rc.Description,
		Pattern: textproc.Pattern{
			Regex:        rc.Pattern.Regex,
			Flags:        rc.Pattern.Flags,
			CaptureGroup: rc.Pattern.CaptureGroup,
		},
		Type: textproc.ProcessorType(rc.ProcessorType),
	}

	switch r.Type {
	case textproc.ProcessTransform:
		return textproc.Rule{}, fmt.Errorf("rule %q: %w", rc.ID, ErrProgrammaticRule)
	case textproc.ProcessExtract:
		if rc.Extract != nil {
			bt, ok := model.ParseBlockType(rc.Extract.BlockType)
			if !ok {
				return textproc.Rule{}, fmt.Errorf("rule %q: %w: unknown block type %q",
					rc.ID, textproc.ErrInvalidRule, rc.Extract.BlockType)
			}
			r.Extract = &textproc.ExtractSpec{
				BlockType:        bt,
				BlockName:        rc.Extract.BlockName,
				RemoveFromSource: rc.Extract.RemoveFromSource,
			}
		}
	case textproc.ProcessReplace:
		if rc.Replace != nil {
			r.Replace = &textproc.ReplaceSpec{With: rc.Replace.With}
		}
	}

	if err := r.Validate(); err != nil {
		return textproc.Rule{}, err
	}
	if _, err := textproc.Compile(r.Pattern.Regex, r.Pattern.Flags); err != nil {
		return textproc.Rule{}, fmt.Errorf("rule %q: %w: %v", rc.ID, textproc.ErrInvalidRule, err)
	}
	return r, nil
}

// Rules returns the presets followed by the configured rules. A configured
// rule whose id matches a preset is ignored.
func Rules(cfg *Config) ([]textproc.Rule, error) {
	custom := make([]textproc.Rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		r, err := rc.Rule()
		if err != nil {
			return nil, err
		}
		custom = append(custom, r)
	}
	return textproc.Merge(textproc.Presets(), custom), nil
}
