package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Config holds all the command-line flag values.
type Config struct {
	File        string
	Nvim        bool
	Buffer      bool
	ConfigPath  string
	Model       string
	Toggle      []string
	Activate    []string
	Deactivate  []string
	Context     bool
	Send        bool
	Outline     bool
	Blocks      bool
	Verify      bool
	New         string
	Name        string
	Rename      string
	Process     string
	Rules       bool
	Verbose     bool
	NoAnimation bool
}

// Action names the single thing an invocation does.
type Action int

const (
	ActionContext Action = iota
	ActionState
	ActionSend
	ActionOutline
	ActionNew
	ActionRename
	ActionProcess
	ActionRules
	ActionBlocks
	ActionVerify
)

// Action returns the requested action. Context is the default.
func (c *Config) Action() Action {
	switch {
	case len(c.Toggle)+len(c.Activate)+len(c.Deactivate) > 0:
		return ActionState
	case c.Send:
		return ActionSend
	case c.Outline:
		return ActionOutline
	case c.New != "":
		return ActionNew
	case c.Rename != "":
		return ActionRename
	case c.Process != "":
		return ActionProcess
	case c.Rules:
		return ActionRules
	case c.Blocks:
		return ActionBlocks
	case c.Verify:
		return ActionVerify
	}
	return ActionContext
}

// NeedsDocument reports whether the action reads or writes a chat document.
func (c *Config) NeedsDocument() bool {
	switch c.Action() {
	case ActionProcess, ActionRules, ActionVerify:
		return false
	}
	return true
}

// Validate checks flag combinations that pflag cannot express.
func (c *Config) Validate() error {
	actions := 0
	for _, set := range []bool{
		len(c.Toggle)+len(c.Activate)+len(c.Deactivate) > 0,
		c.Context,
		c.Send,
		c.Outline,
		c.New != "",
		c.Rename != "",
		c.Process != "",
		c.Rules,
		c.Blocks,
		c.Verify,
	} {
		if set {
			actions++
		}
	}
	if actions > 1 {
		return errors.New("error: --toggle/--activate/--deactivate, --context, --send, --outline, --blocks, --new, --rename, --process, --rules and --verify are mutually exclusive")
	}
	if c.Rename != "" {
		if _, _, err := c.RenameArgs(); err != nil {
			return err
		}
	}
	if c.Name != "" && c.New == "" {
		return errors.New("error: --name is only valid with --new")
	}
	if c.NeedsDocument() && c.File == "" && !c.Nvim {
		return errors.New("error: a chat document is required (use --file or --nvim)")
	}
	if c.Buffer && !c.Nvim {
		return errors.New("error: --buffer requires --nvim")
	}
	return nil
}

// RenameArgs splits the --rename value into block id and new name.
func (c *Config) RenameArgs() (id, name string, err error) {
	id, name, ok := strings.Cut(c.Rename, "=")
	if !ok || id == "" {
		return "", "", fmt.Errorf("error: --rename expects ID=NAME, got %q", c.Rename)
	}
	return id, name, nil
}

// ParseFlags defines and parses command-line flags using pflag.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:])
}

// Parse parses args into a Config.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := pflag.NewFlagSet("chatdoc", pflag.ContinueOnError)

	// Document
	fs.StringVarP(&cfg.File, "file", "f", "", "Chat document to operate on.")
	fs.BoolVar(&cfg.Nvim, "nvim", false, "Edit the document through Neovim ($NVIM_LISTEN_ADDRESS or a headless instance).")
	fs.BoolVarP(&cfg.Buffer, "buffer", "b", false, "Update the Neovim buffer without saving it to disk.")
	fs.StringVarP(&cfg.ConfigPath, "config", "c", "", "Configuration file (default: user config dir/chatdoc/config.yaml).")
	fs.StringVarP(&cfg.Model, "model", "m", "", "Model id or alias to send with (default: default_model from config).")

	// Mutually exclusive actions
	fs.StringSliceVarP(&cfg.Toggle, "toggle", "t", nil, "Flip the state of the given block ids.")
	fs.StringSliceVar(&cfg.Activate, "activate", nil, "Mark the given block ids active.")
	fs.StringSliceVar(&cfg.Deactivate, "deactivate", nil, "Mark the given block ids inactive.")
	fs.BoolVar(&cfg.Context, "context", false, "Print the assembled context of the active blocks (default action).")
	fs.BoolVar(&cfg.Send, "send", false, "Send the active blocks to the current model and append the reply.")
	fs.BoolVar(&cfg.Outline, "outline", false, "Print the document's headings.")
	fs.BoolVar(&cfg.Blocks, "blocks", false, "List blocks with id, state, title, line range and code fences.")
	fs.StringVarP(&cfg.New, "new", "n", "", "Append a new block of TYPE (S, U, A, N) with content from stdin or clipboard.")
	fs.StringVar(&cfg.Name, "name", "", "Name for the block created with --new.")
	fs.StringVar(&cfg.Rename, "rename", "", "Set a block's name, as ID=NAME.")
	fs.StringVarP(&cfg.Process, "process", "p", "", "Apply the rule with this id to stdin or clipboard and print the result.")
	fs.BoolVar(&cfg.Rules, "rules", false, "List the available text processing rules.")
	fs.BoolVar(&cfg.Verify, "verify", false, "Send a test request to the current model and report the response.")

	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging.")
	fs.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable loading spinner and progress updates.")

	fs.Usage = func() {
		fmt.Println("Usage: chatdoc [flags]")
		fmt.Println("\nManage a tagged chat document: toggle blocks, assemble context and talk to a model.")
		fmt.Println("\nExample: chatdoc -f notes.chat --send")
		fmt.Println("\nFlags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
