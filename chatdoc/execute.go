package chatdoc

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sokinpui/chatdoc/cli"
	"github.com/sokinpui/chatdoc/internal/convo"
	"github.com/sokinpui/chatdoc/internal/parser"
	"github.com/sokinpui/chatdoc/model"
)

// Execute runs the action selected on the command line.
func (a *App) Execute(ctx context.Context, cfg *cli.Config) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	if cfg.Model != "" {
		if err := a.SetModel(cfg.Model); err != nil {
			return model.Summary{}, err
		}
	}

	switch cfg.Action() {
	case cli.ActionState:
		return a.changeState(cfg)
	case cli.ActionSend:
		return a.sendAndSave(ctx, cfg)
	case cli.ActionOutline:
		return a.printOutline()
	case cli.ActionNew:
		return a.insertFromSource(cfg)
	case cli.ActionRename:
		return a.rename(cfg)
	case cli.ActionProcess:
		return a.processSource(cfg.Process)
	case cli.ActionRules:
		return a.printRules()
	case cli.ActionBlocks:
		return a.printBlocks()
	case cli.ActionVerify:
		return a.verify(ctx)
	default:
		fmt.Fprintln(a.out, a.Context())
		return model.Summary{}, nil
	}
}

func (a *App) save(cfg *cli.Config) error {
	if cfg.Buffer {
		return nil
	}
	if err := a.Save(); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// changeState applies --toggle, --activate and --deactivate in that order and
// commits them as one edit set.
func (a *App) changeState(cfg *cli.Config) (model.Summary, error) {
	a.Push()
	for _, id := range cfg.Toggle {
		if _, err := a.Toggle(id); err != nil {
			a.Pop()
			return model.Summary{}, err
		}
	}
	for _, id := range cfg.Activate {
		if err := a.SetState(id, model.Active); err != nil {
			a.Pop()
			return model.Summary{}, err
		}
	}
	for _, id := range cfg.Deactivate {
		if err := a.SetState(id, model.Inactive); err != nil {
			a.Pop()
			return model.Summary{}, err
		}
	}

	changed, err := a.Commit()
	if err != nil {
		a.Pop()
		return model.Summary{}, err
	}
	if len(changed) == 0 {
		return model.Summary{Message: "Document already matches the requested state."}, nil
	}
	if err := a.save(cfg); err != nil {
		return model.Summary{}, err
	}
	return model.Summary{Changed: changed}, nil
}

func (a *App) sendAndSave(ctx context.Context, cfg *cli.Config) (model.Summary, error) {
	summary, err := a.Send(ctx)
	if err != nil {
		return summary, err
	}
	if err := a.save(cfg); err != nil {
		return summary, err
	}
	return summary, nil
}

func (a *App) insertFromSource(cfg *cli.Config) (model.Summary, error) {
	t, ok := model.ParseBlockType(cfg.New)
	if !ok || !t.Taggable() {
		return model.Summary{}, fmt.Errorf("unknown block type %q (use S, U, A or N)", cfg.New)
	}
	content, err := a.source.GetContent()
	if err != nil {
		return model.Summary{}, err
	}

	var opts []convo.BlockOption
	if cfg.Name != "" {
		opts = append(opts, convo.WithName(cfg.Name))
	}
	id, err := a.Insert(t, strings.TrimSpace(content), opts...)
	if err != nil {
		return model.Summary{}, err
	}
	if err := a.save(cfg); err != nil {
		return model.Summary{}, err
	}
	return model.Summary{Inserted: []string{id}}, nil
}

func (a *App) rename(cfg *cli.Config) (model.Summary, error) {
	id, name, err := cfg.RenameArgs()
	if err != nil {
		return model.Summary{}, err
	}
	if err := a.Rename(id, name); err != nil {
		return model.Summary{}, err
	}
	if err := a.save(cfg); err != nil {
		return model.Summary{}, err
	}
	return model.Summary{Changed: []string{id}}, nil
}

func (a *App) printOutline() (model.Summary, error) {
	headings := a.Outline()
	for _, h := range headings {
		fmt.Fprintf(a.out, "%s%s (line %d)\n", strings.Repeat("  ", h.Level-1), h.Text, h.Line+1)
	}
	if len(headings) == 0 {
		return model.Summary{Message: "No headings found."}, nil
	}
	return model.Summary{}, nil
}

// processSource applies a rule to stdin or the clipboard and prints the
// result. An extracted block follows the text as a ready-to-paste block.
func (a *App) processSource(ruleID string) (model.Summary, error) {
	content, err := a.source.GetContent()
	if err != nil {
		return model.Summary{}, err
	}
	if content == "" {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}

	res, err := a.Process(ruleID, content)
	if err != nil {
		return model.Summary{}, err
	}
	fmt.Fprint(a.out, res.ProcessedText)
	if res.ExtractedBlock != nil {
		b := convo.NewBlock(res.ExtractedBlock.Type, res.ExtractedBlock.Content, convo.WithName(res.ExtractedBlock.Name))
		text, err := parser.SerializeChecked(b)
		if err != nil {
			return model.Summary{}, err
		}
		fmt.Fprintf(a.out, "\n\n%s\n", text)
	}
	if !res.Success {
		return model.Summary{Message: fmt.Sprintf("Rule %s did not match.", ruleID)}, nil
	}
	return model.Summary{}, nil
}

func (a *App) printRules() (model.Summary, error) {
	for _, r := range a.Rules() {
		kind := string(r.Type)
		if r.Programmatic() {
			kind += ", programmatic"
		}
		fmt.Fprintf(a.out, "%s\t(%s)\t%s\n", r.ID, kind, r.Name)
	}
	return model.Summary{}, nil
}

func (a *App) printBlocks() (model.Summary, error) {
	symbols, err := a.Symbols()
	if err != nil {
		return model.Summary{}, err
	}
	for _, sym := range symbols {
		fmt.Fprintf(a.out, "%s\t%s %s\t%s\t(lines %d-%d)\n",
			sym.ID, sym.Type, sym.State, sym.Title, sym.StartLine+1, sym.EndLine+1)
		for _, f := range sym.Fences {
			lang := f.Lang
			if lang == "" {
				lang = "text"
			}
			fmt.Fprintf(a.out, "\t```%s\t(lines %d-%d)\n", lang, f.StartLine+1, f.EndLine+1)
		}
	}
	if len(symbols) == 0 {
		return model.Summary{Message: "No blocks found."}, nil
	}
	return model.Summary{}, nil
}

func (a *App) verify(ctx context.Context) (model.Summary, error) {
	v, err := a.Verify(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	resp := v.Response
	fmt.Fprintf(a.out, "Provider:  %s (%s)\n", v.Provider.Name, v.Provider.URL)
	fmt.Fprintf(a.out, "Model:     %s\n", v.Model.Name)
	fmt.Fprintf(a.out, "Response:  %s from %s", resp.ID, resp.Model)
	if resp.Created > 0 {
		fmt.Fprintf(a.out, " at %s", time.Unix(resp.Created, 0).UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(a.out, "\nUsage:     %d prompt + %d completion = %d tokens\n",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	fmt.Fprintf(a.out, "\n%s\n", resp.Content)
	return model.Summary{Message: "Provider verified.", Model: v.Model.ID}, nil
}
