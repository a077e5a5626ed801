package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sokinpui/chatdoc/chatdoc"
	"github.com/sokinpui/chatdoc/cli"
	"github.com/sokinpui/chatdoc/internal/config"
	"github.com/sokinpui/chatdoc/internal/document"
	"github.com/sokinpui/chatdoc/internal/logging"
	"github.com/sokinpui/chatdoc/internal/nvim"
	"github.com/sokinpui/chatdoc/internal/tui"
	"github.com/sokinpui/chatdoc/internal/ui"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseFlags()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	configPath := cfg.ConfigPath
	if configPath == "" {
		if configPath, err = config.DefaultPath(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	settings, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Verbose || settings.Log.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	doc, closeDoc, err := openDocument(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open document: %v\n", err)
		return 1
	}
	defer closeDoc()

	app, err := chatdoc.New(doc, chatdoc.Options{
		Logger:     logger,
		Config:     settings,
		ConfigPath: configPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}

	// Only sending waits on the network; everything else runs without the TUI.
	if cfg.Action() != cli.ActionSend || cfg.NoAnimation {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		summary, err := app.Execute(ctx, cfg)
		if err != nil {
			var detailed *chatdoc.DetailedError
			if errors.As(err, &detailed) {
				fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
			}
			ui.Error("Error: %v", err)
			return 1
		}
		if summary.Message != "" || len(summary.Changed)+len(summary.Inserted)+len(summary.Skipped) > 0 {
			ui.PrintSummary(summary)
		}
		return 0
	}

	model := tui.New(app, cfg)
	p := tea.NewProgram(model)
	model.SetProgram(p)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return 1
	}
	if model.Err() != nil {
		return 1
	}
	return 0
}

// openDocument returns the chat document named on the command line. Actions
// that need no document get an empty in-memory one.
func openDocument(cfg *cli.Config, logger *zap.Logger) (document.Document, func(), error) {
	noop := func() {}
	if !cfg.NeedsDocument() {
		return document.NewBuffer(""), noop, nil
	}
	if !cfg.Nvim {
		f, err := document.Open(cfg.File)
		if err != nil {
			return nil, noop, err
		}
		return f, noop, nil
	}

	session, err := nvim.Connect(logger.Named("nvim"))
	if err != nil {
		return nil, noop, err
	}
	var doc *nvim.BufferDocument
	if cfg.File != "" {
		doc, err = session.Open(cfg.File)
	} else {
		doc, err = session.Current()
	}
	if err != nil {
		session.Close()
		return nil, noop, err
	}
	return doc, session.Close, nil
}
