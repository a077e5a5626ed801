package tui

import (
	"bytes"
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/chatdoc/chatdoc"
	"github.com/sokinpui/chatdoc/cli"
	"github.com/sokinpui/chatdoc/internal/config"
	"github.com/sokinpui/chatdoc/internal/document"
	"github.com/sokinpui/chatdoc/internal/llm"
)

type replyClient struct{}

func (replyClient) Complete(context.Context, llm.Call) (llm.Response, error) {
	return llm.Response{Content: "pong"}, nil
}

func newModel(t *testing.T) (*Model, *document.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.DefaultModel = "m"
	cfg.Providers = []config.ProviderConfig{{ID: "p", APIKey: "k", Models: []config.ModelConfig{{ID: "m"}}}}

	buf := document.NewBuffer(`<U A id="u1">ping</U>`)
	app, err := chatdoc.New(buf, chatdoc.Options{Config: cfg, Client: replyClient{}, Out: &bytes.Buffer{}})
	require.NoError(t, err)
	return New(app, &cli.Config{File: "x", Send: true}), buf
}

func TestModel_RunSend(t *testing.T) {
	m, buf := newModel(t)

	msg := m.runApp()
	done, ok := msg.(doneMsg)
	require.True(t, ok, "got %T", msg)
	require.NoError(t, done.err)
	assert.Len(t, done.summary.Inserted, 2)
	assert.Contains(t, buf.Text(), ">pong</A>")

	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, phaseDone, m.phase)
	assert.Contains(t, m.View(), "Inserted:")
}

func TestModel_Progress(t *testing.T) {
	m, _ := newModel(t)
	m.Update(progressMsg{current: 1, total: 3})
	assert.Contains(t, m.View(), "[1/3] Waiting for model")
}

func TestModel_Error(t *testing.T) {
	m, _ := newModel(t)
	m.Update(doneMsg{err: errors.New("no model selected")})
	assert.Equal(t, phaseFailed, m.phase)
	assert.Contains(t, m.View(), "no model selected")
	assert.EqualError(t, m.Err(), "no model selected")
}

func TestModel_QuitCancels(t *testing.T) {
	m, _ := newModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.ErrorIs(t, m.ctx.Err(), context.Canceled)
}
