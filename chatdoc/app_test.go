package chatdoc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/chatdoc/chatdoc"
	"github.com/sokinpui/chatdoc/cli"
	"github.com/sokinpui/chatdoc/internal/config"
	"github.com/sokinpui/chatdoc/internal/convo"
	"github.com/sokinpui/chatdoc/internal/document"
	"github.com/sokinpui/chatdoc/internal/llm"
	"github.com/sokinpui/chatdoc/internal/parser"
	"github.com/sokinpui/chatdoc/internal/state"
	"github.com/sokinpui/chatdoc/model"
)

type fakeClient struct {
	calls []llm.Call
	resp  llm.Response
	err   error
}

func (f *fakeClient) Complete(_ context.Context, call llm.Call) (llm.Response, error) {
	f.calls = append(f.calls, call)
	return f.resp, f.err
}

type staticSource string

func (s staticSource) GetContent() (string, error) { return string(s), nil }

// rejectingDoc refuses every edit.
type rejectingDoc struct{ *document.Buffer }

func (rejectingDoc) ApplyEdits([]model.Edit) error { return document.ErrInvalidEdit }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DefaultModel = "fast"
	cfg.Providers = []config.ProviderConfig{{
		ID:     "p",
		URL:    "http://example.invalid/v1/chat/completions",
		APIKey: "k",
		Models: []config.ModelConfig{{ID: "gpt", Name: "gpt-4o", Alias: "fast"}},
	}}
	return cfg
}

func newApp(t *testing.T, text string, client llm.Client) (*chatdoc.App, *document.Buffer, *bytes.Buffer) {
	t.Helper()
	buf := document.NewBuffer(text)
	var out bytes.Buffer
	app, err := chatdoc.New(buf, chatdoc.Options{
		Config: testConfig(),
		Client: client,
		Out:    &out,
		Source: staticSource("from source"),
	})
	require.NoError(t, err)
	return app, buf, &out
}

const sample = `# Session

<S A id="s1">Be brief.</S>

<U I id="u1">Hello</U>

<N A id="n1">scratch</N>

<A A id="a1" name="Claude">Hi</A>`

func TestApp_Context(t *testing.T) {
	app, _, _ := newApp(t, sample, &fakeClient{})
	assert.Equal(t, "[System] Be brief.\n\n[Claude] Hi", app.Context())
	assert.Len(t, app.Blocks(), 4)
}

func TestApp_ToggleCommitAndUndo(t *testing.T) {
	app, buf, _ := newApp(t, sample, &fakeClient{})

	app.Push()
	s, err := app.Toggle("u1")
	require.NoError(t, err)
	assert.Equal(t, model.Active, s)

	ids, err := app.Commit()
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
	assert.Contains(t, buf.Text(), `<U A id="u1">Hello</U>`)
	assert.Equal(t, "[System] Be brief.\n\n[User] Hello\n\n[Claude] Hi", app.Context())

	require.True(t, app.Pop())
	ids, err = app.Commit()
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
	assert.Equal(t, sample, buf.Text())

	ids, err = app.Commit()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestApp_CommitRejected(t *testing.T) {
	doc := rejectingDoc{document.NewBuffer(`<U I id="u1">x</U>`)}
	app, err := chatdoc.New(doc, chatdoc.Options{})
	require.NoError(t, err)

	require.NoError(t, app.SetState("u1", model.Active))
	_, err = app.Commit()
	require.ErrorIs(t, err, chatdoc.ErrEditRejected)
	require.ErrorIs(t, err, document.ErrInvalidEdit)

	s, ok := app.BlockState("u1")
	require.True(t, ok)
	assert.Equal(t, model.Active, s)
}

func TestApp_Insert(t *testing.T) {
	app, buf, _ := newApp(t, `<U A id="u1">x</U>`, &fakeClient{})

	id, err := app.Insert(model.Note, "remember this", convo.WithName("todo"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "n_"))
	assert.True(t, strings.HasPrefix(buf.Text(), "<U A id=\"u1\">x</U>\n\n<N I id=\""+id+"\" name=\"todo\">"))

	s, ok := app.BlockState(id)
	require.True(t, ok)
	assert.Equal(t, model.Inactive, s)

	_, err = app.Insert(model.Tool, "x")
	assert.ErrorIs(t, err, parser.ErrUnsupportedType)
}

func TestApp_Rename(t *testing.T) {
	app, buf, _ := newApp(t, sample, &fakeClient{})

	require.NoError(t, app.Rename("a1", "Bot"))
	assert.Contains(t, buf.Text(), `<A A id="a1" name="Bot">Hi</A>`)

	assert.ErrorIs(t, app.Rename("missing", "x"), state.ErrBlockNotFound)
}

func TestApp_RenameRefusesUnreadableName(t *testing.T) {
	app, buf, _ := newApp(t, sample, &fakeClient{})
	before := buf.Text()

	err := app.Rename("u1", `say "hi"`)
	require.ErrorIs(t, err, parser.ErrInvalidAttribute)
	assert.Equal(t, before, buf.Text())
	assert.Len(t, parser.Parse(buf.Text()), 4)
}

func TestApp_InsertRefusesUnreadableBlocks(t *testing.T) {
	app, buf, _ := newApp(t, `<U A id="u1">x</U>`, &fakeClient{})

	_, err := app.Insert(model.User, "x", convo.WithName(`a"b`))
	assert.ErrorIs(t, err, parser.ErrInvalidAttribute)

	_, err = app.Insert(model.Note, "ends with </N> early")
	assert.ErrorIs(t, err, parser.ErrClosingTagInContent)
	assert.Equal(t, `<U A id="u1">x</U>`, buf.Text())
}

func TestApp_Outline(t *testing.T) {
	app, _, _ := newApp(t, "# One\ntext\n## Two", &fakeClient{})
	headings := app.Outline()
	require.Len(t, headings, 2)
	assert.Equal(t, "Two", headings[1].Text)
	assert.Equal(t, 2, headings[1].Level)
}

func TestApp_Process(t *testing.T) {
	app, _, _ := newApp(t, "", &fakeClient{})

	res, err := app.Process("openai-thinking-tag", "BeforeXX<think>reasoning</think>YYAfter")
	require.NoError(t, err)
	assert.Equal(t, "BeforeXXYYAfter", res.ProcessedText)
	require.NotNil(t, res.ExtractedBlock)
	assert.Equal(t, "reasoning", res.ExtractedBlock.Content)

	_, err = app.Process("nope", "x")
	assert.Error(t, err)
}

func TestApp_Send(t *testing.T) {
	client := &fakeClient{resp: llm.Response{
		Content: "<think>weighing options</think>\n\nGo with B.",
		Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	app, buf, _ := newApp(t, sample, client)

	var steps []int
	app.SetProgressCallback(func(current, total int) { steps = append(steps, current) })

	summary, err := app.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, steps)
	assert.Equal(t, "fast", summary.Model)
	assert.Contains(t, summary.Usage, "15 tokens")
	require.Len(t, summary.Inserted, 3)

	require.Len(t, client.calls, 1)
	assert.Equal(t, "gpt-4o", client.calls[0].Model)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "Be brief."},
		{Role: llm.RoleAssistant, Content: "Hi"},
	}, client.calls[0].Messages)

	blocks := parser.Parse(buf.Text())
	require.Len(t, blocks, 7)
	note, reply, next := blocks[4], blocks[5], blocks[6]

	assert.Equal(t, model.Note, note.Type)
	assert.Equal(t, model.Inactive, note.State)
	assert.Equal(t, "Thinking", note.Name)
	assert.Equal(t, "weighing options", note.Content)

	assert.Equal(t, model.Assistant, reply.Type)
	assert.Equal(t, "Go with B.", reply.Content)
	assert.Equal(t, "fast", reply.ModelAlias)

	assert.Equal(t, model.User, next.Type)
	assert.Equal(t, model.Active, next.State)
	assert.Equal(t, "", next.Content)

	assert.Contains(t, app.Context(), "Go with B.")
	assert.NotContains(t, app.Context(), "weighing options")
}

func TestApp_SendReasoningField(t *testing.T) {
	cfg := testConfig()
	cfg.Editor.ThinkingAsNote = false
	client := &fakeClient{resp: llm.Response{Content: "Answer", Reasoning: "hidden"}}
	buf := document.NewBuffer(`<U A id="u1">Q</U>`)
	app, err := chatdoc.New(buf, chatdoc.Options{Config: cfg, Client: client})
	require.NoError(t, err)

	summary, err := app.Send(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Inserted, 2)
	assert.NotContains(t, buf.Text(), "hidden")
}

func TestApp_SendErrors(t *testing.T) {
	app, _, _ := newApp(t, `<U I id="u1">Q</U>`, &fakeClient{})
	_, err := app.Send(context.Background())
	assert.ErrorIs(t, err, chatdoc.ErrNothingToSend)

	app, err = chatdoc.New(document.NewBuffer(`<U A id="u1">Q</U>`), chatdoc.Options{Client: &fakeClient{}})
	require.NoError(t, err)
	_, err = app.Send(context.Background())
	assert.ErrorIs(t, err, llm.ErrNoModel)

	failing := &fakeClient{err: errors.New("boom")}
	app, buf, _ := newApp(t, `<U A id="u1">Q</U>`, failing)
	_, err = app.Send(context.Background())
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, `<U A id="u1">Q</U>`, buf.Text())
}

func TestApp_SendRefusesReplyWithClosingTag(t *testing.T) {
	text := `<U A id="u1">How do I close a block?</U>`
	client := &fakeClient{resp: llm.Response{Content: "Use </A> to close a block."}}
	app, buf, _ := newApp(t, text, client)

	_, err := app.Send(context.Background())
	require.ErrorIs(t, err, parser.ErrClosingTagInContent)
	assert.Equal(t, text, buf.Text())
	assert.Len(t, parser.Parse(buf.Text()), 1)
}

func TestApp_ApplyConfig(t *testing.T) {
	app, _, _ := newApp(t, "", &fakeClient{})

	cfg := testConfig()
	cfg.Rules = []config.RuleConfig{{
		ID:            "shout",
		ProcessorType: "replace",
		Pattern:       config.PatternConfig{Regex: "hello"},
		Replace:       &config.ReplaceConfig{With: "HELLO"},
	}}
	require.NoError(t, app.ApplyConfig(cfg))

	res, err := app.Process("shout", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "say HELLO", res.ProcessedText)

	bad := testConfig()
	bad.Rules = []config.RuleConfig{{ID: "t", ProcessorType: "transform", Pattern: config.PatternConfig{Regex: "x"}}}
	assert.ErrorIs(t, app.ApplyConfig(bad), config.ErrProgrammaticRule)
	_, err = app.Process("shout", "hello")
	assert.NoError(t, err)
}

func TestApp_WatchConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_model: \"\"\n"), 0644))

	app, err := chatdoc.New(nil, chatdoc.Options{ConfigPath: path, Client: &fakeClient{}})
	require.NoError(t, err)
	_, ok := app.Service().CurrentModel()
	require.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.WatchConfig(ctx))

	yaml := `
default_model: m
providers:
  - id: p
    url: http://localhost
    api_key: k
    models:
      - id: m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	assert.Eventually(t, func() bool {
		_, ok := app.Service().CurrentModel()
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestApp_Execute(t *testing.T) {
	app, buf, out := newApp(t, sample, &fakeClient{})

	summary, err := app.Execute(context.Background(), &cli.Config{File: "x", Toggle: []string{"u1"}, Deactivate: []string{"s1"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "u1"}, summary.Changed)
	assert.Contains(t, buf.Text(), `<S I id="s1">`)

	_, err = app.Execute(context.Background(), &cli.Config{File: "x"})
	require.NoError(t, err)
	assert.Equal(t, "[User] Hello\n\n[Claude] Hi\n", out.String())

	out.Reset()
	summary, err = app.Execute(context.Background(), &cli.Config{File: "x", New: "U", Name: "me"})
	require.NoError(t, err)
	require.Len(t, summary.Inserted, 1)
	assert.Contains(t, buf.Text(), `name="me">from source</U>`)

	_, err = app.Execute(context.Background(), &cli.Config{File: "x", Toggle: []string{"ghost"}})
	assert.ErrorIs(t, err, state.ErrBlockNotFound)

	before := buf.Text()
	for _, cfg := range []*cli.Config{
		{File: "x", Activate: []string{"typo"}},
		{File: "x", Deactivate: []string{"typo"}},
		{File: "x", Activate: []string{"u1"}, Deactivate: []string{"typo"}},
	} {
		_, err = app.Execute(context.Background(), cfg)
		assert.ErrorIs(t, err, state.ErrBlockNotFound)
	}
	assert.Equal(t, before, buf.Text())
	_, ok := app.BlockState("typo")
	assert.False(t, ok)

	_, err = app.Execute(context.Background(), &cli.Config{File: "x", New: "Tool"})
	assert.Error(t, err)
}

func TestApp_ExecuteProcessAndRules(t *testing.T) {
	buf := document.NewBuffer("")
	var out bytes.Buffer
	app, err := chatdoc.New(buf, chatdoc.Options{
		Out:    &out,
		Source: staticSource("A<think>r</think>B"),
	})
	require.NoError(t, err)

	_, err = app.Execute(context.Background(), &cli.Config{Process: "openai-thinking-tag"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "AB\n\n<N I id=\"n_"))
	assert.Contains(t, out.String(), `name="Thinking">r</N>`)

	out.Reset()
	_, err = app.Execute(context.Background(), &cli.Config{Rules: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "openai-thinking-tag\t(extract)")
	assert.Contains(t, out.String(), "extract-to-note\t(extract, programmatic)")
}

func TestApp_ExecuteBlocks(t *testing.T) {
	text := sample + "\n\n<U I id=\"u2\">\nRun this:\n\n```sh\nls\n```\n</U>"
	app, _, out := newApp(t, text, &fakeClient{})
	require.NoError(t, app.SetState("u1", model.Active))

	symbols, err := app.Symbols()
	require.NoError(t, err)
	require.Len(t, symbols, 5)
	assert.Equal(t, model.Active, symbols[1].State)
	assert.Equal(t, "Claude", symbols[3].Title)
	require.Len(t, symbols[4].Fences, 1)

	_, err = app.Execute(context.Background(), &cli.Config{File: "x", Blocks: true})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "s1\tS A\t[S] Be brief.\t(lines 3-3)", lines[0])
	assert.Equal(t, "u1\tU A\t[U] Hello\t(lines 5-5)", lines[1])
	assert.Equal(t, "a1\tA A\tClaude\t(lines 9-9)", lines[3])
	assert.Equal(t, "u2\tU I\t[U] Run this: ```sh ls ```\t(lines 11-17)", lines[4])
	assert.Equal(t, "\t```sh\t(lines 14-16)", lines[5])

	empty, _, _ := newApp(t, "no blocks here", &fakeClient{})
	summary, err := empty.Execute(context.Background(), &cli.Config{File: "x", Blocks: true})
	require.NoError(t, err)
	assert.Equal(t, "No blocks found.", summary.Message)
}

func TestApp_ExecuteVerify(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []llm.Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) == 1 {
			prompt = body.Messages[0].Content
		}
		_, _ = w.Write([]byte(`{"id":"chatcmpl-9","created":0,"model":"gpt-4o",` +
			`"choices":[{"message":{"content":"This is a test!"}}],` +
			`"usage":{"prompt_tokens":5,"completion_tokens":5,"total_tokens":10}}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Providers[0].URL = srv.URL
	var out bytes.Buffer
	app, err := chatdoc.New(nil, chatdoc.Options{Config: cfg, Out: &out})
	require.NoError(t, err)

	summary, err := app.Execute(context.Background(), &cli.Config{Verify: true, Model: "fast"})
	require.NoError(t, err)
	assert.Equal(t, llm.VerifyPrompt, prompt)
	assert.Equal(t, "Provider verified.", summary.Message)
	assert.Equal(t, "gpt", summary.Model)
	assert.Contains(t, out.String(), "Response:  chatcmpl-9 from gpt-4o")
	assert.Contains(t, out.String(), "5 prompt + 5 completion = 10 tokens")
	assert.Contains(t, out.String(), "This is a test!")

	srv.Close()
	_, err = app.Execute(context.Background(), &cli.Config{Verify: true})
	assert.Error(t, err)
}

func TestDetailedError(t *testing.T) {
	inner := errors.New("inner")
	err := &chatdoc.DetailedError{Err: inner, Stack: []byte("stack")}
	assert.Equal(t, "inner", err.Error())
	assert.ErrorIs(t, err, inner)
}
