package nvim

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/chatdoc/internal/state"
	"github.com/sokinpui/chatdoc/model"
)

func TestReplacement(t *testing.T) {
	assert.Equal(t, [][]byte{[]byte("")}, replacement(""))
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("")}, replacement("a\nb\n"))
}

func newHeadless(t *testing.T) *Session {
	t.Helper()
	if _, err := exec.LookPath("nvim"); err != nil {
		t.Skip("nvim not installed")
	}
	t.Setenv(ListenEnv, "")
	m, err := Connect(nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestBufferDocument_Reconcile(t *testing.T) {
	m := newHeadless(t)

	path := filepath.Join(t.TempDir(), "chat.chat")
	text := "<S A id=\"s1\">Sys</S>\n\n<U I id=\"u1\">line one\nline two</U>\n\n<N I id=\"n1\">note</N>"
	require.NoError(t, os.WriteFile(path, []byte(text+"\n"), 0644))

	doc, err := m.Open(path)
	require.NoError(t, err)
	require.Equal(t, text, doc.Text())

	sm := state.New(doc)
	sm.SetBlockState("u1", model.Active)
	sm.SetBlockState("n1", model.Active)
	require.NoError(t, doc.ApplyEdits(sm.Reconcile()))

	want := "<S A id=\"s1\">Sys</S>\n\n<U A id=\"u1\">line one\nline two</U>\n\n<N A id=\"n1\">note</N>"
	assert.Equal(t, want, doc.Text())

	sm.Reload()
	assert.Empty(t, sm.Reconcile())

	require.NoError(t, doc.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want+"\n", string(data))
}

func TestWaitForSocket_Timeout(t *testing.T) {
	err := waitForSocket(filepath.Join(t.TempDir(), "missing.sock"))
	assert.ErrorIs(t, err, errSocketTimeout)
}

func TestBufferDocument_RejectsInvalidEdits(t *testing.T) {
	m := newHeadless(t)

	path := filepath.Join(t.TempDir(), "chat.chat")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))
	doc, err := m.Open(path)
	require.NoError(t, err)

	err = doc.ApplyEdits([]model.Edit{{Span: model.Span{Start: 0, End: 50}, Text: "x"}})
	require.Error(t, err)
	assert.Equal(t, "hello", doc.Text())
}
