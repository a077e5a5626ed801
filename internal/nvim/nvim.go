package nvim

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/neovim/go-client/nvim"
	"go.uber.org/zap"
)

// ListenEnv names the variable holding the address of a running editor.
const ListenEnv = "NVIM_LISTEN_ADDRESS"

const (
	socketWait = time.Second
	socketPoll = 50 * time.Millisecond
)

var errSocketTimeout = errors.New("nvim socket did not appear")

// Session is an RPC connection to Neovim. When no editor is listening it
// owns a headless child process and its socket directory.
type Session struct {
	client *nvim.Nvim
	log    *zap.Logger

	child *exec.Cmd
	dir   string
}

// Connect attaches to the editor named by $NVIM_LISTEN_ADDRESS and falls back
// to spawning a headless one.
func Connect(logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr := os.Getenv(ListenEnv); addr != "" {
		client, err := nvim.Dial(addr)
		if err == nil {
			logger.Debug("attached to nvim", zap.String("addr", addr))
			return &Session{client: client, log: logger}, nil
		}
		logger.Warn("nvim not reachable, spawning headless", zap.String("addr", addr), zap.Error(err))
	}
	return spawn(logger)
}

func spawn(logger *zap.Logger) (*Session, error) {
	dir, err := os.MkdirTemp("", "chatdoc-nvim-")
	if err != nil {
		return nil, fmt.Errorf("create nvim socket dir: %w", err)
	}
	sock := filepath.Join(dir, "nvim.sock")

	child := exec.Command("nvim", "--headless", "--clean", "--listen", sock)
	if err := child.Start(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("start headless nvim (is nvim on PATH?): %w", err)
	}

	s := &Session{log: logger, child: child, dir: dir}
	if err := waitForSocket(sock); err != nil {
		s.Close()
		return nil, err
	}
	if s.client, err = nvim.Dial(sock); err != nil {
		s.Close()
		return nil, fmt.Errorf("dial headless nvim: %w", err)
	}
	logger.Debug("spawned headless nvim", zap.String("socket", sock))

	// Keep undo history on disk so a commit can be undone from the editor.
	b := s.client.NewBatch()
	b.Command("set noswapfile")
	b.Command("set undofile")
	if err := b.Execute(); err != nil {
		logger.Warn("configure headless nvim", zap.Error(err))
	}
	return s, nil
}

func waitForSocket(path string) error {
	deadline := time.Now().Add(socketWait)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		time.Sleep(socketPoll)
	}
	return fmt.Errorf("%w: %s", errSocketTimeout, path)
}

// Close drops the connection. A spawned editor is killed and its socket
// directory removed.
func (s *Session) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Debug("close nvim connection", zap.Error(err))
		}
	}
	if s.child == nil || s.child.Process == nil {
		return
	}
	if err := s.child.Process.Kill(); err == nil {
		s.child.Wait()
	}
	os.RemoveAll(s.dir)
}

// Open edits path in the editor and returns the buffer as a document.
func (s *Session) Open(path string) (*BufferDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := s.client.Command("edit " + abs); err != nil {
		return nil, fmt.Errorf("open %s in nvim: %w", abs, err)
	}
	doc, err := s.Current()
	if err != nil {
		return nil, err
	}
	doc.Path = abs
	return doc, nil
}

// Current returns the buffer the editor is showing.
func (s *Session) Current() (*BufferDocument, error) {
	buf, err := s.client.CurrentBuffer()
	if err != nil {
		return nil, fmt.Errorf("get current buffer: %w", err)
	}
	name, err := s.client.BufferName(buf)
	if err != nil {
		return nil, fmt.Errorf("get buffer name: %w", err)
	}
	return &BufferDocument{nvim: s.client, buf: buf, log: s.log, Path: name}, nil
}
