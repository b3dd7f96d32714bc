package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/harun/sqlpilot/internal/observability"
	"github.com/harun/sqlpilot/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const transcriptExt = ".jsonl"

// maxLine caps one transcript line; tool output can make assistant turns long.
const maxLine = 16 << 20

// ErrInvalidKey is returned for session keys that cannot name a transcript file.
var ErrInvalidKey = errors.New("invalid session key")

// Message is one conversation turn.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (m Message) check() error {
	switch {
	case m.Role == "":
		return errors.New("message role cannot be empty")
	case m.Content == "":
		return errors.New("message content cannot be empty")
	}
	return nil
}

// SessionEntry is one transcript line.
type SessionEntry struct {
	SessionKey string  `json:"sessionKey"`
	Message    Message `json:"message"`
}

// SessionManager stores one JSONL transcript per session key under a directory.
type SessionManager struct {
	dir   string
	locks sync.Map // session key -> *sync.Mutex
}

// New opens the transcript directory, creating it if needed. An empty dir
// means ~/.sqlpilot/sessions.
func New(dir string) (*SessionManager, error) {
	observability.EnsureRegistered()

	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".sqlpilot", "sessions")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	log.Debug().Str("dir", dir).Msg("Session manager initialized")
	return &SessionManager{dir: dir}, nil
}

// ValidateKey checks that a session key is safe to use as a file name.
func ValidateKey(key string) error {
	var reason string
	switch {
	case key == "":
		reason = "empty"
	case strings.Contains(key, ".."):
		reason = "contains '..'"
	case strings.ContainsAny(key, `/\`):
		reason = "contains a path separator"
	case strings.ContainsRune(key, 0):
		reason = "contains a null byte"
	default:
		return nil
	}
	return fmt.Errorf("%w %q: %s", ErrInvalidKey, key, reason)
}

func (sm *SessionManager) path(key string) string {
	return filepath.Join(sm.dir, key+transcriptExt)
}

func (sm *SessionManager) lock(key string) func() {
	mu, _ := sm.locks.LoadOrStore(key, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func sessionLogger(ctx context.Context, key string) zerolog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return tracing.LoggerFromContext(tracing.WithSessionKey(ctx, key), log.Logger)
}

// AppendMessage appends message to the transcript of key.
func (sm *SessionManager) AppendMessage(key string, message Message) error {
	return sm.AppendMessageWithContext(context.Background(), key, message)
}

// AppendMessageWithContext appends message to the transcript of key, creating
// it on first write. A zero Timestamp is set to now.
func (sm *SessionManager) AppendMessageWithContext(ctx context.Context, key string, message Message) error {
	defer func(start time.Time) { observability.RecordSessionSave(time.Since(start)) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := message.check(); err != nil {
		return err
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	line, err := json.Marshal(SessionEntry{SessionKey: key, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	unlock := sm.lock(key)
	defer unlock()
	if err := appendLine(sm.path(key), line); err != nil {
		return err
	}

	logger := sessionLogger(ctx, key)
	logger.Debug().Str("role", message.Role).Msg("Message appended")
	return nil
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	return f.Close()
}

// LoadSession reads the transcript of key.
func (sm *SessionManager) LoadSession(key string) ([]SessionEntry, error) {
	return sm.LoadSessionWithContext(context.Background(), key)
}

// LoadSessionWithContext reads the transcript of key in append order. A key
// that was never written loads as empty; unreadable lines are skipped.
func (sm *SessionManager) LoadSessionWithContext(ctx context.Context, key string) ([]SessionEntry, error) {
	defer func(start time.Time) { observability.RecordSessionLoad(time.Since(start)) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(sm.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return []SessionEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	logger := sessionLogger(ctx, key)
	entries, err := readEntries(f, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	logger.Debug().Int("messages", len(entries)).Msg("Session loaded")
	return entries, nil
}

func readEntries(r io.Reader, logger zerolog.Logger) ([]SessionEntry, error) {
	entries := []SessionEntry{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLine)

	for n := 1; scanner.Scan(); n++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry SessionEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			logger.Warn().Int("line", n).Err(err).Msg("Failed to parse line, skipping")
			continue
		}
		if err := entry.Message.check(); err != nil {
			logger.Warn().Int("line", n).Err(err).Msg("Invalid entry, skipping")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// DeleteSession removes the transcript of key. Deleting a missing transcript
// is not an error.
func (sm *SessionManager) DeleteSession(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	unlock := sm.lock(key)
	defer unlock()
	if err := os.Remove(sm.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	log.Debug().Str("session_key", key).Msg("Session deleted")
	return nil
}

// ListSessions returns the keys of all stored transcripts, sorted.
func (sm *SessionManager) ListSessions() ([]string, error) {
	files, err := os.ReadDir(sm.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	keys := []string{}
	for _, file := range files {
		if key, ok := strings.CutSuffix(file.Name(), transcriptExt); ok && !file.IsDir() {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Close drops the per-session locks.
func (sm *SessionManager) Close() error {
	sm.locks.Clear()
	return nil
}
