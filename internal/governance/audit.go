package governance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/miradorstack/ids-eval/internal/utils"
)

// EntryKind distinguishes policy decisions from pipeline steps.
type EntryKind string

const (
	KindAction EntryKind = "action"
	KindStep   EntryKind = "step"
)

// AuditEntry is one immutable line of the audit trail.
type AuditEntry struct {
	Timestamp time.Time
	Kind      EntryKind
	Name      string
	Allowed   bool
	Metadata  map[string]any
	Detail    string
}

// Line renders the entry as a single audit log line.
func (e AuditEntry) Line() string {
	ts := utils.FormatAuditTime(e.Timestamp)
	if e.Kind == KindAction {
		return fmt.Sprintf("%s | ACTION=%s | ALLOWED=%t | META=%s", ts, e.Name, e.Allowed, renderMetadata(e.Metadata))
	}
	return fmt.Sprintf("%s | STEP=%s | DETAIL=%s", ts, e.Name, singleLine(e.Detail))
}

func renderMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return "{}"
	}
	// encoding/json sorts map keys, which keeps lines stable across runs.
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Sprintf("%v", meta)
	}
	return string(data)
}

func singleLine(s string) string {
	return strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(s)
}

// Sink receives audit entries. Implementations must only ever append.
type Sink interface {
	Record(entry AuditEntry) error
}

// FileSink appends one line per entry to a text file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink returns a sink appending to path, creating parent directories on first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the audit log location.
func (s *FileSink) Path() string { return s.path }

// Record appends the entry. The file is opened per write so concurrent
// readers always observe complete lines.
func (s *FileSink) Record(entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.WriteString(entry.Line() + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append audit log: %w", err)
	}
	return f.Close()
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores a copy of the entry.
func (s *MemorySink) Record(entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a snapshot of recorded entries in order.
func (s *MemorySink) Entries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.entries...)
}
