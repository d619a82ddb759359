package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditLogger writes append-only, hash-chained audit entries to a JSON-lines file.
type AuditLogger struct {
	mu       sync.Mutex
	file     *os.File
	prevHash string
}

// NewAuditLogger opens (or creates) the audit log file at path.
// The directory is created with 0700; the file with 0600.
// The last entry's hash is recovered so the chain continues across runs.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if path == "" {
		return nil, errors.New("audit: empty log path")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: create dir %s: %w", dir, err)
	}

	prevHash, err := lastHash(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}

	return &AuditLogger{file: f, prevHash: prevHash}, nil
}

// Log writes an audit entry, computing its hash chain value.
func (l *AuditLogger) Log(entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	hash, err := chainHash(l.prevHash, entry)
	if err != nil {
		return err
	}
	entry.EntryHash = hash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal final: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	l.prevHash = hash
	return nil
}

// Close closes the underlying file.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// chainHash is SHA256(prevHash + entry JSON without its hash).
func chainHash(prevHash string, entry AuditEntry) (string, error) {
	entry.EntryHash = ""
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("audit: marshal: %w", err)
	}
	h := sha256.Sum256(append([]byte(prevHash), raw...))
	return fmt.Sprintf("%x", h), nil
}

// Verify reads the log at path and checks every entry's hash against
// its predecessor. It returns the number of entries checked.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	prevHash := ""
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return count, fmt.Errorf("audit: entry %d: %w", count+1, err)
		}
		want, err := chainHash(prevHash, entry)
		if err != nil {
			return count, err
		}
		if entry.EntryHash != want {
			return count, fmt.Errorf("audit: entry %d: hash chain broken", count+1)
		}
		prevHash = entry.EntryHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("audit: read %s: %w", path, err)
	}
	return count, nil
}

// lastHash returns the hash of the last entry in the file at path, or
// the empty string when the file is missing or empty.
func lastHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("audit: read %s: %w", path, err)
	}

	lines := bytes.Split(data, []byte{'\n'})
	for i := len(lines) - 1; i >= 0; i-- {
		if len(bytes.TrimSpace(lines[i])) == 0 {
			continue
		}
		var entry AuditEntry
		if json.Unmarshal(lines[i], &entry) == nil {
			return entry.EntryHash, nil
		}
		return "", fmt.Errorf("audit: %s: last entry is not valid JSON", path)
	}
	return "", nil
}
