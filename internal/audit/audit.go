// Package audit appends classifier decisions to a JSON Lines file.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xde-mcp/cmdgate/internal/fileutil"
	"github.com/xde-mcp/cmdgate/internal/logger"
	"github.com/xde-mcp/cmdgate/internal/rules"
	"github.com/xde-mcp/cmdgate/internal/types"
)

var log = logger.New("audit")

// Record is one line of the trail.
type Record struct {
	ID      string        `json:"id"`
	Time    time.Time     `json:"time"`
	Grammar string        `json:"grammar,omitempty"`
	Rule    string        `json:"rule,omitempty"`
	Verdict types.Verdict `json:"verdict"`
	Reason  string        `json:"reason,omitempty"`
	Command string        `json:"command"`
}

// Trail is an append-only decision log. A nil *Trail records nothing.
type Trail struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder

	now func() time.Time
}

// Open opens (creating if needed) the trail at path with owner-only access.
func Open(path string) (*Trail, error) {
	f, err := fileutil.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit trail: %w", err)
	}
	return &Trail{path: path, f: f, enc: json.NewEncoder(f), now: time.Now}, nil
}

// Path returns the trail's file path.
func (t *Trail) Path() string {
	return t.path
}

// Record appends d unless it is no opinion. Failures are logged only;
// auditing never changes a decision.
func (t *Trail) Record(command string, d rules.Decision) {
	if t == nil || !d.Verdict.IsDecisive() {
		return
	}
	err := t.Append(Record{
		ID:      uuid.NewString(),
		Time:    t.now().UTC(),
		Grammar: d.Grammar,
		Rule:    d.Rule,
		Verdict: d.Verdict,
		Reason:  d.Reason,
		Command: command,
	})
	if err != nil {
		log.Warn("Failed to write audit record: %v", err)
	}
}

// Append writes r as one line.
func (t *Trail) Append(r Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return os.ErrClosed
	}
	return t.enc.Encode(r)
}

// Close closes the file. Further appends fail.
func (t *Trail) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

// Read returns the last n records of the trail at path, oldest first.
// n <= 0 returns all. Lines that do not decode are skipped.
func Read(path string, n int) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			log.Debug("Skipping bad audit line: %v", err)
			continue
		}
		out = append(out, r)
		if n > 0 && len(out) > n {
			out = out[1:]
		}
	}
	return out, sc.Err()
}
