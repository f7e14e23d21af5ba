// Package evidence writes a replayable bundle per request: run.json with the
// request and the response (or error), one record per backend execution
// under stages/, and content-addressed prompt/output blobs under blobs/.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zen-systems/switchboard/pkg/schema"
)

const (
	dirPerm  = 0700
	filePerm = 0600
)

// RunRecord captures one request end to end.
type RunRecord struct {
	ID             string                `json:"id"`
	Timestamp      time.Time             `json:"timestamp"`
	InputHash      string                `json:"input_hash"`
	Request        schema.Request        `json:"request"`
	Response       *schema.Response      `json:"response,omitempty"`
	Error          *schema.ErrorResponse `json:"error,omitempty"`
	DurationMillis int64                 `json:"duration_ms"`
	CostUSD        float64               `json:"cost_usd,omitempty"`
	ToolVersions   map[string]string     `json:"tool_versions,omitempty"`
}

// StageRecord captures one backend execution and its verification.
type StageRecord struct {
	Name           string       `json:"name"`
	BackendID      string       `json:"backend_id"`
	Model          string       `json:"model,omitempty"`
	PromptRef      string       `json:"prompt_ref,omitempty"`
	PromptHash     string       `json:"prompt_hash,omitempty"`
	OutputRef      string       `json:"output_ref,omitempty"`
	OutputHash     string       `json:"output_hash,omitempty"`
	Verified       bool         `json:"verified"`
	Notes          []string     `json:"notes,omitempty"`
	Error          string       `json:"error,omitempty"`
	Usage          schema.Usage `json:"usage"`
	CostUSD        float64      `json:"cost_usd,omitempty"`
	DurationMillis int64        `json:"duration_ms"`
}

// Writer writes evidence bundles to disk.
type Writer struct {
	baseDir string
	runDir  string
}

// NewWriter creates a new evidence writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "stages"), filepath.Join(runDir, "blobs")} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, err
		}
		if err := os.Chmod(dir, dirPerm); err != nil {
			return nil, err
		}
	}

	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteStage writes a stage record to stages/<name>.json.
func (w *Writer) WriteStage(record StageRecord) error {
	if record.Name == "" {
		return fmt.Errorf("stage name is required")
	}
	path := filepath.Join(w.runDir, "stages", fmt.Sprintf("%s.json", sanitizeKind(record.Name)))
	return writeJSON(path, record)
}

// WriteBlob stores content under blobs/<kind>-<sha256>.txt and returns the
// run-relative reference and the digest. Writing the same content twice is
// a no-op.
func (w *Writer) WriteBlob(kind string, content []byte) (string, string, error) {
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])
	ref := "blobs/" + sanitizeKind(kind) + "-" + sha + ".txt"

	path := filepath.Join(w.runDir, filepath.FromSlash(ref))
	if _, err := os.Stat(path); err == nil {
		return ref, sha, nil
	}
	if err := os.WriteFile(path, content, filePerm); err != nil {
		return "", "", err
	}
	return ref, sha, nil
}

// ReadRun loads run.json from a run directory.
func ReadRun(runDir string) (*RunRecord, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "run.json"))
	if err != nil {
		return nil, err
	}
	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse run.json: %w", err)
	}
	return &record, nil
}

// ReadStages loads every stage record of a run, ordered by name.
func ReadStages(runDir string) ([]StageRecord, error) {
	entries, err := os.ReadDir(filepath.Join(runDir, "stages"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	records := make([]StageRecord, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(runDir, "stages", name))
		if err != nil {
			return nil, err
		}
		var record StageRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// ReadBlob returns the content of a run-relative blob reference.
func ReadBlob(runDir, ref string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid blob reference %q", ref)
	}
	return os.ReadFile(filepath.Join(runDir, clean))
}

// HashString returns the hex sha256 of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sanitizeKind(kind string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(kind) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "blob"
	}
	return b.String()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, filePerm)
}
