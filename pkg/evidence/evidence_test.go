package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/switchboard/pkg/schema"
)

func TestEvidenceWriter(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run-123")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	run := RunRecord{
		ID:        "run-123",
		Timestamp: time.Now().UTC(),
		InputHash: HashString("input"),
		Request:   schema.Request{Task: schema.TaskCode, Input: "input", Mode: schema.ModeBest},
		Response:  &schema.Response{RunID: "run-123", Final: "ok", WinnerModel: "coder", Verified: true},
	}
	if err := writer.WriteRun(run); err != nil {
		t.Fatalf("write run: %v", err)
	}

	stage := StageRecord{
		Name:      schema.StepExecute,
		BackendID: "coder",
		Model:     "claude",
		Verified:  true,
	}
	if err := writer.WriteStage(stage); err != nil {
		t.Fatalf("write stage: %v", err)
	}

	if _, err := os.Stat(filepath.Join(writer.RunDir(), "run.json")); err != nil {
		t.Fatalf("missing run.json: %v", err)
	}
	if _, err := os.Stat(filepath.Join(writer.RunDir(), "stages", "execute.json")); err != nil {
		t.Fatalf("missing stage file: %v", err)
	}

	if runtime.GOOS != "windows" {
		assertPerm(t, writer.RunDir(), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "stages"), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "blobs"), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "run.json"), 0600)
		assertPerm(t, filepath.Join(writer.RunDir(), "stages", "execute.json"), 0600)
	}

	loaded, err := ReadRun(writer.RunDir())
	if err != nil {
		t.Fatalf("read run: %v", err)
	}
	if loaded.Response == nil || loaded.Response.WinnerModel != "coder" || loaded.Request.Task != schema.TaskCode {
		t.Fatalf("unexpected run record: %+v", loaded)
	}

	stages, err := ReadStages(writer.RunDir())
	if err != nil {
		t.Fatalf("read stages: %v", err)
	}
	if len(stages) != 1 || stages[0].BackendID != "coder" {
		t.Fatalf("unexpected stages: %+v", stages)
	}
}

func TestWriteBlob(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run1")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	content := []byte("hello")
	sum := sha256.Sum256(content)
	expectedSha := hex.EncodeToString(sum[:])

	ref, sha, err := writer.WriteBlob("prompt", content)
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if sha != expectedSha {
		t.Fatalf("sha mismatch: %s", sha)
	}

	data, err := ReadBlob(writer.RunDir(), ref)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != string(content) {
		t.Fatalf("content mismatch: %q", string(data))
	}
	if runtime.GOOS != "windows" {
		assertPerm(t, filepath.Join(writer.RunDir(), ref), 0600)
	}

	ref2, sha2, err := writer.WriteBlob("prompt", content)
	if err != nil {
		t.Fatalf("write blob again: %v", err)
	}
	if ref2 != ref || sha2 != sha {
		t.Fatalf("expected same ref and sha")
	}

	if _, err := ReadBlob(writer.RunDir(), "../outside.txt"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

func TestWriteBlobKindSanitization(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run2")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	ref, _, err := writer.WriteBlob("Prompt 123/../", []byte("x"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if !strings.HasPrefix(ref, "blobs/prompt123-") {
		t.Fatalf("unexpected ref: %s", ref)
	}
	if strings.Count(ref, "/") != 1 {
		t.Fatalf("unexpected path separators in ref: %s", ref)
	}

	ref, _, err = writer.WriteBlob("!!!", []byte("y"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if !strings.HasPrefix(ref, "blobs/blob-") {
		t.Fatalf("expected blob kind fallback in ref: %s", ref)
	}
}

func assertPerm(t *testing.T, path string, expected os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.Mode().Perm() != expected {
		t.Fatalf("expected %s mode %o, got %o", path, expected, info.Mode().Perm())
	}
}
