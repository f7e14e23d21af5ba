package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Artifact is the immutable output of a single backend call.
type Artifact struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Adapter    string            `json:"adapter"`
	Model      string            `json:"model"`
	PromptHash string            `json:"prompt_hash"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Hash       string            `json:"hash"`
}

// New creates an artifact and computes its content hash. The prompt itself
// is not retained, only its digest.
func New(content, adapter, model, prompt string) *Artifact {
	a := &Artifact{
		ID:         uuid.NewString(),
		Content:    content,
		Adapter:    adapter,
		Model:      model,
		PromptHash: Digest(prompt),
		Metadata:   make(map[string]string),
		CreatedAt:  time.Now().UTC(),
	}
	a.Hash = a.computeHash()
	return a
}

// WithMetadata returns a copy of the artifact with an additional metadata key.
func (a *Artifact) WithMetadata(key, value string) *Artifact {
	cp := *a
	cp.Metadata = copyMetadata(a.Metadata)
	cp.Metadata[key] = value
	return &cp
}

// Digest returns a short sha256 hex digest of s.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

func (a *Artifact) computeHash() string {
	h := sha256.New()
	h.Write([]byte(a.Content))
	h.Write([]byte(a.Adapter))
	h.Write([]byte(a.Model))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func copyMetadata(m map[string]string) map[string]string {
	newM := make(map[string]string, len(m)+1)
	for k, v := range m {
		newM[k] = v
	}
	return newM
}
