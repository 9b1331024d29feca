package domain

import "time"

// Content is one unit of source material. Identity is (project, namespace,
// key-hash) and is immutable: upserting with a different payload or version
// never changes the id.
type Content struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	Namespace     string         `json:"namespace"`
	KeyHash       []byte         `json:"key_hash"` // 32-byte canonical hash
	KeyCanonical  string         `json:"key_canonical"`
	Keys          map[string]any `json:"keys"`
	SourcePayload map[string]any `json:"source_payload"`
	SourceLang    string         `json:"source_lang"`
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
