package domain

import "time"

// TMEntry is a reusable (source fingerprint -> translated payload) mapping.
// The compound key makes a hit an exact match; there is no fuzzy matching.
type TMEntry struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	Namespace   string         `json:"namespace"`
	ReuseHash   []byte         `json:"reuse_hash"`
	SrcLang     string         `json:"src_lang"`
	TgtLang     string         `json:"tgt_lang"`
	Variant     string         `json:"variant"`
	PolicyVer   int            `json:"policy_ver"`
	HashAlgoVer int            `json:"hash_algo_ver"`
	Payload     map[string]any `json:"payload"`
	Score       *float64       `json:"score"`
	LastUsedAt  time.Time      `json:"last_used_at"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TMLink is the traceability edge between a revision and the TM entry that
// produced it or was produced by it.
type TMLink struct {
	RevisionID string    `json:"revision_id"`
	TMID       string    `json:"tm_id"`
	CreatedAt  time.Time `json:"created_at"`
}
