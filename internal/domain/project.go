package domain

import "time"

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// LocaleFallback maps a requested locale to an ordered fallback chain,
// consulted only when no published revision exists for the exact locale.
type LocaleFallback struct {
	ProjectID string   `json:"project_id"`
	Locale    string   `json:"locale"`
	Fallbacks []string `json:"fallbacks"`
}
