package models

import "time"

// ErrorResponse is returned by every endpoint on failure.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// SessionInfo describes one watched browser tab.
type SessionInfo struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`

	// Strategy is "site" or "generic".
	Strategy string `json:"strategy"`

	Enabled            bool  `json:"enabled"`
	InterventionActive bool  `json:"intervention_active"`
	Passes             int64 `json:"passes"`
	Skipped            int64 `json:"skipped"`
	SpedUp             int64 `json:"sped_up"`
}

// SessionResponse is the response for single-session endpoints.
type SessionResponse struct {
	Success bool        `json:"success"`
	Session SessionInfo `json:"session"`
}

// SessionListResponse is the response for GET /api/v1/sessions.
type SessionListResponse struct {
	Success  bool          `json:"success"`
	Sessions []SessionInfo `json:"sessions"`
	Total    int           `json:"total"`
}

// SettingsResponse reports the master switch.
type SettingsResponse struct {
	Success bool `json:"success"`
	Enabled bool `json:"enabled"`
}

// StatsResponse reports lifetime counters and the badge text.
type StatsResponse struct {
	Success bool   `json:"success"`
	Skipped int64  `json:"skipped"`
	SpedUp  int64  `json:"sped_up"`
	Badge   string `json:"badge"`
}

// ZapResponse is the response for POST /api/v1/zap.
type ZapResponse struct {
	Success bool `json:"success"`

	// FinalURL is the document location after redirects.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the fetched page's HTTP status; zero when HTML was
	// supplied inline.
	StatusCode int `json:"status_code,omitempty"`

	// Content is the cleaned page in the requested format.
	Content string `json:"content"`

	Skipped int64 `json:"skipped"`
	SpedUp  int64 `json:"sped_up"`

	// NeedsBrowser hints that the fetched page renders client-side and a
	// session would see more than the static HTML.
	NeedsBrowser bool `json:"needs_browser,omitempty"`

	TimingMs int64 `json:"timing_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" | "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports session pool utilisation.
type PoolStats struct {
	MaxSessions    int `json:"max_sessions"`
	ActiveSessions int `json:"active_sessions"`
}
