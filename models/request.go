package models

// OpenSessionRequest is the payload for POST /api/v1/sessions.
type OpenSessionRequest struct {
	// URL is the page to open and watch. Required.
	URL string `json:"url" binding:"required,url"`

	// Stealth injects anti-bot-detection evasions before navigation.
	// Default: true.
	Stealth *bool `json:"stealth,omitempty"`

	// Headers are extra HTTP headers sent with every request of the tab.
	Headers map[string]string `json:"headers,omitempty"`

	// Strategy forces "site" or "generic" instead of choosing by host.
	Strategy string `json:"strategy,omitempty" binding:"omitempty,oneof=site generic"`

	// CDPURL attaches to an already running browser (e.g. the user's own
	// Chrome started with --remote-debugging-port) instead of the
	// managed one.
	CDPURL string `json:"cdp_url,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *OpenSessionRequest) Defaults() {
	if r.Stealth == nil {
		t := true
		r.Stealth = &t
	}
}

// SettingsRequest is the payload for PUT /api/v1/settings.
type SettingsRequest struct {
	// Enabled is the master switch. Required.
	Enabled *bool `json:"enabled" binding:"required"`
}

// ZapRequest is the payload for POST /api/v1/zap.
type ZapRequest struct {
	// URL is fetched when HTML is empty. Also used as the document
	// location.
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// HTML is zapped as-is when present.
	HTML string `json:"html,omitempty"`

	// OutputFormat controls the response body format.
	// Allowed: "html" (default), "markdown".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=html markdown"`

	// Headers are extra HTTP headers for the fetch.
	Headers map[string]string `json:"headers,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ZapRequest) Defaults() {
	if r.OutputFormat == "" {
		r.OutputFormat = "html"
	}
}
