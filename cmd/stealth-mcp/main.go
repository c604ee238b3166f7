package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// errorEnvelope mirrors the stealthd error response.
type errorEnvelope struct {
	Success bool `json:"success"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// sessionInfo mirrors the stealthd session model.
type sessionInfo struct {
	ID                 string `json:"id"`
	URL                string `json:"url"`
	Strategy           string `json:"strategy"`
	Enabled            bool   `json:"enabled"`
	InterventionActive bool   `json:"intervention_active"`
	Passes             int64  `json:"passes"`
	Skipped            int64  `json:"skipped"`
	SpedUp             int64  `json:"sped_up"`
}

type sessionResponse struct {
	errorEnvelope
	Session sessionInfo `json:"session"`
}

type sessionListResponse struct {
	errorEnvelope
	Sessions []sessionInfo `json:"sessions"`
	Total    int           `json:"total"`
}

type statsResponse struct {
	errorEnvelope
	Skipped int64  `json:"skipped"`
	SpedUp  int64  `json:"sped_up"`
	Badge   string `json:"badge"`
}

type settingsResponse struct {
	errorEnvelope
	Enabled bool `json:"enabled"`
}

type zapResponse struct {
	errorEnvelope
	FinalURL     string `json:"final_url"`
	Content      string `json:"content"`
	Skipped      int64  `json:"skipped"`
	SpedUp       int64  `json:"sped_up"`
	NeedsBrowser bool   `json:"needs_browser"`
}

func main() {
	apiURL := os.Getenv("STEALTH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("STEALTH_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "STEALTH_API_KEY is required")
		os.Exit(1)
	}

	c := &client{
		http:   &http.Client{Timeout: 60 * time.Second},
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
	}

	s := server.NewMCPServer(
		"stealthmode",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("watch_page",
		mcp.WithDescription("Open a URL in the controlled browser and keep skipping, muting and fast-forwarding its ads until the session is closed."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page to open"),
		),
		mcp.WithString("strategy",
			mcp.Description("Force 'site' (video platform player handling) or 'generic' (frame and container zapping). Chosen by host when omitted."),
			mcp.Enum("site", "generic"),
		),
	), handleWatchPage(c))

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List watched pages with their per-session counters."),
	), handleListSessions(c))

	s.AddTool(mcp.NewTool("close_session",
		mcp.WithDescription("Stop watching a page and close its tab."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Session id returned by watch_page"),
		),
	), handleCloseSession(c))

	s.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Lifetime number of ads skipped and sped up."),
	), handleGetStats(c))

	s.AddTool(mcp.NewTool("set_enabled",
		mcp.WithDescription("Turn ad intervention on or off for every watched page."),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("true to intervene, false to leave pages alone"),
		),
	), handleSetEnabled(c))

	s.AddTool(mcp.NewTool("zap_page",
		mcp.WithDescription("Fetch a page without a browser, strip ad frames and containers, and return the cleaned page."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page to fetch"),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format: 'markdown' (default) or 'html'"),
			mcp.Enum("markdown", "html"),
		),
	), handleZapPage(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	http   *http.Client
	apiURL string
	apiKey string
}

// do sends a request to the stealthd API and decodes the JSON response
// into out. API-level failures come back as errors carrying the code.
func (c *client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("[%s] %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("API returned HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func formatSession(s sessionInfo) string {
	state := "idle"
	if s.InterventionActive {
		state = "ad playing"
	}
	if !s.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("%s  %s  [%s, %s]  skipped=%d spedUp=%d passes=%d",
		s.ID, s.URL, s.Strategy, state, s.Skipped, s.SpedUp, s.Passes)
}

func handleWatchPage(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		payload := map[string]any{"url": url}
		if strategy := request.GetString("strategy", ""); strategy != "" {
			payload["strategy"] = strategy
		}

		var resp sessionResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", payload, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("watch failed: %v", err)), nil
		}
		return mcp.NewToolResultText("Watching " + formatSession(resp.Session)), nil
	}
}

func handleListSessions(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var resp sessionListResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		if resp.Total == 0 {
			return mcp.NewToolResultText("No watched pages."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d watched page(s):\n\n", resp.Total)
		for _, s := range resp.Sessions {
			sb.WriteString(formatSession(s))
			sb.WriteByte('\n')
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleCloseSession(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		var resp sessionResponse
		if err := c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+id, nil, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("close failed: %v", err)), nil
		}
		return mcp.NewToolResultText("Closed " + formatSession(resp.Session)), nil
	}
}

func handleGetStats(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var resp statsResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Ads skipped: %d\nAds sped up: %d\nBadge: %q",
			resp.Skipped, resp.SpedUp, resp.Badge)), nil
	}
}

func handleSetEnabled(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		enabled, err := request.RequireBool("enabled")
		if err != nil {
			return mcp.NewToolResultError("enabled is required"), nil
		}
		var resp settingsResponse
		if err := c.do(ctx, http.MethodPut, "/api/v1/settings", map[string]bool{"enabled": enabled}, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("update failed: %v", err)), nil
		}
		if resp.Enabled {
			return mcp.NewToolResultText("Ad intervention enabled."), nil
		}
		return mcp.NewToolResultText("Ad intervention disabled."), nil
	}
}

func handleZapPage(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		payload := map[string]string{
			"url":           url,
			"output_format": request.GetString("output_format", "markdown"),
		}

		var resp zapResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/zap", payload, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("zap failed: %v", err)), nil
		}

		result := fmt.Sprintf("Source: %s\nRemoved ads: %d\n", resp.FinalURL, resp.Skipped)
		if resp.NeedsBrowser {
			result += "Note: this page renders client-side; use watch_page to see it as a browser does.\n"
		}
		result += "\n" + resp.Content
		return mcp.NewToolResultText(result), nil
	}
}
