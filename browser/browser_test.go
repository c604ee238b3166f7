package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/models"
)

func TestNeedsBrowser(t *testing.T) {
	article := "<html><body><article>" + strings.Repeat("Plain server rendered paragraph. ", 40) + "</article></body></html>"

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"server rendered", article, false},
		{"tiny body", `<html><body><p>Loading…</p></body></html>`, true},
		{"empty spa root", strings.Replace(article, "<article>", `<div id="__next"></div><article>`, 1), true},
		{"noscript warning", strings.Replace(article, "<body>", "<body><noscript>You need to enable JavaScript to run this app.</noscript>", 1), true},
		{"script text ignored", `<html><body><script>` + strings.Repeat("var a = 1;", 100) + `</script></body></html>`, true},
		{
			"script heavy thin page",
			"<html><body>" + strings.Repeat("<script src=x.js></script>", 12) + "<p>" + strings.Repeat("word ", 60) + "</p></body></html>",
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsBrowser([]byte(tt.body)); got != tt.want {
				t.Errorf("NeedsBrowser = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVisibleText(t *testing.T) {
	got := visibleText([]byte(`<html><head><title>T</title></head><body><h1>Hello</h1><style>p{}</style><p>world</p></body></html>`))
	if got != "Hello world " {
		t.Errorf("visibleText = %q", got)
	}
}

func TestFetchPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/moved":
			http.Redirect(w, r, "/page", http.StatusFound)
		default:
			fmt.Fprintf(w, "<html><body>ua=%s x=%s</body></html>", r.UserAgent(), r.Header.Get("X-Test"))
		}
	}))
	defer srv.Close()

	f := NewFetcher("", 0)
	res, err := f.Fetch(context.Background(), srv.URL+"/moved", map[string]string{"X-Test": "1"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != http.StatusOK || res.FinalURL != srv.URL+"/page" {
		t.Errorf("result: status=%d final=%q", res.StatusCode, res.FinalURL)
	}
	if body := string(res.Body); !strings.Contains(body, "Chrome/") || !strings.Contains(body, "x=1") {
		t.Errorf("headers not sent: %s", body)
	}

	_, err = f.Fetch(context.Background(), srv.URL+"/missing", nil)
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != models.ErrCodeFetch {
		t.Errorf("404 error: %v", err)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, models.ErrCodeTimeout},
		{fmt.Errorf("wrapped: %w", context.Canceled), models.ErrCodeTimeout},
		{errors.New("net::ERR_NAME_NOT_RESOLVED"), models.ErrCodeNavigation},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err, "nav"); got.Code != tt.want || !errors.Is(got, tt.err) {
			t.Errorf("categorizeError(%v) = %v", tt.err, got)
		}
	}
}

func TestToHeadersMap(t *testing.T) {
	m := toHeadersMap(map[string]string{"Referer": "https://example.com/"})
	if m["Referer"].Str() != "https://example.com/" {
		t.Errorf("headers: %v", m)
	}
}

func TestReserveCountsRegisteredSessionOnce(t *testing.T) {
	m := &Manager{cfg: config.BrowserConfig{MaxSessions: 2}, sessions: make(map[string]*Session)}

	if !m.reserve() {
		t.Fatal("first slot refused")
	}
	m.register(&Session{ID: "a"})
	if !m.reserve() {
		t.Fatal("second slot refused while one session is open")
	}
	if m.reserve() {
		t.Error("reserved beyond MaxSessions")
	}

	m.unreserve()
	m.register(&Session{ID: "r", remote: true})
	if !m.reserve() {
		t.Error("remote session took a pool slot")
	}
}
