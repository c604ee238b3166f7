package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/html"

	"github.com/use-agent/stealthmode/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const maxBodyBytes = 10 * 1024 * 1024

// FetchResult is a page retrieved without a browser.
type FetchResult struct {
	Body       []byte
	StatusCode int
	FinalURL   string
}

// Fetcher performs HTTP requests with a Chrome TLS fingerprint (utls).
// It is safe for concurrent use.
type Fetcher struct {
	proxy   string
	timeout time.Duration
}

// NewFetcher creates a fetcher. A zero timeout means no limit beyond the
// caller's context.
func NewFetcher(proxy string, timeout time.Duration) *Fetcher {
	return &Fetcher{proxy: proxy, timeout: timeout}
}

// Fetch retrieves targetURL. Responses with status >= 400 are errors.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, headers map[string]string) (*FetchResult, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	proxy := f.proxy
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, proxy)
		},
	}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{Transport: transport}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, models.NewAPIError(models.ErrCodeInvalidInput, "invalid fetch URL", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, models.NewAPIError(models.ErrCodeFetch, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, models.NewAPIError(models.ErrCodeFetch,
			fmt.Sprintf("HTTP %d for %s", resp.StatusCode, targetURL), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, models.NewAPIError(models.ErrCodeFetch, "read body", err)
	}

	return &FetchResult{
		Body:       body,
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint.
func dialTLSChrome(ctx context.Context, network, addr, proxy string) (net.Conn, error) {
	var rawConn net.Conn
	dialer := &net.Dialer{}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil && (proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h") {
			conn, err := dialer.DialContext(ctx, "tcp", proxyURL.Host)
			if err != nil {
				return nil, fmt.Errorf("socks5 dial: %w", err)
			}
			rawConn = conn
		}
	}

	if rawConn == nil {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		rawConn = conn
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

var (
	reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)
	emptyRoots = []string{`<div id="root"></div>`, `<div id="app"></div>`, `<div id="__next"></div>`}
)

// NeedsBrowser reports whether fetched HTML most likely renders its content
// client-side (SPA shell, heavy JS dependency, noscript warnings), in which
// case a live session sees ads the static document does not.
func NeedsBrowser(body []byte) bool {
	text := visibleText(body)
	if len(text) < 200 {
		return true
	}

	lower := strings.ToLower(string(body))
	for _, root := range emptyRoots {
		if strings.Contains(lower, root) {
			return true
		}
	}
	if reNoscript.MatchString(lower) {
		return true
	}
	return strings.Count(lower, "<script") > 10 && len(text) < 500
}

// visibleText extracts the text inside <body>, skipping script, style and
// noscript content.
func visibleText(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := z.TagName()
			switch string(tn) {
			case "body":
				inBody = true
			case "script", "style", "noscript":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := z.TagName()
			switch string(tn) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				if t := strings.TrimSpace(string(z.Text())); t != "" {
					buf.WriteString(t)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
