package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/gin-gonic/gin"

	"github.com/use-agent/stealthmode/browser"
	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/dom/htmldom"
	"github.com/use-agent/stealthmode/engine"
	"github.com/use-agent/stealthmode/models"
)

// PageFetcher retrieves a page without a browser. *browser.Fetcher
// implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, targetURL string, headers map[string]string) (*browser.FetchResult, error)
}

// Zap returns a handler for POST /api/v1/zap.
//
// Flow:
//  1. Parse & validate request, apply defaults.
//  2. Use the inline HTML, or fetch the URL.
//  3. Run one generic zap pass over an in-memory document.
//  4. Serialize as HTML or convert to Markdown.
func Zap(f PageFetcher, cfg config.EngineConfig) gin.HandlerFunc {
	conv := newMarkdownConverter()

	return func(c *gin.Context) {
		start := time.Now()

		var req models.ZapRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
		if req.URL == "" && req.HTML == "" {
			respondError(c, models.NewAPIError(models.ErrCodeInvalidInput, "one of url or html is required", nil))
			return
		}
		req.Defaults()

		resp := models.ZapResponse{FinalURL: req.URL}
		body := []byte(req.HTML)
		if req.HTML == "" {
			res, err := f.Fetch(c.Request.Context(), req.URL, req.Headers)
			if err != nil {
				respondError(c, err)
				return
			}
			body = res.Body
			resp.FinalURL = res.FinalURL
			resp.StatusCode = res.StatusCode
			resp.NeedsBrowser = browser.NeedsBrowser(body)
		}

		doc, err := htmldom.Parse(bytes.NewReader(body), resp.FinalURL)
		if err != nil {
			respondError(c, models.NewAPIError(models.ErrCodeInvalidInput, "unparseable HTML", err))
			return
		}
		counts := engine.Zap(doc, cfg)

		out, err := doc.HTML()
		if err != nil {
			respondError(c, err)
			return
		}
		if req.OutputFormat == "markdown" {
			out, err = conv.ConvertString(out, converter.WithDomain(domainOf(resp.FinalURL)))
			if err != nil {
				respondError(c, err)
				return
			}
		}

		resp.Success = true
		resp.Content = out
		resp.Skipped = counts.Skipped
		resp.SpedUp = counts.SpedUp
		resp.TimingMs = time.Since(start).Milliseconds()
		c.JSON(http.StatusOK, resp)
	}
}

// newMarkdownConverter creates a reusable, goroutine-safe converter. The
// base plugin drops script, style and iframe noise.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// domainOf returns scheme://host of raw, used to absolutise relative links
// in Markdown output.
func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimSuffix(u.Scheme+"://"+u.Host, "/")
}
