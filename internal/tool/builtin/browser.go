package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/strandworks/strand/internal/tool"
)

const (
	browserTimeout      = 15 * time.Second
	browserMaxBody      = 2 << 20 // 2MB
	browserMaxRunes     = 8000
	browserUserAgent    = "Strand/0.1 (Agent Browser)"
	browserMaxRedirects = 10
)

// browserClient is a dedicated HTTP client with an explicit timeout and
// redirect limit.
var browserClient = &http.Client{
	Timeout: browserTimeout,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= browserMaxRedirects {
			return fmt.Errorf("too many redirects (%d)", browserMaxRedirects)
		}
		return nil
	},
}

// BrowserTool fetches a web page and extracts its title and readable text.
type BrowserTool struct{}

// NewBrowserTool creates a browser tool.
func NewBrowserTool() *BrowserTool { return &BrowserTool{} }

func (t *BrowserTool) Name() string { return "browser" }

func (t *BrowserTool) Description() string {
	return "Fetch a web page and return its title and main text content. " +
		"Use for reading documentation, articles, and reference pages."
}

func (t *BrowserTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "url", Type: "string", Description: "Page URL (must start with http:// or https://)", Required: true},
	)
}

func (t *BrowserTool) Init(_ context.Context) error { return nil }
func (t *BrowserTool) Close() error                 { return nil }

func (t *BrowserTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	url := strings.TrimSpace(a.URL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return tool.ToolResult{Error: "url must start with http:// or https://"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("build request: %v", err)}, nil
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := browserClient.Do(req)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tool.ToolResult{Error: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status)}, nil
	}

	limited := io.LimitReader(resp.Body, browserMaxBody)

	// Transcode to UTF-8 based on the Content-Type charset; fall back to
	// the raw reader when the label is unknown.
	utf8Reader, err := charset.NewReaderLabel(extractCharset(resp.Header.Get("Content-Type")), limited)
	if err != nil {
		utf8Reader = limited
	}

	title, content, err := extractPageText(utf8Reader)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("parse page: %v", err)}, nil
	}

	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "Title: %s\n\n", title)
	}
	if content == "" {
		sb.WriteString("(no readable content found)")
	} else {
		runes := []rune(content)
		if len(runes) > browserMaxRunes {
			content = string(runes[:browserMaxRunes]) + "\n\n...(truncated)"
		}
		sb.WriteString(content)
	}
	return tool.ToolResult{Output: sb.String()}, nil
}

// extractCharset pulls the charset value out of a Content-Type header.
// "text/html; charset=gbk" → "gbk". Empty when absent.
func extractCharset(contentType string) string {
	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(strings.ToLower(part))
		if strings.HasPrefix(part, "charset=") {
			return strings.TrimPrefix(part, "charset=")
		}
	}
	return ""
}

// extractPageText parses HTML and extracts the <title> and body text,
// skipping non-content elements like <script>, <nav> and <footer>.
func extractPageText(r io.Reader) (title, content string, err error) {
	tokenizer := html.NewTokenizer(r)

	skipTags := map[string]bool{
		"script": true, "style": true, "noscript": true,
		"nav": true, "footer": true, "header": true,
		"aside": true, "iframe": true, "svg": true,
	}
	blockTags := map[string]bool{
		"p": true, "div": true, "section": true, "article": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"li": true, "tr": true, "br": true, "pre": true, "blockquote": true,
	}

	var sb strings.Builder
	var inTitle bool
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			err := tokenizer.Err()
			result := collapseBlankLines(strings.TrimSpace(sb.String()))
			if err == io.EOF {
				return title, result, nil
			}
			return title, result, err

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tagName := string(tn)
			if tagName == "title" {
				inTitle = true
			}
			if skipTags[tagName] {
				skipDepth++
			}
			if blockTags[tagName] && sb.Len() > 0 {
				s := sb.String()
				if s[len(s)-1] != '\n' {
					sb.WriteString("\n")
				}
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tagName := string(tn)
			if tagName == "title" {
				inTitle = false
			}
			if skipTags[tagName] && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if inTitle && title == "" {
				title = text
				continue
			}
			if skipDepth == 0 {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
	}
}

var blankLineRe = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankLineRe.ReplaceAllString(s, "\n\n")
}
