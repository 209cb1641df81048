package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBrowserTool_ExtractsTitleAndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Docs</title><script>var x=1;</script></head>
<body><nav>menu</nav><p>Hello world.</p><footer>legal</footer></body></html>`)
	}))
	defer srv.Close()

	b := NewBrowserTool()
	res, err := b.Execute(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if !strings.Contains(res.Output, "Title: Docs") {
		t.Errorf("missing title:\n%s", res.Output)
	}
	if !strings.Contains(res.Output, "Hello world.") {
		t.Errorf("missing body text:\n%s", res.Output)
	}
	for _, skipped := range []string{"var x=1", "menu", "legal"} {
		if strings.Contains(res.Output, skipped) {
			t.Errorf("non-content %q should be skipped:\n%s", skipped, res.Output)
		}
	}
}

func TestBrowserTool_RejectsBadScheme(t *testing.T) {
	b := NewBrowserTool()
	res, _ := b.Execute(context.Background(), json.RawMessage(`{"url":"ftp://example.com"}`))
	if res.Error == "" {
		t.Error("non-http scheme should be rejected")
	}
}

func TestBrowserTool_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	b := NewBrowserTool()
	res, _ := b.Execute(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	if !strings.Contains(res.Error, "HTTP 404") {
		t.Errorf("error = %q, want HTTP 404", res.Error)
	}
}

func TestExtractCharset(t *testing.T) {
	if got := extractCharset("text/html; charset=GBK"); got != "gbk" {
		t.Errorf("extractCharset = %q, want gbk", got)
	}
	if got := extractCharset("text/html"); got != "" {
		t.Errorf("extractCharset = %q, want empty", got)
	}
}
