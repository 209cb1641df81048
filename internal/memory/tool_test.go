package memory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func newToolWithStore(t *testing.T) *MemoryTool {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewMemoryTool(store)
}

func exec(t *testing.T, mt *MemoryTool, args string) string {
	t.Helper()
	res, err := mt.Execute(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("Execute(%s): %v", args, err)
	}
	return res.String()
}

func TestMemoryTool_StoreRetrieve(t *testing.T) {
	mt := newToolWithStore(t)

	out := exec(t, mt, `{"action":"store","key":"lang","value":"Go","category":"prefs"}`)
	if !strings.Contains(out, "Stored") {
		t.Errorf("store output = %q", out)
	}

	out = exec(t, mt, `{"action":"retrieve","key":"lang"}`)
	if out != "Go" {
		t.Errorf("retrieve = %q", out)
	}

	out = exec(t, mt, `{"action":"retrieve","key":"missing"}`)
	if !strings.Contains(out, "Error:") || !strings.Contains(out, "missing") {
		t.Errorf("missing key = %q", out)
	}
}

func TestMemoryTool_SearchAndList(t *testing.T) {
	mt := newToolWithStore(t)
	exec(t, mt, `{"action":"store","key":"lang","value":"Go","category":"prefs"}`)
	exec(t, mt, `{"action":"store","key":"editor","value":"vim","category":"prefs"}`)
	exec(t, mt, `{"action":"store","key":"project","value":"strand"}`)

	out := exec(t, mt, `{"action":"search","query":"go"}`)
	if !strings.Contains(out, "Found 1 entries") || !strings.Contains(out, "lang") {
		t.Errorf("search = %q", out)
	}

	out = exec(t, mt, `{"action":"list"}`)
	if !strings.Contains(out, "prefs=2") {
		t.Errorf("list = %q", out)
	}
}

func TestMemoryTool_Clear(t *testing.T) {
	mt := newToolWithStore(t)
	exec(t, mt, `{"action":"store","key":"a","value":"1","category":"c1"}`)
	exec(t, mt, `{"action":"store","key":"b","value":"2","category":"c1"}`)

	out := exec(t, mt, `{"action":"clear","category":"c1"}`)
	if !strings.Contains(out, "Cleared 2") {
		t.Errorf("clear = %q", out)
	}
}

func TestMemoryTool_Validation(t *testing.T) {
	mt := newToolWithStore(t)

	cases := []struct{ args, wantErr string }{
		{`{"action":"store","key":"k"}`, "requires key and value"},
		{`{"action":"retrieve"}`, "requires key"},
		{`{"action":"search"}`, "requires query"},
		{`{"action":"frobnicate"}`, "unknown action"},
		{`{bad json`, "invalid arguments"},
	}
	for _, tc := range cases {
		out := exec(t, mt, tc.args)
		if !strings.Contains(out, tc.wantErr) {
			t.Errorf("args %s: got %q, want containing %q", tc.args, out, tc.wantErr)
		}
	}
}
