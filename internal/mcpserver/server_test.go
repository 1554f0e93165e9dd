package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/craftmd/internal/checksum"
	"github.com/starford/craftmd/internal/diag"
	"github.com/starford/craftmd/internal/exporter"
	"github.com/starford/craftmd/internal/index"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/review"
	"github.com/starford/craftmd/internal/testutil"
)

func testServer(t *testing.T, convert ConvertFunc) (*Server, *index.DB) {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)

	docs := []struct{ path, name, content string }{
		{"Work/Plan.md", "Plan", "see [[Notes]] and [[Nowhere]]\n"},
		{"Inbox/Notes.md", "Notes", "hello world\n"},
	}
	for _, d := range docs {
		if err := store.Write(d.path, []byte(d.content)); err != nil {
			t.Fatal(err)
		}
		var links []string
		if d.name == "Plan" {
			links = []string{"Notes", "Nowhere"}
		}
		if _, err := db.UpsertDocument(index.DocumentRow{
			Path: d.path, DocumentID: d.name, Name: d.name, Title: d.name, Checksum: checksum.SumString(d.content),
		}, d.content, links); err != nil {
			t.Fatal(err)
		}
	}
	return New(review.NewService(store, db), convert), db
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" helper, so the handlers are called
	// directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"search_documents":    srv.searchDocuments,
		"read_document":       srv.readDocument,
		"list_documents":      srv.listDocuments,
		"set_review_status":   srv.setReviewStatus,
		"get_backlinks":       srv.getBacklinks,
		"list_dangling_links": srv.listDanglingLinks,
		"get_diagnostics":     srv.getDiagnostics,
		"get_output_format":   srv.getOutputFormat,
		"convert":             srv.runConvert,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestReadDocument(t *testing.T) {
	srv, _ := testServer(t, nil)

	r := callTool(t, srv, "read_document", map[string]any{"path": "Inbox/Notes.md"})
	if r.IsError {
		t.Fatalf("read_document: %s", resultText(r))
	}
	var doc review.DocumentDetail
	if err := json.Unmarshal([]byte(resultText(r)), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Content != "hello world\n" || doc.Status != models.StatusPending {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Backlinks) != 1 || doc.Backlinks[0] != "Work/Plan.md" {
		t.Errorf("backlinks = %v", doc.Backlinks)
	}

	if r := callTool(t, srv, "read_document", map[string]any{"path": "nope.md"}); !r.IsError {
		t.Error("expected error for missing document")
	}
}

func TestListAndReview(t *testing.T) {
	srv, db := testServer(t, nil)

	r := callTool(t, srv, "set_review_status", map[string]any{
		"path": "Work/Plan.md", "status": "manual", "note": "dangling link",
		"checksum": checksum.SumString("see [[Notes]] and [[Nowhere]]\n"),
	})
	if got := resultText(r); got != "Work/Plan.md: manual" {
		t.Errorf("set_review_status = %q", got)
	}
	row, _ := db.GetDocument("Work/Plan.md")
	if row.Note != "dangling link" {
		t.Errorf("note = %q", row.Note)
	}

	r = callTool(t, srv, "list_documents", map[string]any{"status": "manual"})
	if got := resultText(r); got != "manual\tWork/Plan.md" {
		t.Errorf("list_documents = %q", got)
	}
	r = callTool(t, srv, "list_documents", map[string]any{})
	if got := resultText(r); got != "pending\tInbox/Notes.md\nmanual\tWork/Plan.md" {
		t.Errorf("list_documents all = %q", got)
	}

	for _, args := range []map[string]any{
		{"path": "Work/Plan.md", "status": "excellent"},
		{"path": "Work/Plan.md", "status": "good", "checksum": "stale"},
		{"path": "Work/Plan.md"},
	} {
		if r := callTool(t, srv, "set_review_status", args); !r.IsError {
			t.Errorf("args %v: expected error", args)
		}
	}
}

func TestSearchDocuments(t *testing.T) {
	srv, _ := testServer(t, nil)
	r := callTool(t, srv, "search_documents", map[string]any{"query": "hello"})
	var results []index.SearchResult
	if err := json.Unmarshal([]byte(resultText(r)), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != "Inbox/Notes.md" {
		t.Errorf("results = %+v", results)
	}
}

func TestLinks(t *testing.T) {
	srv, _ := testServer(t, nil)

	if got := resultText(callTool(t, srv, "get_backlinks", map[string]any{"name": "Notes"})); got != "Work/Plan.md" {
		t.Errorf("backlinks = %q, want Work/Plan.md", got)
	}
	if got := resultText(callTool(t, srv, "get_backlinks", map[string]any{"name": "Plan"})); got != "no backlinks found" {
		t.Errorf("backlinks = %q", got)
	}
	if got := resultText(callTool(t, srv, "list_dangling_links", nil)); got != "Work/Plan.md -> [[Nowhere]]" {
		t.Errorf("dangling = %q", got)
	}
}

func TestGetDiagnostics(t *testing.T) {
	srv, db := testServer(t, nil)

	if r := callTool(t, srv, "get_diagnostics", nil); !r.IsError {
		t.Error("expected error without any run")
	}

	_ = db.StartRun(index.Run{ID: "r1"})
	_ = db.FinishRun(index.Run{ID: "r1"}, map[string][]diag.Diagnostic{"Work/Plan.md": {{Message: "skipping table"}}})

	r := callTool(t, srv, "get_diagnostics", map[string]any{"path": "Work/Plan.md"})
	var rows []index.DiagnosticRow
	if err := json.Unmarshal([]byte(resultText(r)), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Message != "skipping table" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestConvertTool(t *testing.T) {
	srv, _ := testServer(t, func(context.Context) (*exporter.Summary, error) {
		return &exporter.Summary{RunID: "r7", Documents: 2}, nil
	})
	r := callTool(t, srv, "convert", nil)
	if !strings.Contains(resultText(r), `"run_id": "r7"`) {
		t.Errorf("convert = %q", resultText(r))
	}
}

func TestOutputFormat(t *testing.T) {
	srv, _ := testServer(t, nil)
	if got := resultText(callTool(t, srv, "get_output_format", nil)); got != OutputFormat {
		t.Error("output format tool should return the format document")
	}
	contents, err := srv.readOutputFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != OutputFormatURI {
		t.Errorf("resource = %+v", contents)
	}
}
