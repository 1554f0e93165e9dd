// Package mcpserver provides an MCP (Model Context Protocol) server that
// lets an LLM inspect converted documents and record review verdicts over
// stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/craftmd/internal/exporter"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/review"
)

// OutputFormatURI is the resource describing the converted Markdown layout.
const OutputFormatURI = "craftmd://output-format"

// ConvertFunc starts a conversion of the configured input.
type ConvertFunc func(ctx context.Context) (*exporter.Summary, error)

// Server wraps the MCP server with review tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *review.Service
	convert ConvertFunc
}

// New creates a new MCP server with all tools registered. convert may be
// nil, in which case no convert tool is offered.
func New(svc *review.Service, convert ConvertFunc) *Server {
	s := &Server{svc: svc, convert: convert}

	s.mcp = server.NewMCPServer(
		"craftmd",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through converted documents."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a converted document with its review status, backlinks and the diagnostics of the latest run."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the output root (e.g. Inbox/Note.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List converted documents, optionally by review status."),
		mcp.WithString("status", mcp.Description("pending, good, bad or manual (empty for all)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("set_review_status",
		mcp.WithDescription("Record a review verdict for a converted document. Documents marked "+
			"manual are listed in the results report with the note. Read the document first and "+
			"pass its checksum so a concurrent re-conversion is detected."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path")),
		mcp.WithString("status", mcp.Required(), mcp.Description("good, bad, manual or pending")),
		mcp.WithString("note", mcp.Description("Why the document needs attention")),
		mcp.WithString("checksum", mcp.Description("Checksum returned by read_document")),
	), s.setReviewStatus)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all documents that link to the given wikilink name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Wikilink name (file name without .md)")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_dangling_links",
		mcp.WithDescription("List wikilinks that resolve to no converted document or daily note."),
	), s.listDanglingLinks)

	s.mcp.AddTool(mcp.NewTool("get_diagnostics",
		mcp.WithDescription("Conversion warnings of the latest run, optionally for one document."),
		mcp.WithString("path", mcp.Description("Document path (empty for all)")),
	), s.getDiagnostics)

	s.mcp.AddTool(mcp.NewTool("get_output_format",
		mcp.WithDescription("Describes how exported notes map onto Markdown files. "+
			"Call this before judging a conversion."),
	), s.getOutputFormat)

	if convert != nil {
		s.mcp.AddTool(mcp.NewTool("convert",
			mcp.WithDescription("Re-run the conversion of the configured export and return the run summary."),
		), s.runConvert)
	}

	s.mcp.AddResource(
		mcp.NewResource(OutputFormatURI, "Output Format",
			mcp.WithResourceDescription("Layout and Markdown conventions of converted documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readOutputFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Get(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return jsonResult(doc)
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.ReviewStatus(req.GetString("status", ""))
	rows, _, err := s.svc.List(ctx, status, 1000, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("%s\t%s", r.Status, r.Path)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) setReviewStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	row, err := s.svc.SetStatus(ctx, path, models.ReviewStatus(status),
		req.GetString("note", ""), req.GetString("checksum", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", row.Path, row.Status)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) listDanglingLinks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	links, err := s.svc.DanglingLinks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no dangling links"), nil
	}
	lines := make([]string, len(links))
	for i, l := range links {
		lines[i] = fmt.Sprintf("%s -> [[%s]]", l.Source, l.Target)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getDiagnostics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	diags, err := s.svc.Diagnostics(ctx, "", req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(diags)
}

func (s *Server) runConvert(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.convert(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sum)
}

func (s *Server) getOutputFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(OutputFormat), nil
}

func (s *Server) readOutputFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      OutputFormatURI,
			MIMEType: "text/markdown",
			Text:     OutputFormat,
		},
	}, nil
}
