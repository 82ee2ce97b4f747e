// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes vault tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/noteapi/internal/attachment"
	"github.com/starford/noteapi/internal/noteservice"
	"github.com/starford/noteapi/internal/parser"
	"github.com/starford/noteapi/internal/vaultpath"
)

// NoteFormatURI is the resource URI of the note format contract.
const NoteFormatURI = "noteapi://note-format"

// Server wraps the MCP server with vault tools.
type Server struct {
	mcp         *server.MCPServer
	svc         *noteservice.Service
	attachments *attachment.Store
	logger      *slog.Logger
	fetcher     fetcher
}

// New creates a new MCP server with all vault tools registered. attachments
// may be nil, which leaves out upload_asset.
func New(svc *noteservice.Service, attachments *attachment.Store, logger *slog.Logger) *Server {
	s := &Server{svc: svc, attachments: attachments, logger: logger, fetcher: httpFetcher{}}

	s.mcp = server.NewMCPServer(
		"noteapi",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum hits, 1-%d (default %d)", noteservice.MaxSearchLimit, noteservice.DefaultSearchLimit))),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note, or one of its sections."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
		mcp.WithString("section", mcp.Description("Optional heading whose section to return")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new Markdown note at the specified path. "+
			"Content MUST follow the canonical note format (YAML frontmatter with title, "+
			"optional tags, Markdown body with [[wikilinks]]). Read the contract first via "+
			"the get_note_contract tool or the "+NoteFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new note (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the note format contract")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the canonical note format contract. "+
			"Call this before creating or updating notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes or notes in a specific folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for (.md may be omitted)")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Rebuild the search index from every note in the vault."),
	), s.reindex)

	if attachments != nil {
		s.mcp.AddTool(mcp.NewTool("upload_asset",
			mcp.WithDescription("Save an image or PDF into the vault attachments folder from an http(s) URL or a base64 data: URI. "+
				"Returns a markdownImage snippet to paste into a note."),
			mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI of the asset")),
			mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when empty")),
		), s.uploadAsset)
	}

	s.mcp.AddResource(
		mcp.NewResource(NoteFormatURI, "Note Format Contract",
			mcp.WithResourceDescription("Canonical Markdown note format that all notes must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return toolError(err), nil
	}
	limit := int(req.GetFloat("limit", noteservice.DefaultSearchLimit))

	hits, err := s.svc.Search(ctx, query, limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(hits), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return toolError(err), nil
	}
	section := req.GetString("section", "")

	n, err := s.svc.Get(ctx, path, noteservice.GetOptions{Section: section})
	if err != nil {
		return toolError(err), nil
	}
	if section != "" {
		return mcp.NewToolResultText(n.Body), nil
	}
	return mcp.NewToolResultText(string(n.Raw)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return toolError(err), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return toolError(err), nil
	}

	fm, body := parser.Split([]byte(content))
	n, err := s.svc.Create(ctx, path, fm, body)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.Path)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.svc.List(ctx, req.GetString("folder", ""))
	if err != nil {
		return toolError(err), nil
	}

	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getNoteContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NoteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return toolError(err), nil
	}
	if !vaultpath.IsMarkdown(path) {
		path += ".md"
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) reindex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Reindex(ctx)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("indexed: %d", res.Indexed)), nil
}
