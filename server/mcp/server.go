package mcp

import (
	"context"
	"encoding/json"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	mymem "github.com/maxfong/my-mem-mcp"
	"github.com/maxfong/my-mem-mcp/memory_store/providers/persister"
)

// Server exposes the memory service as MCP tools. It is deliberately thin:
// argument decoding, call recording, and result encoding live here; every
// rule about users, validation, and records lives in the service.
type Server struct {
	service *mymem.Service
	options Options
	mcp     *mcpserver.MCPServer
}

func NewServer(service *mymem.Service, opts ...Option) *Server {
	options := NewOptions(opts...)

	s := &Server{
		service: service,
		options: options,
	}

	s.mcp = mcpserver.NewMCPServer(
		options.Name,
		options.Version,
		mcpserver.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// ServeStdio blocks, speaking MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcp)
}

// ServeSSE blocks, speaking MCP over server-sent events on address.
func (s *Server) ServeSSE(address string) error {
	return mcpserver.NewSSEServer(s.mcp).Start(address)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcpgo.NewTool(
			"add_message",
			mcpgo.WithDescription("Store a question/answer pair in the user's semantic memory"),
			mcpgo.WithString("question", mcpgo.Required(), mcpgo.Description("The question text")),
			mcpgo.WithString("answer", mcpgo.Required(), mcpgo.Description("The answer text")),
			mcpgo.WithString("user_id", mcpgo.Description("Owner of the memory; omitted when the server is bound to a user")),
		),
		s.handleAdd,
	)

	s.mcp.AddTool(
		mcpgo.NewTool(
			"search_message",
			mcpgo.WithDescription("Search the user's memories by semantic similarity"),
			mcpgo.WithString("query", mcpgo.Required(), mcpgo.Description("Free-text search query")),
			mcpgo.WithNumber("limit", mcpgo.Description("Maximum results (default 5)")),
			mcpgo.WithString("user_id", mcpgo.Description("Owner of the memories; omitted when the server is bound to a user")),
		),
		s.handleSearch,
	)

	s.mcp.AddTool(
		mcpgo.NewTool(
			"delete_message",
			mcpgo.WithDescription("Delete one memory by id"),
			mcpgo.WithString("id", mcpgo.Required(), mcpgo.Description("Id of the memory to delete")),
			mcpgo.WithString("user_id", mcpgo.Description("Owner of the memory; omitted when the server is bound to a user")),
		),
		s.handleDelete,
	)
}

func (s *Server) handleAdd(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	start := time.Now()

	req := mymem.AddMessageRequest{
		UserId:   request.GetString("user_id", ""),
		Question: request.GetString("question", ""),
		Answer:   request.GetString("answer", ""),
	}

	rec, err := s.service.AddMessage(ctx, req)
	if err != nil {
		s.record(ctx, "add_message", req, nil, err, start)
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	view := persister.ViewOf(rec)
	s.record(ctx, "add_message", req, view, err, start)

	return s.result(view)
}

func (s *Server) handleSearch(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	start := time.Now()

	req := mymem.SearchMessageRequest{
		UserId: request.GetString("user_id", ""),
		Query:  request.GetString("query", ""),
		Limit:  request.GetInt("limit", 0),
	}

	results, err := s.service.SearchMessages(ctx, req)

	s.record(ctx, "search_message", req, results, err, start)

	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	return s.result(map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleDelete(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	start := time.Now()

	req := mymem.DeleteMessageRequest{
		UserId: request.GetString("user_id", ""),
		Id:     request.GetString("id", ""),
	}

	deleted, err := s.service.DeleteMessage(ctx, req)

	s.record(ctx, "delete_message", req, deleted, err, start)

	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	return s.result(map[string]any{
		"deleted": deleted,
		"id":      req.Id,
	})
}

func (s *Server) record(ctx context.Context, method string, req any, rsp any, err error, start time.Time) {
	s.options.Recorder.Record(ctx, CallRecord{
		Method:   method,
		Request:  req,
		Response: rsp,
		Err:      err,
		Duration: time.Since(start),
		Success:  err == nil,
	})
}

func (s *Server) result(payload any) (*mcpgo.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}
