package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/clauselens/clauselens/internal/jobs"
)

// MCPDeps holds dependencies for the MCP tool server. It reuses the
// HTTP layer's read-side interfaces, so the tools see exactly what the
// REST endpoints see.
type MCPDeps struct {
	Jobs  JobReader
	Query Answerer
}

// NewMCPServer registers the document tools on an MCP server so
// assistants can poll jobs and interrogate analyzed documents directly.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"clauselens",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("clauselens — legal document risk analysis. Upload documents over HTTP, then use these tools to check status, fetch analyses, and ask questions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("document_status",
			mcp.WithDescription("Check the processing status of an uploaded document."),
			mcp.WithString("document_id", mcp.Description("Document id returned by the upload endpoint"), mcp.Required()),
		),
		mcpDocumentStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("get_analysis",
			mcp.WithDescription("Fetch the completed risk analysis for a document as JSON."),
			mcp.WithString("document_id", mcp.Description("Document id returned by the upload endpoint"), mcp.Required()),
		),
		mcpGetAnalysis(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_document",
			mcp.WithDescription("Ask a natural-language question about an analyzed document."),
			mcp.WithString("document_id", mcp.Description("Document id of a completed analysis"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskDocument(deps),
	)

	return s
}

func mcpDocumentStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}

		job, err := deps.Jobs.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError(fmt.Sprintf("unknown document id %q", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("status lookup failed: %v", err)), nil
		}

		payload := map[string]any{
			"document_id":  job.DocumentID,
			"status":       string(job.Status),
			"progress":     job.Progress,
			"current_step": job.CurrentStep,
		}
		if job.ErrorMessage != "" {
			payload["error_message"] = job.ErrorMessage
		}
		return mcpJSON(payload)
	}
}

func mcpGetAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}

		result, err := deps.Jobs.CompletedResult(id)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError(fmt.Sprintf("no completed analysis for document %q", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("analysis lookup failed: %v", err)), nil
		}
		return mcpJSON(result)
	}
}

func mcpAskDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		resp, err := deps.Query.Answer(ctx, id, question)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError(fmt.Sprintf("no completed analysis for document %q", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return mcpJSON(resp)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to encode response: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
