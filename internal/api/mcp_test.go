package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/clauselens/clauselens/internal/analysis"
	"github.com/clauselens/clauselens/internal/jobs"
	"github.com/clauselens/clauselens/internal/query"
)

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", result.Content[0])
	}
	return tc.Text
}

func TestMCPDocumentStatus(t *testing.T) {
	deps := MCPDeps{
		Jobs: &mockJobReader{
			getFn: func(documentID string) (jobs.Job, error) {
				if documentID != "doc-1" {
					return jobs.Job{}, jobs.ErrNotFound
				}
				return jobs.Job{DocumentID: "doc-1", Status: jobs.StatusProcessing, Progress: 80, CurrentStep: "Assessing risk levels"}, nil
			},
		},
		Query: &mockAnswerer{},
	}
	handler := mcpDocumentStatus(deps)

	result, err := handler(context.Background(), makeCallToolRequest("document_status", map[string]interface{}{
		"document_id": "doc-1",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &payload); err != nil {
		t.Fatalf("parsing payload: %v", err)
	}
	if payload["status"] != "processing" || payload["progress"] != float64(80) {
		t.Errorf("payload = %v", payload)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("document_status", map[string]interface{}{
		"document_id": "unknown",
	}))
	if !result.IsError {
		t.Error("unknown id must be a tool error")
	}
}

func TestMCPGetAnalysis(t *testing.T) {
	deps := MCPDeps{
		Jobs: &mockJobReader{
			resultFn: func(documentID string) (*analysis.Result, error) {
				return &analysis.Result{
					DocumentID:       documentID,
					DocumentType:     analysis.TypeTermsOfService,
					OverallRiskScore: 4.2,
					RiskCategories:   []analysis.RiskCategory{},
					KeyClauses:       []analysis.Clause{},
					RedFlags:         []string{},
					Recommendations:  []string{},
				}, nil
			},
		},
		Query: &mockAnswerer{},
	}
	handler := mcpGetAnalysis(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_analysis", map[string]interface{}{
		"document_id": "doc-1",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got analysis.Result
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if got.OverallRiskScore != 4.2 {
		t.Errorf("result = %+v", got)
	}
}

func TestMCPAskDocument(t *testing.T) {
	deps := MCPDeps{
		Jobs: &mockJobReader{},
		Query: &mockAnswerer{
			answerFn: func(ctx context.Context, documentID, question string) (*query.Response, error) {
				return &query.Response{Answer: "Yes, with thirty days notice.", Confidence: 0.9,
					RelevantClauses: []string{}, Sources: []string{}}, nil
			},
		},
	}
	handler := mcpAskDocument(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask_document", map[string]interface{}{
		"document_id": "doc-1",
		"question":    "can I terminate early?",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var resp query.Response
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp.Answer == "" || resp.Confidence != 0.9 {
		t.Errorf("response = %+v", resp)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("ask_document", map[string]interface{}{
		"document_id": "doc-1",
	}))
	if !result.IsError {
		t.Error("missing question must be a tool error")
	}
}
