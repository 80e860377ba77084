package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aviary-ai/aviary/internal/retrieval"
	"github.com/aviary-ai/aviary/internal/storage"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, agentID int64, query string, limit int, includeParentDocs, includeChildContext bool) (retrieval.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Retriever MCPRetriever
}

// NewMCPServer creates an MCP server exposing knowledge-base recall and
// document inventory tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"aviary",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("aviary: agent knowledge bases with semantic recall over uploaded documents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Semantically search an agent's knowledge base and return relevant document chunks."),
			mcp.WithNumber("agent_id", mcp.Description("ID of the agent whose documents to search"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the documents uploaded for an agent."),
			mcp.WithNumber("agent_id", mcp.Description("ID of the agent (0 for all agents)")),
		),
		mcpListDocuments(deps),
	)

	return s
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID, err := req.RequireInt("agent_id")
		if err != nil {
			return mcpError("agent_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", retrieval.DefaultLimit)
		if limit <= 0 {
			limit = retrieval.DefaultLimit
		}
		if limit > 50 {
			limit = 50
		}

		agent, err := deps.Store.GetAgent(int64(agentID))
		if err != nil {
			return mcpError(fmt.Sprintf("agent %d not found", agentID)), nil
		}

		res, err := deps.Retriever.Retrieve(ctx, agent.ID, query, limit, agent.ParentID != nil, agent.IsParent)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		if len(res.Chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			DocumentID int64   `json:"document_id"`
			Filename   string  `json:"filename,omitempty"`
			Text       string  `json:"text"`
			Score      float64 `json:"score"`
		}

		results := make([]chunkResult, len(res.Chunks))
		for i, c := range res.Chunks {
			results[i] = chunkResult{
				DocumentID: c.Chunk.DocumentID,
				Text:       c.Chunk.Content,
				Score:      c.Similarity,
			}
			if c.Document != nil {
				results[i].Filename = c.Document.Filename
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID := req.GetInt("agent_id", 0)

		docs, err := deps.Store.ListDocuments(int64(agentID))
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents: %v", err)), nil
		}
		if docs == nil {
			docs = []storage.Document{}
		}

		b, err := json.Marshal(docs)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling documents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
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
