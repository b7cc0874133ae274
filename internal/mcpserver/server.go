// Package mcpserver exposes session search and question answering as MCP
// tools over streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/middleware"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/service"
	"github.com/edulive/session-knowledge/internal/util"
)

const maxSearchResults = 20

// SessionKnowledge is the question service surface the tools call.
type SessionKnowledge interface {
	Search(ctx context.Context, user *model.User, sessionID, query string, topK int) ([]model.ScoredChunk, error)
	Ask(ctx context.Context, user *model.User, sessionID string, params service.AskParams) (*model.Answer, error)
}

func New(knowledge SessionKnowledge, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"session-knowledge",
		version,
		server.WithToolCapabilities(false),
		server.WithInstructions("Search and ask questions about recorded live sessions the caller can access."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_session",
			mcp.WithDescription("Return transcript excerpts of a session ranked by similarity to the query."),
			mcp.WithString("session_id", mcp.Description("Session UUID"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search text"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of excerpts (default from server config)")),
		),
		searchSession(knowledge),
	)

	s.AddTool(
		mcp.NewTool("ask_session",
			mcp.WithDescription("Answer a question using the session's transcript as context."),
			mcp.WithString("session_id", mcp.Description("Session UUID"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		askSession(knowledge),
	)

	return s
}

// Handler serves the MCP server over streamable HTTP. The authenticated user
// placed on the request by AuthMiddleware is carried into tool calls.
func Handler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if user := middleware.GetUser(r.Context()); user != nil {
				return middleware.WithUser(ctx, user)
			}
			return ctx
		}),
	)
}

func searchSession(knowledge SessionKnowledge) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, invalid := sessionIDArg(req)
		if invalid != nil {
			return invalid, nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return toolError("query is required"), nil
		}

		limit := req.GetInt("limit", 0)
		if limit > maxSearchResults {
			limit = maxSearchResults
		}

		chunks, err := knowledge.Search(ctx, middleware.GetUser(ctx), sessionID, query, limit)
		if err != nil {
			return toolError(describe(err)), nil
		}

		type excerpt struct {
			ChunkIndex int     `json:"chunk_index"`
			Content    string  `json:"content"`
			Similarity float64 `json:"similarity"`
		}
		results := make([]excerpt, len(chunks))
		for i, c := range chunks {
			results[i] = excerpt{ChunkIndex: c.ChunkIndex, Content: c.Content, Similarity: c.Similarity}
		}
		return toolJSON(results)
	}
}

func askSession(knowledge SessionKnowledge) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, invalid := sessionIDArg(req)
		if invalid != nil {
			return invalid, nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return toolError("question is required"), nil
		}

		answer, err := knowledge.Ask(ctx, middleware.GetUser(ctx), sessionID, service.AskParams{Question: question})
		if err != nil {
			return toolError(describe(err)), nil
		}
		return toolJSON(answer)
	}
}

// describe keeps internal causes out of tool output.
// sessionIDArg returns the session_id argument, or a tool error when it is
// missing or not a UUID.
func sessionIDArg(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return "", toolError("session_id is required")
	}
	if !util.IsValidUUID(sessionID) {
		return "", toolError(describe(apperrors.InvalidInput("session_id", "must be a UUID")))
	}
	return sessionID, nil
}

func describe(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return fmt.Sprintf("%s: %s", appErr.Code, appErr.Message)
	}
	return "internal error"
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return toolText(string(b)), nil
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
