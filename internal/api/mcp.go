package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vidtalk/vidtalk/internal/storage"
	"github.com/vidtalk/vidtalk/internal/timestamp"
	"github.com/vidtalk/vidtalk/internal/transcript"
	"github.com/vidtalk/vidtalk/internal/youtube"
)

// TranscriptCache abstracts the transcript cache for the MCP layer.
type TranscriptCache interface {
	Get(ctx context.Context, videoID string) []transcript.Entry
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store       *storage.Store
	Transcripts TranscriptCache
	Videos      *youtube.Client // optional; if nil, get_video_details returns an error
}

// NewMCPServer creates an MCP server exposing the vidtalk backend to local
// agent hosts.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"vidtalk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("vidtalk — watch-page chat backend for YouTube videos: metadata, transcripts, and saved conversations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_video_details",
			mcp.WithDescription("Look up title, channel, and description for a YouTube video."),
			mcp.WithString("video_id", mcp.Description("YouTube video id"), mcp.Required()),
		),
		mcpVideoDetails(deps),
	)

	s.AddTool(
		mcp.NewTool("get_transcript_snippet",
			mcp.WithDescription("Return the transcript excerpt around a timestamp in a video."),
			mcp.WithString("video_id", mcp.Description("YouTube video id"), mcp.Required()),
			mcp.WithString("timestamp", mcp.Description("Position in the video as MM:SS"), mcp.Required()),
			mcp.WithNumber("window_seconds", mcp.Description("Width of the excerpt window in seconds (default 20)")),
		),
		mcpTranscriptSnippet(deps),
	)

	s.AddTool(
		mcp.NewTool("list_conversations",
			mcp.WithDescription("List a user's saved video conversations, most recently updated first."),
			mcp.WithString("user_id", mcp.Description("User id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpListConversations(deps),
	)

	return s
}

func mcpVideoDetails(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Videos == nil {
			return mcpError("video details not available: no YouTube Data API key configured"), nil
		}

		videoID, err := req.RequireString("video_id")
		if err != nil {
			return mcpError("video_id is required"), nil
		}

		details, err := deps.Videos.VideoDetails(ctx, videoID)
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(details)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal details: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpTranscriptSnippet(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videoID, err := req.RequireString("video_id")
		if err != nil {
			return mcpError("video_id is required"), nil
		}
		ts, err := req.RequireString("timestamp")
		if err != nil {
			return mcpError("timestamp is required"), nil
		}

		if !strings.HasPrefix(ts, "[") {
			ts = "[" + ts + "]"
		}
		tsMs, ok := timestamp.Parse(ts)
		if !ok {
			return mcpError("timestamp must look like MM:SS"), nil
		}

		windowMs := int64(transcript.DefaultSnippetWindowMs)
		if secs := req.GetInt("window_seconds", 0); secs > 0 {
			windowMs = int64(secs) * 1000
		}

		entries := deps.Transcripts.Get(ctx, videoID)
		if entries == nil {
			return mcpError("no transcript available for this video"), nil
		}

		snippet := transcript.Snippet(entries, tsMs, windowMs)
		if snippet == "" {
			return mcpText("(no transcript entries near that timestamp)"), nil
		}
		return mcpText(snippet), nil
	}
}

func mcpListConversations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		convs, err := deps.Store.ListConversations(userID, limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list conversations: %v", err)), nil
		}
		if convs == nil {
			convs = []storage.Conversation{}
		}

		b, err := json.Marshal(convs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal conversations: %v", err)), nil
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
