// Package mcpserver exposes the arrangement tools over the Model Context
// Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	neturl "net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Conceptual-Machines/magda-timeline-go/agents/arrangement"
	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

const (
	serverName    = "magda-timeline"
	serverVersion = "0.1.0"
	toolSource    = "mcp"

	// ToolListClips returns the current clips of the arrangement
	ToolListClips = "list_clips"
)

// Options configures the MCP server
type Options struct {
	// Tracks are the tracks list_clips describes
	Tracks []host.TrackID
	// AfterEdit runs after every tool call that may have changed the
	// arrangement, e.g. to save it. Its error is reported to the client.
	AfterEdit func() error
}

// New creates an MCP server serving the toolbox's tools
func New(tb *arrangement.Toolbox, opts Options) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions(tb)),
	)

	for _, def := range arrangement.ToolDefinitions() {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			log.Printf("❌ Skipping tool %s: %v", def.Name, err)
			continue
		}
		s.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), EditHandler(tb, def.Name, opts.AfterEdit))
	}

	s.AddTool(mcp.NewTool(ToolListClips,
		mcp.WithDescription("List the clips of the arrangement with ids, positions and lengths."),
	), ListHandler(tb, opts.Tracks))

	log.Printf("🛠️  MCP server ready with %d tools", len(arrangement.ToolDefinitions())+1)
	return s
}

func instructions(tb *arrangement.Toolbox) string {
	return fmt.Sprintf(`Arrangement timeline editor (time signature %s).
Call list_clips first to get clip ids. Positions use bar|beat ("1|1" is the start of the song),
durations use bars:beats ("2:0" is two bars). Every edit replaces the clips it touches with new
ids, so list the clips again before editing the same region twice.`, tb.Engine().Settings().TimeSignature)
}

// EditHandler runs one arrangement tool. Tool failures are returned as
// error results so the client sees the message.
func EditHandler(tb *arrangement.Toolbox, name string, afterEdit func() error) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		result, err := tb.Execute(ctx, toolSource, name, args)
		if result != nil && afterEdit != nil {
			if saveErr := afterEdit(); saveErr != nil {
				return mcp.NewToolResultError(fmt.Sprintf("edit applied but not saved: %v", saveErr)), nil
			}
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

// ListHandler describes the clips on tracks
func ListHandler(tb *arrangement.Toolbox, tracks []host.TrackID) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clips, err := tb.Engine().ListClips(ctx, tracks)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := json.MarshalIndent(clips, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

// Serve runs s over stdio, or over SSE when url is set. The SSE server
// listens on the url's host and advertises the url as its base.
func Serve(s *server.MCPServer, url string) error {
	if url == "" {
		return server.ServeStdio(s)
	}
	addr, err := listenAddr(url)
	if err != nil {
		return err
	}
	log.Printf("🌐 MCP server listening on %s (SSE)", addr)
	return server.NewSSEServer(s, server.WithBaseURL(url)).Start(addr)
}

// listenAddr turns an MCP server url into a host:port to listen on.
func listenAddr(raw string) (string, error) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid MCP server url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid MCP server url %q: no host", raw)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	if u.Scheme == "https" {
		return u.Host + ":443", nil
	}
	return u.Host + ":80", nil
}
