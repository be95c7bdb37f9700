package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/tally/internal/config"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"interval_add": {
		def:     addToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAdd },
	},
	"interval_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"interval_modify": {
		def:     modifyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleModify },
	},
	"interval_latest": {
		def:     latestToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLatest },
	},
	"interval_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"interval_tags": {
		def:     tagsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTags },
	},
	"interval_undo": {
		def:     undoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUndo },
	},
}

// Tool definitions

var addToolDef = mcp.NewTool("interval_add",
	mcp.WithDescription("Record a time interval. Omit end for an open (still running) interval."),
	mcp.WithString("start", mcp.Required(), mcp.Description("Start instant, e.g. 2016-06-03T01:00:00Z")),
	mcp.WithString("end", mcp.Description("End instant; omit to leave the interval open")),
	mcp.WithArray("tags", mcp.Description("Tags to attach"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithString("annotation", mcp.Description("Free-form note")),
)

var deleteToolDef = mcp.NewTool("interval_delete",
	mcp.WithDescription("Delete the interval starting at the given instant, or the most recent one."),
	mcp.WithString("start", mcp.Description("Start instant of the interval to delete; omit for the most recent")),
)

var modifyToolDef = mcp.NewTool("interval_modify",
	mcp.WithDescription("Change the start or end of an interval. The change is undone as one unit."),
	mcp.WithString("start", mcp.Description("Start instant of the target interval; omit for the most recent")),
	mcp.WithString("new_start", mcp.Description("Replacement start instant")),
	mcp.WithString("new_end", mcp.Description("Replacement end instant; \"open\" clears the end")),
)

var latestToolDef = mcp.NewTool("interval_latest",
	mcp.WithDescription("Return the most recent interval."),
)

var listToolDef = mcp.NewTool("interval_list",
	mcp.WithDescription("List intervals, most recent first."),
	mcp.WithNumber("limit", mcp.Description("Maximum number of intervals to return (default 50)")),
)

var tagsToolDef = mcp.NewTool("interval_tags",
	mcp.WithDescription("List known tags with their usage counts."),
)

var undoToolDef = mcp.NewTool("interval_undo",
	mcp.WithDescription("Revert the most recent change."),
)

// NewServer creates a new MCP server with tally tools registered. The
// handlers reopen the store whenever the data directory changes underneath
// them, so a long-running server coexists with CLI invocations.
func NewServer(location string, cfg *config.Config, version string) (*server.MCPServer, *Handlers, error) {
	s := server.NewMCPServer(
		"tally",
		version,
		server.WithToolCapabilities(true),
	)

	h, err := NewHandlers(location, cfg)
	if err != nil {
		return nil, nil, err
	}

	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}

	return s, h, nil
}

// Run starts the MCP server using stdio transport.
func Run(location string, cfg *config.Config, version string) error {
	s, h, err := NewServer(location, cfg, version)
	if err != nil {
		return err
	}
	defer h.Close()
	return server.ServeStdio(s)
}
