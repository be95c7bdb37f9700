package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tally/internal/config"
	"github.com/hpungsan/tally/internal/errors"
	"github.com/hpungsan/tally/internal/interval"
	"github.com/hpungsan/tally/internal/store"
)

// Handlers holds dependencies for MCP tool handlers. The underlying store is
// reopened whenever the directory watcher reports external changes.
type Handlers struct {
	location string
	cfg      *config.Config

	db    *store.Database
	watch *dirWatcher
}

// NewHandlers creates a Handlers instance rooted at the data directory.
func NewHandlers(location string, cfg *config.Config) (*Handlers, error) {
	db, err := store.Open(location, store.Options{JournalSize: cfg.JournalSize})
	if err != nil {
		return nil, err
	}

	h := &Handlers{location: location, cfg: cfg, db: db}

	// Watching is best-effort: without it every call simply uses the store
	// opened at startup, which is still correct for a single writer.
	if w, werr := newDirWatcher(location); werr == nil {
		h.watch = w
	}
	return h, nil
}

// Close releases the directory watcher.
func (h *Handlers) Close() {
	if h.watch != nil {
		h.watch.Close()
	}
}

// database returns the current store, reopening it when the data directory
// changed underneath the server (a CLI invocation, for example).
func (h *Handlers) database() (*store.Database, error) {
	if h.watch != nil && h.watch.Stale() {
		db, err := store.Open(h.location, store.Options{JournalSize: h.cfg.JournalSize})
		if err != nil {
			return nil, err
		}
		h.db = db
		h.watch.Clear()
	}
	return h.db, nil
}

// Request types for each tool

// AddRequest represents the arguments for interval_add.
type AddRequest struct {
	Start      string   `json:"start"`
	End        string   `json:"end,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Annotation string   `json:"annotation,omitempty"`
}

// DeleteRequest represents the arguments for interval_delete.
type DeleteRequest struct {
	Start string `json:"start,omitempty"`
}

// ModifyRequest represents the arguments for interval_modify.
type ModifyRequest struct {
	Start    string `json:"start,omitempty"`
	NewStart string `json:"new_start,omitempty"`
	NewEnd   string `json:"new_end,omitempty"`
}

// ListRequest represents the arguments for interval_list.
type ListRequest struct {
	Limit int `json:"limit,omitempty"`
}

// intervalDoc is the JSON shape returned for one interval.
type intervalDoc struct {
	Line     string          `json:"line"`
	Interval json.RawMessage `json:"interval"`
}

func docFor(iv interval.Interval) intervalDoc {
	return intervalDoc{Line: iv.Serialize(), Interval: json.RawMessage(iv.ToJSON())}
}

// mcpTimeLayouts lists the datetime shapes tool arguments may use.
var mcpTimeLayouts = []string{
	interval.TimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func parseToolTime(s string) (time.Time, error) {
	for _, layout := range mcpTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.NewInvalidRequest("unrecognized datetime: " + s)
}

// resolveTarget finds the interval a tool call addresses: by start instant
// when given, the most recent otherwise.
func resolveTarget(db *store.Database, start string) (interval.Interval, error) {
	if start != "" {
		at, err := parseToolTime(start)
		if err != nil {
			return interval.Interval{}, err
		}

		var found interval.Interval
		ok := false
		werr := db.Walk(func(line string) bool {
			iv, perr := interval.FromSerialization(line)
			if perr != nil {
				return true
			}
			if iv.Start.Equal(at) {
				found, ok = iv, true
				return false
			}
			return true
		})
		if werr != nil {
			return interval.Interval{}, werr
		}
		if !ok {
			return interval.Interval{}, errors.NewNotFound("no interval starts at " + start)
		}
		return found, nil
	}

	latest, err := db.GetLatestEntry()
	if err != nil {
		return interval.Interval{}, err
	}
	if latest == "" {
		return interval.Interval{}, errors.NewNotFound("the store has no intervals")
	}
	return interval.FromSerialization(latest)
}

// Handler implementations

// HandleAdd handles the interval_add tool call.
func (h *Handlers) HandleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Start == "" {
		return errorResult(errors.NewInvalidRequest("start is required")), nil
	}

	db, err := h.database()
	if err != nil {
		return errorResult(err), nil
	}

	start, err := parseToolTime(input.Start)
	if err != nil {
		return errorResult(err), nil
	}

	iv := interval.NewOpen(start)
	if input.End != "" {
		end, err := parseToolTime(input.End)
		if err != nil {
			return errorResult(err), nil
		}
		iv.End = end
	}
	iv.Tags = input.Tags
	iv.Annotation = input.Annotation

	result, err := db.AddInterval(iv)
	if err != nil {
		return errorResult(err), nil
	}
	if err := db.Commit(); err != nil {
		return errorResult(err), nil
	}

	newTags := make([]string, 0)
	for _, change := range result.TagChanges {
		if change.WasNew {
			newTags = append(newTags, change.Tag)
		}
	}

	return successResult(map[string]any{
		"recorded": docFor(iv),
		"new_tags": newTags,
	})
}

// HandleDelete handles the interval_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	db, err := h.database()
	if err != nil {
		return errorResult(err), nil
	}

	target, err := resolveTarget(db, input.Start)
	if err != nil {
		return errorResult(err), nil
	}

	if err := db.DeleteInterval(target); err != nil {
		return errorResult(err), nil
	}
	if err := db.Commit(); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"deleted": docFor(target)})
}

// HandleModify handles the interval_modify tool call.
func (h *Handlers) HandleModify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ModifyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.NewStart == "" && input.NewEnd == "" {
		return errorResult(errors.NewInvalidRequest("new_start or new_end is required")), nil
	}

	db, err := h.database()
	if err != nil {
		return errorResult(err), nil
	}

	from, err := resolveTarget(db, input.Start)
	if err != nil {
		return errorResult(err), nil
	}

	to := from
	if input.NewStart != "" {
		if to.Start, err = parseToolTime(input.NewStart); err != nil {
			return errorResult(err), nil
		}
	}
	if input.NewEnd != "" {
		if input.NewEnd == "open" {
			to.End = time.Time{}
		} else if to.End, err = parseToolTime(input.NewEnd); err != nil {
			return errorResult(err), nil
		}
	}
	if err := to.Validate(); err != nil {
		return errorResult(err), nil
	}

	if err := db.Journal().StartTransaction(); err != nil {
		return errorResult(err), nil
	}
	_, merr := db.ModifyInterval(from, to)
	err = merr
	if endErr := db.Journal().EndTransaction(); err == nil {
		err = endErr
	}
	if err != nil {
		return errorResult(err), nil
	}
	if err := db.Commit(); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"from": docFor(from),
		"to":   docFor(to),
	})
}

// HandleLatest handles the interval_latest tool call.
func (h *Handlers) HandleLatest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	db, err := h.database()
	if err != nil {
		return errorResult(err), nil
	}

	latest, err := db.GetLatestEntry()
	if err != nil {
		return errorResult(err), nil
	}
	if latest == "" {
		return successResult(map[string]any{"item": nil})
	}

	iv, err := interval.FromSerialization(latest)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"item": docFor(iv)})
}

// HandleList handles the interval_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	db, err := h.database()
	if err != nil {
		return errorResult(err), nil
	}

	items := make([]intervalDoc, 0, limit)
	var parseErr error
	werr := db.Walk(func(line string) bool {
		iv, perr := interval.FromSerialization(line)
		if perr != nil {
			parseErr = perr
			return false
		}
		items = append(items, docFor(iv))
		return len(items) < limit
	})
	if werr == nil {
		werr = parseErr
	}
	if werr != nil {
		return errorResult(werr), nil
	}

	return successResult(map[string]any{"items": items})
}

// HandleTags handles the interval_tags tool call.
func (h *Handlers) HandleTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	db, err := h.database()
	if err != nil {
		return errorResult(err), nil
	}

	counts := make(map[string]uint)
	for _, tag := range db.Tags() {
		count, _ := db.TagCount(tag)
		counts[tag] = count
	}
	return successResult(map[string]any{"tags": counts})
}

// HandleUndo handles the interval_undo tool call.
func (h *Handlers) HandleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	db, err := h.database()
	if err != nil {
		return errorResult(err), nil
	}

	undone, err := db.Undo()
	if err != nil {
		return errorResult(err), nil
	}
	if undone {
		if err := db.Commit(); err != nil {
			return errorResult(err), nil
		}
	}
	return successResult(map[string]any{"undone": undone})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if tErr, ok := err.(*errors.TallyError); ok {
		errorObj := map[string]any{
			"code":    tErr.Code,
			"message": tErr.Message,
		}
		if tErr.Details != nil {
			errorObj["details"] = tErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "IO",
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result carrying JSON data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
