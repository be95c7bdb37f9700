package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tally/internal/config"
	"github.com/hpungsan/tally/internal/interval"
	"github.com/hpungsan/tally/internal/store"
)

// testSetup creates handlers over a temporary store.
func testSetup(t *testing.T) *Handlers {
	t.Helper()

	cfg := config.DefaultConfig()
	h, err := NewHandlers(t.TempDir(), cfg)
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultPayload decodes the JSON text content of a tool result.
func resultPayload(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()

	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "tool results carry text content")

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestHandleAdd(t *testing.T) {
	h := testSetup(t)

	res, err := h.HandleAdd(context.Background(), makeRequest(map[string]any{
		"start": "2016-06-03T01:00:00Z",
		"end":   "2016-06-03T02:00:00Z",
		"tags":  []any{"work"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultPayload(t, res)
	newTags, ok := payload["new_tags"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"work"}, newTags)

	latest, err := h.db.GetLatestEntry()
	require.NoError(t, err)
	assert.Equal(t, "inc 20160603T010000Z - 20160603T020000Z # work", latest)
}

func TestHandleAdd_RequiresStart(t *testing.T) {
	h := testSetup(t)

	res, err := h.HandleAdd(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	payload := resultPayload(t, res)
	errorObj, ok := payload["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "INVALID_REQUEST", errorObj["code"])
}

func TestHandleAdd_OpenInterval(t *testing.T) {
	h := testSetup(t)

	res, err := h.HandleAdd(context.Background(), makeRequest(map[string]any{
		"start": "2016-06-03T01:00:00Z",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	latest, err := h.db.GetLatestEntry()
	require.NoError(t, err)
	iv, err := interval.FromSerialization(latest)
	require.NoError(t, err)
	assert.True(t, iv.IsOpen())
}

func TestHandleDelete_MostRecent(t *testing.T) {
	h := testSetup(t)

	_, err := h.HandleAdd(context.Background(), makeRequest(map[string]any{
		"start": "2016-06-03T01:00:00Z",
		"end":   "2016-06-03T02:00:00Z",
	}))
	require.NoError(t, err)

	res, err := h.HandleDelete(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.True(t, h.db.Empty())
}

func TestHandleDelete_EmptyStore(t *testing.T) {
	h := testSetup(t)

	res, err := h.HandleDelete(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	payload := resultPayload(t, res)
	errorObj := payload["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errorObj["code"])
}

func TestHandleModify_UndoneAsOneUnit(t *testing.T) {
	h := testSetup(t)

	_, err := h.HandleAdd(context.Background(), makeRequest(map[string]any{
		"start": "2016-06-03T01:00:00Z",
		"end":   "2016-06-03T02:00:00Z",
	}))
	require.NoError(t, err)

	res, err := h.HandleModify(context.Background(), makeRequest(map[string]any{
		"start":     "2016-06-03T01:00:00Z",
		"new_start": "2016-07-03T01:00:00Z",
		"new_end":   "2016-07-03T02:00:00Z",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	latest, err := h.db.GetLatestEntry()
	require.NoError(t, err)
	assert.Equal(t, "inc 20160703T010000Z - 20160703T020000Z", latest)

	undoRes, err := h.HandleUndo(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, undoRes.IsError)

	latest, err = h.db.GetLatestEntry()
	require.NoError(t, err)
	assert.Equal(t, "inc 20160603T010000Z - 20160603T020000Z", latest)
}

func TestHandleModify_RequiresChange(t *testing.T) {
	h := testSetup(t)

	res, err := h.HandleModify(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleLatest_Empty(t *testing.T) {
	h := testSetup(t)

	res, err := h.HandleLatest(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultPayload(t, res)
	assert.Nil(t, payload["item"])
}

func TestHandleList_LimitAndOrder(t *testing.T) {
	h := testSetup(t)

	for _, start := range []string{"2016-06-03T01:00:00Z", "2017-06-03T01:00:00Z", "2018-06-03T01:00:00Z"} {
		_, err := h.HandleAdd(context.Background(), makeRequest(map[string]any{
			"start": start,
			"end":   start[:11] + "02:00:00Z",
		}))
		require.NoError(t, err)
	}

	res, err := h.HandleList(context.Background(), makeRequest(map[string]any{"limit": 2}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultPayload(t, res)
	items := payload["items"].([]any)
	require.Len(t, items, 2)

	first := items[0].(map[string]any)
	assert.Contains(t, first["line"], "2018", "most recent first")
}

func TestHandleTags(t *testing.T) {
	h := testSetup(t)

	_, err := h.HandleAdd(context.Background(), makeRequest(map[string]any{
		"start": "2016-06-03T01:00:00Z",
		"end":   "2016-06-03T02:00:00Z",
		"tags":  []any{"a", "b"},
	}))
	require.NoError(t, err)

	res, err := h.HandleTags(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultPayload(t, res)
	tags := payload["tags"].(map[string]any)
	assert.Equal(t, float64(1), tags["a"])
	assert.Equal(t, float64(1), tags["b"])
}

func TestHandleUndo_EmptyJournal(t *testing.T) {
	h := testSetup(t)

	res, err := h.HandleUndo(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultPayload(t, res)
	assert.Equal(t, false, payload["undone"])
}

func TestDatabase_ReloadsAfterExternalChange(t *testing.T) {
	h := testSetup(t)
	if h.watch == nil {
		t.Skip("directory watcher unavailable")
	}

	// Simulate a CLI invocation writing to the same directory.
	external, err := store.Open(h.location, store.Options{JournalSize: 0})
	require.NoError(t, err)

	start := time.Date(2016, 6, 3, 1, 0, 0, 0, time.UTC)
	_, err = external.AddInterval(interval.New(start, start.Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, external.Commit())

	// The watcher delivers events asynchronously.
	require.Eventually(t, h.watch.Stale, 2*time.Second, 10*time.Millisecond)

	db, err := h.database()
	require.NoError(t, err)
	assert.False(t, db.Empty())
}
