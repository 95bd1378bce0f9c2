package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/allisson/logvault/internal/logmanager"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

func TestRunAppendEntry(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("Success_SingleData", func(t *testing.T) {
		logs := &fakeLogClient{}
		var out bytes.Buffer
		streams := IOTuple{Reader: strings.NewReader(""), Writer: &out}

		err := RunAppendEntry(ctx, logs, logger, streams, "sys", `{"msg":"disk full"}`, "2026-10-15T08:00:00Z")
		require.NoError(t, err)
		require.Len(t, logs.appended, 1)
		require.Equal(t, "sys", logs.appended[0].logName)
		require.Equal(t, "disk full", logs.appended[0].data["msg"])
		require.Equal(t, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC), logs.appended[0].timestamp)
		require.Contains(t, out.String(), "Appended entry")
	})

	t.Run("Success_JSONLinesFromInput", func(t *testing.T) {
		logs := &fakeLogClient{}
		var out bytes.Buffer
		input := "{\"msg\":\"disk full\"}\n\n{\"msg\":\"disk ok\",\"host\":\"web-1\"}\n"
		streams := IOTuple{Reader: strings.NewReader(input), Writer: &out}

		err := RunAppendEntry(ctx, logs, logger, streams, "sys", "", "")
		require.NoError(t, err)
		require.Len(t, logs.appended, 2)
		require.True(t, logs.appended[0].timestamp.IsZero())
		require.Equal(t, "web-1", logs.appended[1].data["host"])
		require.Contains(t, out.String(), "Appended 2 entries to sys")
	})

	t.Run("Error_InvalidJSONLine", func(t *testing.T) {
		logs := &fakeLogClient{}
		streams := IOTuple{Reader: strings.NewReader("{\"msg\":\"ok\"}\nnot json\n"), Writer: &bytes.Buffer{}}

		err := RunAppendEntry(ctx, logs, logger, streams, "sys", "", "")
		require.ErrorContains(t, err, "line 2")
		require.Len(t, logs.appended, 1)
	})

	t.Run("Error_InvalidTimestamp", func(t *testing.T) {
		streams := IOTuple{Reader: strings.NewReader(""), Writer: &bytes.Buffer{}}
		err := RunAppendEntry(ctx, &fakeLogClient{}, logger, streams, "sys", `{}`, "yesterday")
		require.ErrorContains(t, err, "invalid timestamp")
	})

	t.Run("Error_Append", func(t *testing.T) {
		logs := &fakeLogClient{appendErr: errors.New("no active kek version")}
		streams := IOTuple{Reader: strings.NewReader(""), Writer: &bytes.Buffer{}}
		err := RunAppendEntry(ctx, logs, logger, streams, "sys", `{"msg":"x"}`, "")
		require.ErrorContains(t, err, "failed to append entry")
	})
}

func TestRunSearchLogs(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	logID := uuid.Must(uuid.NewV7())
	entry := &logsDomain.EncryptedLogEntry{
		ID:        uuid.Must(uuid.NewV7()),
		LogID:     logID,
		Timestamp: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC),
	}
	result := &logmanager.SearchResult{
		Entries: []logmanager.DecryptedEntry{
			{Entry: entry, Data: map[string]any{"msg": "disk full"}},
			{Entry: entry, Err: errors.New("authentication failed")},
		},
		Skipped: []uuid.UUID{uuid.Must(uuid.NewV7())},
	}

	t.Run("Success_Text", func(t *testing.T) {
		logs := &fakeLogClient{result: result}

		var out bytes.Buffer
		err := RunSearchLogs(ctx, logs, logger, &out, SearchOptions{
			LogName: "sys",
			Query:   "disk",
			Filters: []string{"host=web-1"},
			From:    "2026-10-01T00:00:00Z",
			Limit:   10,
			Format:  "text",
		})
		require.NoError(t, err)
		require.Equal(t, "sys", logs.request.LogName)
		require.Equal(t, "disk", logs.request.Query)
		require.Equal(t, map[string]string{"host": "web-1"}, logs.request.Filters)
		require.NotNil(t, logs.request.From)
		require.Nil(t, logs.request.To)
		require.Equal(t, 10, logs.request.Limit)
		require.Contains(t, out.String(), `{"msg":"disk full"}`)
		require.Contains(t, out.String(), "<authentication failed>")
		require.Contains(t, out.String(), "2 match(es)")
	})

	t.Run("Success_JSON", func(t *testing.T) {
		var out bytes.Buffer
		err := RunSearchLogs(ctx, &fakeLogClient{result: result}, logger, &out, SearchOptions{Format: "json"})
		require.NoError(t, err)
		require.Contains(t, out.String(), `"skipped_logs": 1`)
		require.Contains(t, out.String(), `"error": "authentication failed"`)
		require.Contains(t, out.String(), `"log_id": "`+logID.String()+`"`)
	})

	t.Run("Error_InvalidFilter", func(t *testing.T) {
		logs := &fakeLogClient{result: result}
		err := RunSearchLogs(ctx, logs, logger, &bytes.Buffer{}, SearchOptions{Filters: []string{"host"}, Format: "text"})
		require.ErrorContains(t, err, `invalid filter "host"`)
	})

	t.Run("Error_InvalidTime", func(t *testing.T) {
		err := RunSearchLogs(ctx, &fakeLogClient{}, logger, &bytes.Buffer{}, SearchOptions{To: "tomorrow", Format: "text"})
		require.ErrorContains(t, err, "invalid time")
	})

	t.Run("Error_Search", func(t *testing.T) {
		logs := &fakeLogClient{searchErr: errors.New("not authenticated")}
		err := RunSearchLogs(ctx, logs, logger, &bytes.Buffer{}, SearchOptions{Format: "text"})
		require.ErrorContains(t, err, "failed to search logs")
	})
}

func TestRunListLogs(t *testing.T) {
	ctx := context.Background()
	readable := &logsDomain.Log{ID: uuid.Must(uuid.NewV7()), KEKVersionID: uuid.Must(uuid.NewV7())}
	unreadable := &logsDomain.Log{ID: uuid.Must(uuid.NewV7()), KEKVersionID: uuid.Must(uuid.NewV7())}
	logs := &fakeLogClient{logs: []logmanager.LogInfo{
		{Log: readable, Name: "sys"},
		{Log: unreadable, Err: errors.New("kek grant not found")},
	}}

	t.Run("Success_Text", func(t *testing.T) {
		var out bytes.Buffer
		err := RunListLogs(ctx, logs, &out, "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), readable.ID.String())
		require.Contains(t, out.String(), "sys")
		require.Contains(t, out.String(), "<unreadable>")
	})

	t.Run("Success_JSON", func(t *testing.T) {
		var out bytes.Buffer
		err := RunListLogs(ctx, logs, &out, "json")
		require.NoError(t, err)
		require.Contains(t, out.String(), `"name": "sys"`)
		require.Contains(t, out.String(), `"error": "kek grant not found"`)
	})

	t.Run("Error_InvalidFormat", func(t *testing.T) {
		err := RunListLogs(ctx, logs, &bytes.Buffer{}, "csv")
		require.ErrorContains(t, err, "invalid format: csv")
	})
}
