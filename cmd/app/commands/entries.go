package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/allisson/logvault/internal/logmanager"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// maxEntryLine bounds one JSON entry read from the input stream.
const maxEntryLine = 1 << 20

// LogClient appends to and searches the tenant's encrypted logs.
type LogClient interface {
	AppendEntry(
		ctx context.Context,
		logName string,
		data map[string]any,
		timestamp time.Time,
	) (*logsDomain.EncryptedLogEntry, error)
	Search(ctx context.Context, req logmanager.SearchRequest) (*logmanager.SearchResult, error)
	ListLogs(ctx context.Context) ([]logmanager.LogInfo, error)
}

// RunAppendEntry encrypts and appends entries to logName. With data set it
// appends that one JSON object; otherwise it reads one JSON object per line
// from the input stream until EOF.
func RunAppendEntry(
	ctx context.Context,
	logs LogClient,
	logger *slog.Logger,
	streams IOTuple,
	logName, data, timestampStr string,
) error {
	var timestamp time.Time
	if timestampStr != "" {
		parsed, err := time.Parse(time.RFC3339, timestampStr)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", timestampStr, err)
		}
		timestamp = parsed
	}

	if data != "" {
		entry, err := appendLine(ctx, logs, logName, data, timestamp)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(streams.Writer, "Appended entry %s to %s\n", entry.ID, logName)
		return nil
	}

	scanner := bufio.NewScanner(streams.Reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntryLine)
	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, err := appendLine(ctx, logs, logName, line, timestamp); err != nil {
			return fmt.Errorf("line %d: %w", count+1, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read entries: %w", err)
	}

	logger.Info("entries appended", slog.Int("count", count))
	_, _ = fmt.Fprintf(streams.Writer, "Appended %d entries to %s\n", count, logName)
	return nil
}

func appendLine(
	ctx context.Context,
	logs LogClient,
	logName, line string,
	timestamp time.Time,
) (*logsDomain.EncryptedLogEntry, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return nil, fmt.Errorf("entry is not a JSON object: %w", err)
	}
	entry, err := logs.AppendEntry(ctx, logName, data, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to append entry: %w", err)
	}
	return entry, nil
}

// SearchOptions are the flags of search-logs.
type SearchOptions struct {
	LogName string
	Query   string
	Filters []string
	From    string
	To      string
	Offset  int
	Limit   int
	Format  string
}

// RunSearchLogs searches the tenant's logs with client-side tokens and prints
// the decrypted matches.
func RunSearchLogs(ctx context.Context, logs LogClient, logger *slog.Logger, w io.Writer, opts SearchOptions) error {
	if err := validateFormat(opts.Format); err != nil {
		return err
	}
	filters, err := parseFilters(opts.Filters)
	if err != nil {
		return err
	}
	req := logmanager.SearchRequest{
		LogName: opts.LogName,
		Query:   opts.Query,
		Filters: filters,
		Offset:  opts.Offset,
		Limit:   opts.Limit,
	}
	if req.From, err = parseOptionalTime(opts.From); err != nil {
		return err
	}
	if req.To, err = parseOptionalTime(opts.To); err != nil {
		return err
	}

	result, err := logs.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to search logs: %w", err)
	}
	for _, logID := range result.Skipped {
		logger.Warn("log skipped, no readable key", slog.String("log_id", logID.String()))
	}

	if opts.Format == "json" {
		items := make([]map[string]any, 0, len(result.Entries))
		for _, entry := range result.Entries {
			item := map[string]any{
				"id":        entry.Entry.ID.String(),
				"log_id":    entry.Entry.LogID.String(),
				"timestamp": entry.Entry.Timestamp.Format(time.RFC3339Nano),
				"data":      entry.Data,
			}
			if entry.Err != nil {
				item["error"] = entry.Err.Error()
			}
			items = append(items, item)
		}
		return writeJSON(w, map[string]any{"entries": items, "skipped_logs": len(result.Skipped)})
	}

	for _, entry := range result.Entries {
		if entry.Err != nil {
			_, _ = fmt.Fprintf(w, "%s  %s  <%v>\n", entry.Entry.Timestamp.Format(time.RFC3339), entry.Entry.ID, entry.Err)
			continue
		}
		data, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		_, _ = fmt.Fprintf(w, "%s  %s  %s\n", entry.Entry.Timestamp.Format(time.RFC3339), entry.Entry.ID, data)
	}
	_, _ = fmt.Fprintf(w, "%d match(es)\n", len(result.Entries))
	return nil
}

// RunListLogs prints the tenant's logs with the names the user can read.
func RunListLogs(ctx context.Context, logs LogClient, w io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	infos, err := logs.ListLogs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list logs: %w", err)
	}

	if format == "json" {
		items := make([]map[string]any, 0, len(infos))
		for _, info := range infos {
			item := map[string]any{
				"id":             info.Log.ID.String(),
				"name":           info.Name,
				"kek_version_id": info.Log.KEKVersionID.String(),
			}
			if info.Err != nil {
				item["error"] = info.Err.Error()
			}
			items = append(items, item)
		}
		return writeJSON(w, items)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME")
	for _, info := range infos {
		name := info.Name
		if info.Err != nil {
			name = "<unreadable>"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", info.Log.ID, name)
	}
	return tw.Flush()
}

func parseOptionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", value, err)
	}
	return &parsed, nil
}
