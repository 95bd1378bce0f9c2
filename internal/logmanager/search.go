package logmanager

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	"github.com/allisson/logvault/internal/errors"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// SearchRequest describes a search. An empty LogName searches every log.
type SearchRequest struct {
	LogName string
	// Query is split into words; every word must appear in a match.
	Query string
	// Filters are field=value pairs that must all appear in a match.
	Filters map[string]string
	From    *time.Time
	To      *time.Time
	Offset  int
	Limit   int
}

// SearchResult holds the matches of a search and the logs that could not be
// searched because the user holds no key for any of their DEKs.
type SearchResult struct {
	Entries []DecryptedEntry
	Skipped []uuid.UUID
}

// Search matches entries without revealing the query to the server.
//
// The query features are turned into one token group per DEK the user can
// unwrap. A log rewrapped across versions keeps its DEK and so contributes a
// single group; a rekeyed log contributes one group per DEK generation.
func (m *Manager) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	features := QueryFeatures(req.Query, req.Filters)
	if len(features) == 0 {
		return nil, ErrEmptyQuery
	}

	filter := logsDomain.EntryFilter{From: req.From, To: req.To, Offset: req.Offset, Limit: req.Limit}
	var logs []*logsDomain.Log
	if req.LogName != "" {
		log, _, err := m.ResolveLog(ctx, req.LogName)
		if err != nil {
			return nil, err
		}
		logs = []*logsDomain.Log{log}
		filter.LogID = &log.ID
	} else {
		var err error
		logs, err = m.store.ListLogs(ctx, m.tenantID)
		if err != nil {
			return nil, err
		}
	}

	result := &SearchResult{}
	seen := make(map[string]struct{})
	var groups [][]string
	for _, log := range logs {
		logGroups, err := m.tokenGroups(ctx, log.ID, features)
		if err != nil {
			return nil, err
		}
		if len(logGroups) == 0 {
			result.Skipped = append(result.Skipped, log.ID)
			continue
		}
		for _, group := range logGroups {
			key := strings.Join(group, ",")
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			groups = append(groups, group)
		}
	}
	if len(groups) == 0 {
		return result, nil
	}

	entries, err := m.store.Search(ctx, m.tenantID, logsDomain.SearchQuery{Groups: groups, EntryFilter: filter})
	if err != nil {
		return nil, err
	}
	result.Entries = m.DecryptEntries(ctx, entries)
	return result, nil
}

// tokenGroups derives the token group of features under every DEK of logID
// the user can unwrap.
func (m *Manager) tokenGroups(ctx context.Context, logID uuid.UUID, features []string) ([][]string, error) {
	logKeys, err := m.store.ListLogKeys(ctx, m.tenantID, m.userID, logID)
	if err != nil {
		return nil, err
	}

	var groups [][]string
	for _, logKey := range logKeys {
		kek, err := m.keys.KEK(ctx, logKey.KEKVersionID)
		if err != nil {
			continue
		}
		dek, _, err := m.hierarchy.DeriveDEK(kek, logID, logKey)
		if err != nil {
			if errors.Is(err, cryptoDomain.ErrIntegrity) {
				m.logger.Warn("skipping undecryptable log key",
					"log_id", logID, "kek_version_id", logKey.KEKVersionID)
				continue
			}
			return nil, err
		}
		searchKey, err := m.hierarchy.SearchKey(dek)
		dek.Close()
		if err != nil {
			return nil, err
		}
		groups = append(groups, cryptoService.DeriveSearchTokens(searchKey, features))
		cryptoDomain.Zero(searchKey)
	}
	return groups, nil
}
