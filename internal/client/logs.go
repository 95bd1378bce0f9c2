package client

import (
	"context"
	"fmt"
	"time"

	"github.com/allisson/logvault/internal/logmanager"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// AppendEntry encrypts data and stores it in the log called logName,
// creating the log on first use. A zero timestamp means now.
func (c *Client) AppendEntry(
	ctx context.Context,
	logName string,
	data map[string]any,
	timestamp time.Time,
) (*logsDomain.EncryptedLogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, _, err := c.session(); err != nil {
		return nil, fmt.Errorf("failed to append entry: %w", err)
	}
	entry, err := c.logs.AppendEntry(ctx, logName, data, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to append entry: %w", err)
	}
	return entry, nil
}

// ReadEntries returns the decrypted entries of the log called logName.
// Entries the user cannot open carry their error instead of data.
func (c *Client) ReadEntries(
	ctx context.Context,
	logName string,
	filter logsDomain.EntryFilter,
) ([]logmanager.DecryptedEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, _, err := c.session(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	entries, err := c.logs.ReadEntries(ctx, logName, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return entries, nil
}

// Search finds entries matching every word of the query and every filter.
func (c *Client) Search(ctx context.Context, req logmanager.SearchRequest) (*logmanager.SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, _, err := c.session(); err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	result, err := c.logs.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return result, nil
}

// ListLogs returns every log of the tenant with the names the user can read.
func (c *Client) ListLogs(ctx context.Context) ([]logmanager.LogInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, _, err := c.session(); err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	logs, err := c.logs.ListLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	return logs, nil
}

// SetRetentionPolicy keeps the entries of logName for period; a negative
// period keeps them forever.
func (c *Client) SetRetentionPolicy(
	ctx context.Context,
	logName string,
	period time.Duration,
) (*logsDomain.RetentionPolicy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, _, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to set retention policy: %w", err)
	}
	log, _, err := c.logs.ResolveLog(ctx, logName)
	if err != nil {
		return nil, fmt.Errorf("failed to set retention policy: %w", err)
	}
	policy, err := c.retention.SetRetentionPolicy(ctx, principal.TenantID, principal.UserID, log.ID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to set retention policy: %w", err)
	}
	return policy, nil
}

// GetRetentionPolicy returns the policy of logName.
func (c *Client) GetRetentionPolicy(ctx context.Context, logName string) (*logsDomain.RetentionPolicy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, _, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to get retention policy: %w", err)
	}
	log, _, err := c.logs.ResolveLog(ctx, logName)
	if err != nil {
		return nil, fmt.Errorf("failed to get retention policy: %w", err)
	}
	policy, err := c.retention.GetRetentionPolicy(ctx, principal.TenantID, log.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get retention policy: %w", err)
	}
	return policy, nil
}

// DeleteRetentionPolicy removes the policy of logName.
func (c *Client) DeleteRetentionPolicy(ctx context.Context, logName string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, _, err := c.session()
	if err != nil {
		return fmt.Errorf("failed to delete retention policy: %w", err)
	}
	log, _, err := c.logs.ResolveLog(ctx, logName)
	if err != nil {
		return fmt.Errorf("failed to delete retention policy: %w", err)
	}
	if err := c.retention.DeleteRetentionPolicy(ctx, principal.TenantID, log.ID); err != nil {
		return fmt.Errorf("failed to delete retention policy: %w", err)
	}
	return nil
}
