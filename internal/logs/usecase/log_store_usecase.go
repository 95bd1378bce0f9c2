package usecase

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	"github.com/allisson/logvault/internal/database"
	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

type logStoreUseCase struct {
	txManager database.TxManager
	logRepo   LogRepository
	keyRepo   LogKeyRepository
	entryRepo EntryRepository
	registry  KeyRegistry
}

// NewLogStore creates a LogStore.
func NewLogStore(
	txManager database.TxManager,
	logRepo LogRepository,
	keyRepo LogKeyRepository,
	entryRepo EntryRepository,
	registry KeyRegistry,
) LogStore {
	return &logStoreUseCase{
		txManager: txManager,
		logRepo:   logRepo,
		keyRepo:   keyRepo,
		entryRepo: entryRepo,
		registry:  registry,
	}
}

// checkGrant maps a missing grant to ErrAccessDenied.
func (l *logStoreUseCase) checkGrant(ctx context.Context, tenantID, userID string, versionID uuid.UUID) error {
	_, err := l.registry.GetGrant(ctx, tenantID, userID, versionID)
	if errors.Is(err, kekDomain.ErrGrantNotFound) {
		return kekDomain.ErrAccessDenied
	}
	return err
}

func (l *logStoreUseCase) checkActive(ctx context.Context, tenantID string, versionID uuid.UUID) error {
	active, err := l.registry.GetActiveVersion(ctx, tenantID)
	if err != nil {
		return err
	}
	if active.ID != versionID {
		return logsDomain.ErrInactiveVersion
	}
	return nil
}

func (l *logStoreUseCase) CreateLog(
	ctx context.Context,
	tenantID, userID string,
	log *logsDomain.Log,
	key *logsDomain.LogKey,
) (*logsDomain.Log, error) {
	if log.ID == uuid.Nil || log.EncryptedName == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "log id and encrypted name are required")
	}
	if key == nil || key.LogID != log.ID || key.KEKVersionID != log.KEKVersionID {
		return nil, errors.Wrap(errors.ErrInvalidInput, "log key must belong to the log and its kek version")
	}
	if _, err := cryptoDomain.ParseAlgorithm(string(key.Algorithm)); err != nil {
		return nil, err
	}
	if err := l.checkActive(ctx, tenantID, log.KEKVersionID); err != nil {
		return nil, err
	}
	if err := l.checkGrant(ctx, tenantID, userID, log.KEKVersionID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	log.TenantID = tenantID
	log.CreatedAt = now
	log.UpdatedAt = now
	key.TenantID = tenantID
	key.EncryptedName = log.EncryptedName
	key.CreatedAt = now

	err := l.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := l.logRepo.Create(ctx, log); err != nil {
			return err
		}
		return l.keyRepo.Create(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

func (l *logStoreUseCase) GetLog(ctx context.Context, tenantID string, logID uuid.UUID) (*logsDomain.Log, error) {
	return l.logRepo.Get(ctx, tenantID, logID)
}

func (l *logStoreUseCase) GetLogByName(ctx context.Context, tenantID, encryptedName string) (*logsDomain.Log, error) {
	return l.logRepo.GetByName(ctx, tenantID, encryptedName)
}

func (l *logStoreUseCase) ListLogs(ctx context.Context, tenantID string) ([]*logsDomain.Log, error) {
	return l.logRepo.List(ctx, tenantID)
}

func (l *logStoreUseCase) ListLogIDs(ctx context.Context, tenantID string) ([]uuid.UUID, error) {
	return l.logRepo.ListIDs(ctx, tenantID)
}

func (l *logStoreUseCase) UpdateLogName(
	ctx context.Context,
	tenantID, userID string,
	logID uuid.UUID,
	encryptedName string,
	versionID uuid.UUID,
) (*logsDomain.Log, error) {
	if encryptedName == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "encrypted name is required")
	}
	if err := l.checkGrant(ctx, tenantID, userID, versionID); err != nil {
		return nil, err
	}

	log, err := l.logRepo.Get(ctx, tenantID, logID)
	if err != nil {
		return nil, err
	}
	if log.KEKVersionID == versionID && log.EncryptedName == encryptedName {
		return log, nil
	}

	log.EncryptedName = encryptedName
	log.KEKVersionID = versionID
	log.UpdatedAt = time.Now().UTC()
	if err := l.logRepo.UpdateName(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

func (l *logStoreUseCase) PutLogKey(
	ctx context.Context,
	tenantID, userID string,
	key *logsDomain.LogKey,
) (*logsDomain.LogKey, error) {
	if len(key.EncryptedKey) == 0 || len(key.Nonce) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "wrapped key and nonce are required")
	}
	if _, err := cryptoDomain.ParseAlgorithm(string(key.Algorithm)); err != nil {
		return nil, err
	}
	if err := l.checkGrant(ctx, tenantID, userID, key.KEKVersionID); err != nil {
		return nil, err
	}
	if _, err := l.logRepo.Get(ctx, tenantID, key.LogID); err != nil {
		return nil, err
	}

	key.TenantID = tenantID
	key.CreatedAt = time.Now().UTC()
	err := l.keyRepo.Create(ctx, key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, logsDomain.ErrLogKeyExists) {
		return nil, err
	}

	existing, getErr := l.keyRepo.Get(ctx, tenantID, key.LogID, key.KEKVersionID)
	if getErr != nil {
		return nil, getErr
	}
	if sameLogKey(existing, key) {
		return existing, nil
	}
	return nil, err
}

func sameLogKey(a, b *logsDomain.LogKey) bool {
	return a.Algorithm == b.Algorithm &&
		bytes.Equal(a.EncryptedKey, b.EncryptedKey) &&
		bytes.Equal(a.Nonce, b.Nonce)
}

func (l *logStoreUseCase) GetLogKey(
	ctx context.Context,
	tenantID, userID string,
	logID, versionID uuid.UUID,
) (*logsDomain.LogKey, error) {
	if err := l.checkGrant(ctx, tenantID, userID, versionID); err != nil {
		return nil, err
	}
	return l.keyRepo.Get(ctx, tenantID, logID, versionID)
}

func (l *logStoreUseCase) FindLogKeyByName(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
	encryptedName string,
) (*logsDomain.LogKey, error) {
	if encryptedName == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "encrypted name is required")
	}
	if err := l.checkGrant(ctx, tenantID, userID, versionID); err != nil {
		return nil, err
	}
	return l.keyRepo.GetByName(ctx, tenantID, versionID, encryptedName)
}

func (l *logStoreUseCase) ListLogKeys(
	ctx context.Context,
	tenantID, userID string,
	logID uuid.UUID,
) ([]*logsDomain.LogKey, error) {
	keys, err := l.keyRepo.List(ctx, tenantID, logID)
	if err != nil {
		return nil, err
	}

	allowed := make([]*logsDomain.LogKey, 0, len(keys))
	for _, key := range keys {
		err := l.checkGrant(ctx, tenantID, userID, key.KEKVersionID)
		if errors.Is(err, kekDomain.ErrAccessDenied) {
			continue
		}
		if err != nil {
			return nil, err
		}
		allowed = append(allowed, key)
	}
	return allowed, nil
}

func (l *logStoreUseCase) AppendEntry(
	ctx context.Context,
	tenantID, userID string,
	entry *logsDomain.EncryptedLogEntry,
) (*logsDomain.EncryptedLogEntry, error) {
	if entry.ID == uuid.Nil || len(entry.Ciphertext) == 0 || len(entry.Nonce) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "entry id, ciphertext and nonce are required")
	}
	if _, err := cryptoDomain.ParseAlgorithm(string(entry.Algorithm)); err != nil {
		return nil, err
	}
	if err := l.checkActive(ctx, tenantID, entry.KEKVersionID); err != nil {
		return nil, err
	}
	if err := l.checkGrant(ctx, tenantID, userID, entry.KEKVersionID); err != nil {
		return nil, err
	}
	if _, err := l.keyRepo.Get(ctx, tenantID, entry.LogID, entry.KEKVersionID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry.TenantID = tenantID
	entry.CreatedAt = now
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	// The entry row and its token rows are written together.
	err := l.txManager.WithTx(ctx, func(ctx context.Context) error {
		return l.entryRepo.Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (l *logStoreUseCase) ListEntries(
	ctx context.Context,
	tenantID string,
	filter logsDomain.EntryFilter,
) ([]*logsDomain.EncryptedLogEntry, error) {
	if filter.LogID != nil {
		if _, err := l.logRepo.Get(ctx, tenantID, *filter.LogID); err != nil {
			return nil, err
		}
	}
	return l.entryRepo.List(ctx, tenantID, normalizeFilter(filter))
}

func (l *logStoreUseCase) Search(
	ctx context.Context,
	tenantID string,
	query logsDomain.SearchQuery,
) ([]*logsDomain.EncryptedLogEntry, error) {
	groups := make([][]string, 0, len(query.Groups))
	for _, group := range query.Groups {
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	if len(groups) == 0 {
		return nil, logsDomain.ErrEmptySearch
	}

	query.Groups = groups
	query.EntryFilter = normalizeFilter(query.EntryFilter)
	return l.entryRepo.Search(ctx, tenantID, query)
}

func normalizeFilter(filter logsDomain.EntryFilter) logsDomain.EntryFilter {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultPageSize
	case filter.Limit > maxPageSize:
		filter.Limit = maxPageSize
	}
	return filter
}
