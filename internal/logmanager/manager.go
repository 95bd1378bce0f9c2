// Package logmanager is the client side of encrypted logs. It encrypts log
// names and entries before they leave the process, derives the search tokens
// that let the server match entries it cannot read, decrypts what the server
// returns, and moves logs between KEK versions during rotation.
package logmanager

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/keyhierarchy"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// Store is the ciphertext store the manager talks to. The server-side log
// store use case satisfies it.
type Store interface {
	CreateLog(
		ctx context.Context,
		tenantID, userID string,
		log *logsDomain.Log,
		key *logsDomain.LogKey,
	) (*logsDomain.Log, error)
	GetLog(ctx context.Context, tenantID string, logID uuid.UUID) (*logsDomain.Log, error)
	GetLogByName(ctx context.Context, tenantID, encryptedName string) (*logsDomain.Log, error)
	ListLogs(ctx context.Context, tenantID string) ([]*logsDomain.Log, error)
	UpdateLogName(
		ctx context.Context,
		tenantID, userID string,
		logID uuid.UUID,
		encryptedName string,
		versionID uuid.UUID,
	) (*logsDomain.Log, error)
	PutLogKey(ctx context.Context, tenantID, userID string, key *logsDomain.LogKey) (*logsDomain.LogKey, error)
	GetLogKey(ctx context.Context, tenantID, userID string, logID, versionID uuid.UUID) (*logsDomain.LogKey, error)
	FindLogKeyByName(
		ctx context.Context,
		tenantID, userID string,
		versionID uuid.UUID,
		encryptedName string,
	) (*logsDomain.LogKey, error)
	ListLogKeys(ctx context.Context, tenantID, userID string, logID uuid.UUID) ([]*logsDomain.LogKey, error)
	AppendEntry(
		ctx context.Context,
		tenantID, userID string,
		entry *logsDomain.EncryptedLogEntry,
	) (*logsDomain.EncryptedLogEntry, error)
	ListEntries(
		ctx context.Context,
		tenantID string,
		filter logsDomain.EntryFilter,
	) ([]*logsDomain.EncryptedLogEntry, error)
	Search(
		ctx context.Context,
		tenantID string,
		query logsDomain.SearchQuery,
	) ([]*logsDomain.EncryptedLogEntry, error)
}

// KeyRing hands out the KEKs the current user can derive or unwrap. The
// returned KEKs stay owned by the key ring and must not be closed.
type KeyRing interface {
	// ActiveKEK returns the KEK of the tenant's active version.
	ActiveKEK(ctx context.Context) (*keyhierarchy.KEK, error)
	// KEK returns the KEK of versionID, or an error wrapping ErrAccessDenied
	// when the user cannot obtain it.
	KEK(ctx context.Context, versionID uuid.UUID) (*keyhierarchy.KEK, error)
	// Versions returns the versions the user can obtain, newest first.
	Versions(ctx context.Context) ([]uuid.UUID, error)
}

// Manager encrypts, decrypts and searches the logs of one user.
type Manager struct {
	tenantID    string
	userID      string
	hierarchy   *keyhierarchy.Manager
	aeadManager cryptoService.AEADManager
	store       Store
	keys        KeyRing
	logger      *slog.Logger
}

// New creates a Manager acting as userID of tenantID.
func New(
	tenantID, userID string,
	hierarchy *keyhierarchy.Manager,
	aeadManager cryptoService.AEADManager,
	store Store,
	keys KeyRing,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		tenantID:    tenantID,
		userID:      userID,
		hierarchy:   hierarchy,
		aeadManager: aeadManager,
		store:       store,
		keys:        keys,
		logger:      logger,
	}
}

func (m *Manager) nameAAD() []byte {
	return []byte("logvault/log-name|" + m.tenantID)
}

// EntryAAD binds an entry ciphertext to its tenant, log, KEK version and id,
// so a stored entry cannot be moved to another log or replayed under another id.
func EntryAAD(tenantID string, logID, versionID, entryID uuid.UUID) []byte {
	return []byte(
		"logvault/entry|" + tenantID + "|" + logID.String() + "|" + versionID.String() + "|" + entryID.String(),
	)
}

// EncryptLogName encrypts name under the name key of kek. The result is
// deterministic for a given KEK version, which is what the server indexes.
func (m *Manager) EncryptLogName(kek *keyhierarchy.KEK, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyLogName
	}
	cipher, err := m.hierarchy.NameCipher(kek)
	if err != nil {
		return "", err
	}
	defer cipher.Close()

	sealed, err := cipher.Seal([]byte(name), m.nameAAD())
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptLogName reverses EncryptLogName.
func (m *Manager) DecryptLogName(kek *keyhierarchy.KEK, encryptedName string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encryptedName)
	if err != nil {
		return "", ErrMalformedName
	}
	cipher, err := m.hierarchy.NameCipher(kek)
	if err != nil {
		return "", err
	}
	defer cipher.Close()

	name, err := cipher.Open(sealed, m.nameAAD())
	if err != nil {
		return "", err
	}
	return string(name), nil
}

// ReencryptLogName moves an encrypted name from one KEK version to another.
func (m *Manager) ReencryptLogName(encryptedName string, from, to *keyhierarchy.KEK) (string, error) {
	name, err := m.DecryptLogName(from, encryptedName)
	if err != nil {
		if errors.Is(err, cryptoDomain.ErrIntegrity) {
			return "", cryptoDomain.ErrKeyMismatch
		}
		return "", err
	}
	return m.EncryptLogName(to, name)
}

// ResolveLog finds the log called name. Every version the user can obtain is
// tried newest first, so a log whose name has not been moved to the active
// version yet is still found mid-rotation. When no current name matches, the
// names recorded with each log key are searched, which lets a user who lost
// access to newer versions still reach logs they could read before. The KEK
// the name matched under is returned with the log.
func (m *Manager) ResolveLog(ctx context.Context, name string) (*logsDomain.Log, *keyhierarchy.KEK, error) {
	if name == "" {
		return nil, nil, ErrEmptyLogName
	}
	versions, err := m.keys.Versions(ctx)
	if err != nil {
		return nil, nil, err
	}

	type candidate struct {
		kek           *keyhierarchy.KEK
		encryptedName string
	}
	candidates := make([]candidate, 0, len(versions))
	for _, versionID := range versions {
		kek, err := m.keys.KEK(ctx, versionID)
		if err != nil {
			continue
		}
		encryptedName, err := m.EncryptLogName(kek, name)
		if err != nil {
			return nil, nil, err
		}
		log, err := m.store.GetLogByName(ctx, m.tenantID, encryptedName)
		if err == nil {
			return log, kek, nil
		}
		if !errors.Is(err, logsDomain.ErrLogNotFound) {
			return nil, nil, err
		}
		candidates = append(candidates, candidate{kek: kek, encryptedName: encryptedName})
	}

	for _, c := range candidates {
		key, err := m.store.FindLogKeyByName(ctx, m.tenantID, m.userID, c.kek.VersionID, c.encryptedName)
		if errors.Is(err, logsDomain.ErrLogKeyNotFound) || errors.Is(err, kekDomain.ErrAccessDenied) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		log, err := m.store.GetLog(ctx, m.tenantID, key.LogID)
		if err != nil {
			return nil, nil, err
		}
		return log, c.kek, nil
	}
	return nil, nil, logsDomain.ErrLogNotFound
}

// LogInfo is a log with its decrypted name. Err is set instead of Name when
// the name could not be decrypted.
type LogInfo struct {
	Log  *logsDomain.Log
	Name string
	Err  error
}

// ListLogs returns every log of the tenant with the names the user can read.
func (m *Manager) ListLogs(ctx context.Context) ([]LogInfo, error) {
	logs, err := m.store.ListLogs(ctx, m.tenantID)
	if err != nil {
		return nil, err
	}

	infos := make([]LogInfo, len(logs))
	for i, log := range logs {
		infos[i].Log = log
		kek, err := m.keys.KEK(ctx, log.KEKVersionID)
		if err != nil {
			infos[i].Err = err
			continue
		}
		infos[i].Name, infos[i].Err = m.DecryptLogName(kek, log.EncryptedName)
	}
	return infos, nil
}

// dek unwraps the DEK of logID stored under kek.
func (m *Manager) dek(ctx context.Context, kek *keyhierarchy.KEK, logID uuid.UUID) (*keyhierarchy.DEK, error) {
	logKey, err := m.store.GetLogKey(ctx, m.tenantID, m.userID, logID, kek.VersionID)
	if err != nil {
		return nil, err
	}
	dek, _, err := m.hierarchy.DeriveDEK(kek, logID, logKey)
	return dek, err
}
