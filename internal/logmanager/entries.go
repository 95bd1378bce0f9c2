package logmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/keyhierarchy"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// DecryptedEntry is one entry of a batch decryption. Exactly one of Data and
// Err is set.
type DecryptedEntry struct {
	Entry *logsDomain.EncryptedLogEntry
	Data  map[string]any
	Err   error
}

// AppendEntry encrypts data under the active KEK version and stores it in the
// log called logName, creating the log on first use. A zero timestamp means
// now.
func (m *Manager) AppendEntry(
	ctx context.Context,
	logName string,
	data map[string]any,
	timestamp time.Time,
) (*logsDomain.EncryptedLogEntry, error) {
	kek, err := m.keys.ActiveKEK(ctx)
	if err != nil {
		return nil, err
	}

	logID, dek, err := m.activeLogKey(ctx, logName, kek)
	if err != nil {
		return nil, err
	}
	defer dek.Close()

	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	defer cryptoDomain.Zero(plaintext)

	entryID := uuid.Must(uuid.NewV7())
	blob, err := cryptoService.SealBlob(
		m.aeadManager, dek.Key[:], m.hierarchy.Algorithm(), plaintext, EntryAAD(m.tenantID, logID, kek.VersionID, entryID),
	)
	if err != nil {
		return nil, err
	}

	searchKey, err := m.hierarchy.SearchKey(dek)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(searchKey)

	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	entry := &logsDomain.EncryptedLogEntry{
		ID:           entryID,
		LogID:        logID,
		KEKVersionID: kek.VersionID,
		Algorithm:    blob.Algorithm,
		Ciphertext:   blob.Ciphertext,
		Nonce:        blob.Nonce,
		SearchTokens: cryptoService.DeriveSearchTokens(searchKey, ExtractFeatures(data)),
		Timestamp:    timestamp.UTC(),
	}
	return m.store.AppendEntry(ctx, m.tenantID, m.userID, entry)
}

// activeLogKey returns the log called name and its DEK under kek, creating
// the log or moving it to kek first when needed.
func (m *Manager) activeLogKey(
	ctx context.Context,
	name string,
	kek *keyhierarchy.KEK,
) (uuid.UUID, *keyhierarchy.DEK, error) {
	log, from, err := m.ResolveLog(ctx, name)
	switch {
	case errors.Is(err, logsDomain.ErrLogNotFound):
		log, err = m.createLog(ctx, name, kek)
		if errors.Is(err, logsDomain.ErrLogExists) {
			// Created concurrently by another writer.
			log, from, err = m.ResolveLog(ctx, name)
		}
		if err != nil {
			return uuid.Nil, nil, err
		}
	case err != nil:
		return uuid.Nil, nil, err
	}

	dek, err := m.dek(ctx, kek, log.ID)
	if errors.Is(err, logsDomain.ErrLogKeyNotFound) {
		// The rotation job has not reached this log yet. A fresh DEK is
		// always safe here because removed users never learn it.
		if err := m.ReencryptLog(ctx, log.ID, from, kek, kekDomain.ModeRekey); err != nil {
			return uuid.Nil, nil, err
		}
		dek, err = m.dek(ctx, kek, log.ID)
	}
	if err != nil {
		return uuid.Nil, nil, err
	}
	return log.ID, dek, nil
}

func (m *Manager) createLog(ctx context.Context, name string, kek *keyhierarchy.KEK) (*logsDomain.Log, error) {
	encryptedName, err := m.EncryptLogName(kek, name)
	if err != nil {
		return nil, err
	}

	logID := uuid.Must(uuid.NewV7())
	dek, logKey, err := m.hierarchy.DeriveDEK(kek, logID, nil)
	if err != nil {
		return nil, err
	}
	dek.Close()

	log := &logsDomain.Log{
		ID:            logID,
		EncryptedName: encryptedName,
		KEKVersionID:  kek.VersionID,
	}
	created, err := m.store.CreateLog(ctx, m.tenantID, m.userID, log, logKey)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("log created", "log_id", logID, "kek_version_id", kek.VersionID)
	return created, nil
}

// ReadEntries returns the decrypted entries of the log called logName.
func (m *Manager) ReadEntries(
	ctx context.Context,
	logName string,
	filter logsDomain.EntryFilter,
) ([]DecryptedEntry, error) {
	log, _, err := m.ResolveLog(ctx, logName)
	if err != nil {
		return nil, err
	}
	filter.LogID = &log.ID

	entries, err := m.store.ListEntries(ctx, m.tenantID, filter)
	if err != nil {
		return nil, err
	}
	return m.DecryptEntries(ctx, entries), nil
}

type dekRef struct {
	logID     uuid.UUID
	versionID uuid.UUID
}

// DecryptEntries decrypts a batch of entries that may span logs and KEK
// versions. A failure affects only its own item: a version the user holds no
// grant for gives ErrAccessDenied and tampered data gives ErrIntegrity.
func (m *Manager) DecryptEntries(ctx context.Context, entries []*logsDomain.EncryptedLogEntry) []DecryptedEntry {
	deks := make(map[dekRef]*keyhierarchy.DEK)
	failed := make(map[dekRef]error)
	defer func() {
		for _, dek := range deks {
			dek.Close()
		}
	}()

	out := make([]DecryptedEntry, len(entries))
	for i, entry := range entries {
		out[i].Entry = entry
		ref := dekRef{logID: entry.LogID, versionID: entry.KEKVersionID}

		if err, ok := failed[ref]; ok {
			out[i].Err = err
			continue
		}
		dek, ok := deks[ref]
		if !ok {
			var err error
			dek, err = m.entryDEK(ctx, ref)
			if err != nil {
				failed[ref] = err
				out[i].Err = err
				continue
			}
			deks[ref] = dek
		}

		out[i].Data, out[i].Err = m.openEntry(dek, entry)
	}
	return out
}

func (m *Manager) entryDEK(ctx context.Context, ref dekRef) (*keyhierarchy.DEK, error) {
	kek, err := m.keys.KEK(ctx, ref.versionID)
	if err != nil {
		return nil, err
	}
	return m.dek(ctx, kek, ref.logID)
}

func (m *Manager) openEntry(dek *keyhierarchy.DEK, entry *logsDomain.EncryptedLogEntry) (map[string]any, error) {
	plaintext, err := cryptoService.OpenBlob(
		m.aeadManager,
		dek.Key[:],
		cryptoDomain.Blob{Algorithm: entry.Algorithm, Ciphertext: entry.Ciphertext, Nonce: entry.Nonce},
		EntryAAD(entry.TenantID, entry.LogID, entry.KEKVersionID, entry.ID),
	)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(plaintext)

	var data map[string]any
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("%w: entry is not a JSON object", cryptoDomain.ErrIntegrity)
	}
	return data, nil
}
