// Package keyhierarchy turns a tenant master secret into usable keys:
//
//	master secret -> KEK (per tenant and version) -> DEK (per log) -> entry
//
// A KEK is derived with HKDF from the master secret, or unwrapped from a grant
// sealed to the user's public key. A DEK is random, created once per log and
// stored only wrapped under a KEK. Name and search keys are HKDF sub-keys so
// no key serves two purposes. Nothing here persists or logs key material.
package keyhierarchy

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

const (
	nameKeyInfo   = "log-name"
	searchKeyInfo = "search-token"
)

// KEK is a plaintext key encryption key for one tenant version.
type KEK struct {
	TenantID  string
	VersionID uuid.UUID
	Key       [cryptoDomain.KeySize]byte
}

// Close zeroes the key.
func (k *KEK) Close() {
	if k != nil {
		cryptoDomain.Zero(k.Key[:])
	}
}

// DEK is a plaintext data encryption key for one log, as unwrapped under
// KEKVersionID.
type DEK struct {
	TenantID     string
	LogID        uuid.UUID
	KEKVersionID uuid.UUID
	Algorithm    cryptoDomain.Algorithm
	Key          [cryptoDomain.KeySize]byte
}

// Close zeroes the key.
func (d *DEK) Close() {
	if d != nil {
		cryptoDomain.Zero(d.Key[:])
	}
}

// Manager derives, wraps and unwraps keys of the hierarchy.
type Manager struct {
	deriver     cryptoService.KeyDeriver
	aeadManager cryptoService.AEADManager
	sealer      cryptoService.Sealer
	alg         cryptoDomain.Algorithm
}

// NewManager creates a Manager that wraps new keys with alg.
func NewManager(
	deriver cryptoService.KeyDeriver,
	aeadManager cryptoService.AEADManager,
	sealer cryptoService.Sealer,
	alg cryptoDomain.Algorithm,
) *Manager {
	return &Manager{
		deriver:     deriver,
		aeadManager: aeadManager,
		sealer:      sealer,
		alg:         alg,
	}
}

// Algorithm returns the AEAD used for new wraps and entries.
func (m *Manager) Algorithm() cryptoDomain.Algorithm {
	return m.alg
}

func kekInfo(tenantID string, versionID uuid.UUID) string {
	return "logvault/kek/" + tenantID + "/" + versionID.String()
}

// DEKAAD binds a wrapped DEK to its tenant, log and KEK version.
func DEKAAD(tenantID string, logID, versionID uuid.UUID) []byte {
	return []byte("logvault/dek|" + tenantID + "|" + logID.String() + "|" + versionID.String())
}

// DeriveKEK derives the KEK of versionID for tenantID. Equal inputs always
// give the same KEK.
func (m *Manager) DeriveKEK(masterSecret []byte, versionID uuid.UUID, tenantID string) (*KEK, error) {
	key, err := m.deriver.DeriveKey(masterSecret, kekInfo(tenantID, versionID))
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	kek := &KEK{TenantID: tenantID, VersionID: versionID}
	copy(kek.Key[:], key)
	return kek, nil
}

// WrapKEKForUser seals kek to a user's public key. The version id is sealed
// with the key so a grant cannot be replayed for another version.
func (m *Manager) WrapKEKForUser(kek *KEK, publicKey [32]byte) ([]byte, error) {
	payload := make([]byte, 0, 16+cryptoDomain.KeySize)
	payload = append(payload, kek.VersionID[:]...)
	payload = append(payload, kek.Key[:]...)
	defer cryptoDomain.Zero(payload)

	return m.sealer.Seal(payload, &publicKey)
}

// UnwrapGrant opens a wrapped grant with the user's key pair.
func (m *Manager) UnwrapGrant(grant *kekDomain.UserKEKGrant, keyPair *cryptoDomain.KeyPair) (*KEK, error) {
	if !grant.IsWrapped() {
		return nil, ErrGrantNotWrapped
	}

	payload, err := m.sealer.Open(grant.WrappedKEK, keyPair)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(payload)

	if len(payload) != 16+cryptoDomain.KeySize || !bytes.Equal(payload[:16], grant.KEKVersionID[:]) {
		return nil, cryptoDomain.ErrKeyMismatch
	}

	kek := &KEK{TenantID: grant.TenantID, VersionID: grant.KEKVersionID}
	copy(kek.Key[:], payload[16:])
	return kek, nil
}

// DeriveDEK returns the DEK of logID under kek.
//
// With existing nil a fresh random DEK is generated and returned together
// with its wrapped form, which the caller must persist. Otherwise existing is
// unwrapped and returned unchanged.
func (m *Manager) DeriveDEK(kek *KEK, logID uuid.UUID, existing *logsDomain.LogKey) (*DEK, *logsDomain.LogKey, error) {
	if existing != nil {
		dek, err := m.unwrapDEK(kek, existing)
		if err != nil {
			return nil, nil, err
		}
		return dek, existing, nil
	}

	dek := &DEK{
		TenantID:     kek.TenantID,
		LogID:        logID,
		KEKVersionID: kek.VersionID,
		Algorithm:    m.alg,
	}
	if _, err := rand.Read(dek.Key[:]); err != nil {
		return nil, nil, fmt.Errorf("failed to generate DEK: %w", err)
	}

	blob, err := cryptoService.SealBlob(
		m.aeadManager, kek.Key[:], m.alg, dek.Key[:], DEKAAD(kek.TenantID, logID, kek.VersionID),
	)
	if err != nil {
		dek.Close()
		return nil, nil, err
	}

	logKey := &logsDomain.LogKey{
		TenantID:     kek.TenantID,
		LogID:        logID,
		KEKVersionID: kek.VersionID,
		Algorithm:    blob.Algorithm,
		EncryptedKey: blob.Ciphertext,
		Nonce:        blob.Nonce,
		CreatedAt:    time.Now().UTC(),
	}
	return dek, logKey, nil
}

func (m *Manager) unwrapDEK(kek *KEK, logKey *logsDomain.LogKey) (*DEK, error) {
	if logKey.KEKVersionID != kek.VersionID || logKey.TenantID != kek.TenantID {
		return nil, cryptoDomain.ErrKeyMismatch
	}

	key, err := cryptoService.OpenBlob(
		m.aeadManager, kek.Key[:], logKey.Blob(), DEKAAD(logKey.TenantID, logKey.LogID, logKey.KEKVersionID),
	)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	dek := &DEK{
		TenantID:     logKey.TenantID,
		LogID:        logKey.LogID,
		KEKVersionID: logKey.KEKVersionID,
		Algorithm:    m.alg,
	}
	copy(dek.Key[:], key)
	return dek, nil
}

// ReencryptData opens blob under from and seals the plaintext under to. It
// returns ErrKeyMismatch when blob does not open under from with fromAAD.
func (m *Manager) ReencryptData(blob cryptoDomain.Blob, from, to *KEK, fromAAD, toAAD []byte) (cryptoDomain.Blob, error) {
	plaintext, err := cryptoService.OpenBlob(m.aeadManager, from.Key[:], blob, fromAAD)
	if err != nil {
		if errors.Is(err, cryptoDomain.ErrIntegrity) {
			return cryptoDomain.Blob{}, cryptoDomain.ErrKeyMismatch
		}
		return cryptoDomain.Blob{}, err
	}
	defer cryptoDomain.Zero(plaintext)

	return cryptoService.SealBlob(m.aeadManager, to.Key[:], m.alg, plaintext, toAAD)
}

// RewrapDEK moves a wrapped DEK from one KEK version to another without
// changing the DEK itself.
func (m *Manager) RewrapDEK(logKey *logsDomain.LogKey, from, to *KEK) (*logsDomain.LogKey, error) {
	if logKey.KEKVersionID != from.VersionID {
		return nil, cryptoDomain.ErrKeyMismatch
	}

	blob, err := m.ReencryptData(
		logKey.Blob(),
		from,
		to,
		DEKAAD(logKey.TenantID, logKey.LogID, from.VersionID),
		DEKAAD(logKey.TenantID, logKey.LogID, to.VersionID),
	)
	if err != nil {
		return nil, err
	}

	return &logsDomain.LogKey{
		TenantID:     logKey.TenantID,
		LogID:        logKey.LogID,
		KEKVersionID: to.VersionID,
		Algorithm:    blob.Algorithm,
		EncryptedKey: blob.Ciphertext,
		Nonce:        blob.Nonce,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// NameKey derives the key of the deterministic log name cipher for kek.
func (m *Manager) NameKey(kek *KEK) ([]byte, error) {
	return m.deriver.DeriveKey(kek.Key[:], nameKeyInfo)
}

// NameCipher builds the deterministic log name cipher for kek.
func (m *Manager) NameCipher(kek *KEK) (*cryptoService.DeterministicCipher, error) {
	key, err := m.NameKey(kek)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	return cryptoService.NewDeterministicCipher(m.deriver, key)
}

// SearchKey derives the search token key of dek.
func (m *Manager) SearchKey(dek *DEK) ([]byte, error) {
	return m.deriver.DeriveKey(dek.Key[:], searchKeyInfo)
}
