package logmanager

import (
	"context"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/keyhierarchy"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// ReencryptLog moves logID from the KEK version of from to the version of to.
//
// In rewrap mode the log's DEK is re-wrapped under to and keeps decrypting
// old entries. In rekey mode a fresh DEK is created under to, so users who
// knew the old DEK cannot read anything written afterwards. Both modes move
// the encrypted name. Steps already done are skipped, which makes the call
// safe to retry after a partial failure.
func (m *Manager) ReencryptLog(
	ctx context.Context,
	logID uuid.UUID,
	from, to *keyhierarchy.KEK,
	mode kekDomain.RotationMode,
) error {
	log, err := m.store.GetLog(ctx, m.tenantID, logID)
	if err != nil {
		return err
	}

	encryptedName := log.EncryptedName
	if log.KEKVersionID != to.VersionID {
		nameKEK := from
		if from == nil || log.KEKVersionID != from.VersionID {
			nameKEK, err = m.keys.KEK(ctx, log.KEKVersionID)
			if err != nil {
				return err
			}
		}
		encryptedName, err = m.ReencryptLogName(log.EncryptedName, nameKEK, to)
		if err != nil {
			return err
		}
	}

	if err := m.moveLogKey(ctx, log, encryptedName, from, to, mode); err != nil {
		return err
	}
	if log.KEKVersionID == to.VersionID {
		return nil
	}
	_, err = m.store.UpdateLogName(ctx, m.tenantID, m.userID, logID, encryptedName, to.VersionID)
	return err
}

func (m *Manager) moveLogKey(
	ctx context.Context,
	log *logsDomain.Log,
	encryptedName string,
	from, to *keyhierarchy.KEK,
	mode kekDomain.RotationMode,
) error {
	logID := log.ID
	_, err := m.store.GetLogKey(ctx, m.tenantID, m.userID, logID, to.VersionID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, logsDomain.ErrLogKeyNotFound) {
		return err
	}

	var logKey *logsDomain.LogKey
	switch mode {
	case kekDomain.ModeRekey:
		var dek *keyhierarchy.DEK
		dek, logKey, err = m.hierarchy.DeriveDEK(to, logID, nil)
		if err != nil {
			return err
		}
		dek.Close()
	default:
		source, current, err := m.rewrapSource(ctx, log, from)
		if err != nil {
			return err
		}
		logKey, err = m.hierarchy.RewrapDEK(current, source, to)
		if err != nil {
			return err
		}
	}

	logKey.EncryptedName = encryptedName
	_, err = m.store.PutLogKey(ctx, m.tenantID, m.userID, logKey)
	if errors.Is(err, logsDomain.ErrLogKeyExists) {
		// Another client moved the key first; its key is as good as ours.
		return nil
	}
	return err
}

// rewrapSource returns the KEK and key the DEK is rewrapped from. A log that
// an interrupted rotation never moved to from still has its key under the
// version it lives in.
func (m *Manager) rewrapSource(
	ctx context.Context,
	log *logsDomain.Log,
	from *keyhierarchy.KEK,
) (*keyhierarchy.KEK, *logsDomain.LogKey, error) {
	if from != nil {
		current, err := m.store.GetLogKey(ctx, m.tenantID, m.userID, log.ID, from.VersionID)
		if err == nil {
			return from, current, nil
		}
		if !errors.Is(err, logsDomain.ErrLogKeyNotFound) || log.KEKVersionID == from.VersionID {
			return nil, nil, err
		}
	}
	if from == nil && log.KEKVersionID == uuid.Nil {
		return nil, nil, errors.Wrap(errors.ErrInvalidInput, "rewrap needs the source kek")
	}

	source, err := m.keys.KEK(ctx, log.KEKVersionID)
	if err != nil {
		return nil, nil, err
	}
	current, err := m.store.GetLogKey(ctx, m.tenantID, m.userID, log.ID, log.KEKVersionID)
	if err != nil {
		return nil, nil, err
	}
	return source, current, nil
}
