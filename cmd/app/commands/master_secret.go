package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
)

// SecretSplitter splits the loaded master secret into Shamir shares.
type SecretSplitter interface {
	SplitMasterSecret(total, threshold int) ([]cryptoDomain.Share, error)
}

// RunCreateMasterSecret generates a tenant master secret and prints the
// environment variables that load it. With a KMS key URI the secret is sealed
// and only the ciphertext is printed; without one the raw secret is printed,
// which is meant for local development only.
func RunCreateMasterSecret(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	w io.Writer,
	kmsKeyURI string,
) error {
	secret := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("failed to generate master secret: %w", err)
	}
	defer cryptoDomain.Zero(secret)

	if kmsKeyURI == "" {
		logger.Warn("printing an unsealed master secret")
		_, _ = fmt.Fprintln(w, "# Unsealed master secret. Use --kms-key-uri outside local development.")
		_, _ = fmt.Fprintf(w, "MASTER_SECRET=\"%s\"\n", base64.StdEncoding.EncodeToString(secret))
		return nil
	}

	sealed, err := cryptoService.SealMasterSecret(ctx, kmsService, kmsKeyURI, secret)
	if err != nil {
		return err
	}

	logger.Info("master secret created")
	_, _ = fmt.Fprintln(w, "# Copy these variables to the environment of every logvault client of the tenant")
	_, _ = fmt.Fprintf(w, "MASTER_SECRET_KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	_, _ = fmt.Fprintf(w, "MASTER_SECRET_CIPHERTEXT=\"%s\"\n", sealed)
	return nil
}

// RunSplitMasterSecret prints total recovery shares of the master secret,
// any threshold of which rebuild it. Each share belongs to a different holder.
func RunSplitMasterSecret(
	splitter SecretSplitter,
	logger *slog.Logger,
	w io.Writer,
	total, threshold int,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	shares, err := splitter.SplitMasterSecret(total, threshold)
	if err != nil {
		return fmt.Errorf("failed to split master secret: %w", err)
	}
	defer func() {
		for _, share := range shares {
			cryptoDomain.Zero(share.Value)
		}
	}()

	logger.Warn("master secret split into recovery shares",
		slog.Int("total_shares", total),
		slog.Int("threshold", threshold),
	)

	if format == "json" {
		encoded := make([]map[string]any, 0, len(shares))
		for _, share := range shares {
			encoded = append(encoded, map[string]any{"index": share.Index, "share": share.Encode()})
		}
		return writeJSON(w, map[string]any{"threshold": threshold, "shares": encoded})
	}

	_, _ = fmt.Fprintf(w, "# %d of these %d shares rebuild the master secret. Hand each to a different holder.\n",
		threshold, total)
	for _, share := range shares {
		_, _ = fmt.Fprintf(w, "share %d: %s\n", share.Index, share.Encode())
	}
	return nil
}
