package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
)

func TestRunCreateMasterSecret(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	kms := cryptoService.NewKMSService()

	t.Run("Success_Unsealed", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCreateMasterSecret(ctx, kms, logger, &out, "")
		require.NoError(t, err)

		match := regexp.MustCompile(`MASTER_SECRET="([^"]+)"`).FindStringSubmatch(out.String())
		require.Len(t, match, 2)
		secret, err := base64.StdEncoding.DecodeString(match[1])
		require.NoError(t, err)
		require.Len(t, secret, cryptoDomain.KeySize)
	})

	t.Run("Success_SealedWithKMS", func(t *testing.T) {
		keyURI := "base64key://" + base64.URLEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

		var out bytes.Buffer
		err := RunCreateMasterSecret(ctx, kms, logger, &out, keyURI)
		require.NoError(t, err)
		require.Contains(t, out.String(), `MASTER_SECRET_KMS_KEY_URI="`+keyURI+`"`)
		require.NotContains(t, out.String(), "MASTER_SECRET=")

		match := regexp.MustCompile(`MASTER_SECRET_CIPHERTEXT="([^"]+)"`).FindStringSubmatch(out.String())
		require.Len(t, match, 2)
		ciphertext, err := base64.StdEncoding.DecodeString(match[1])
		require.NoError(t, err)

		keeper, err := kms.OpenKeeper(ctx, keyURI)
		require.NoError(t, err)
		defer func() { _ = keeper.Close() }()
		secret, err := keeper.Decrypt(ctx, ciphertext)
		require.NoError(t, err)
		require.Len(t, secret, cryptoDomain.KeySize)
	})

	t.Run("Error_InvalidKeyURI", func(t *testing.T) {
		err := RunCreateMasterSecret(ctx, kms, logger, &bytes.Buffer{}, "unknownscheme://key")
		require.Error(t, err)
	})
}

func TestRunSplitMasterSecret(t *testing.T) {
	logger := slog.Default()
	shares := []cryptoDomain.Share{
		{Index: 1, Value: []byte{1, 2, 3}},
		{Index: 2, Value: []byte{4, 5, 6}},
		{Index: 3, Value: []byte{7, 8, 9}},
	}

	t.Run("Success_Text", func(t *testing.T) {
		encoded := make([]string, len(shares))
		for i, share := range shares {
			encoded[i] = share.Encode()
		}

		var out bytes.Buffer
		err := RunSplitMasterSecret(&fakeSplitter{shares: shares}, logger, &out, 3, 2, "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "2 of these 3 shares")
		for i, value := range encoded {
			require.Contains(t, out.String(), fmt.Sprintf("share %d: %s", i+1, value))
		}
		require.Equal(t, []byte{0, 0, 0}, shares[0].Value, "shares are zeroed after printing")
	})

	t.Run("Success_JSON", func(t *testing.T) {
		share := cryptoDomain.Share{Index: 1, Value: []byte{9, 9}}
		encoded := share.Encode()

		var out bytes.Buffer
		err := RunSplitMasterSecret(&fakeSplitter{shares: []cryptoDomain.Share{share}}, logger, &out, 1, 1, "json")
		require.NoError(t, err)
		require.Contains(t, out.String(), `"threshold": 1`)
		require.Contains(t, out.String(), encoded)
	})

	t.Run("Error_Split", func(t *testing.T) {
		splitter := &fakeSplitter{err: errors.New("threshold exceeds shares")}
		err := RunSplitMasterSecret(splitter, logger, &bytes.Buffer{}, 2, 3, "text")
		require.ErrorContains(t, err, "failed to split master secret")
	})

	t.Run("Error_InvalidFormat", func(t *testing.T) {
		err := RunSplitMasterSecret(&fakeSplitter{}, logger, &bytes.Buffer{}, 3, 2, "yaml")
		require.ErrorContains(t, err, "invalid format")
	})
}
