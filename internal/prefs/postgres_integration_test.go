//go:build integration

package prefs

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"voxmail/internal/domain"
)

func TestPostgresStoreIntegration(t *testing.T) {
	dsn := os.Getenv("VOXMAIL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOXMAIL_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	store, err := OpenPostgres(ctx, dsn, testDefaults)
	require.NoError(t, err)
	defer store.Close()

	id := domain.UserID("it:postgres")
	require.NoError(t, store.SetLanguage(ctx, id, domain.LanguageUA))
	require.NoError(t, store.SetTone(ctx, id, domain.ToneFriendly))

	p, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.LanguageUA, p.Language)
	require.Equal(t, domain.ToneFriendly, p.Tone)

	_, err = store.pool.Exec(ctx, `UPDATE preferences SET language = 'xx' WHERE user_id = $1`, string(id))
	require.NoError(t, err)

	p, err = store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.LanguagePL, p.Language)
	require.Equal(t, domain.ToneFriendly, p.Tone)
}
