package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactStore_PutGet(t *testing.T) {
	s, err := Open("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	key := Key("isp-1", "gen-1", "csv")
	assert.Equal(t, "/reports/isp-1/gen-1.csv", key)

	require.NoError(t, s.Put(ctx, key, []byte("a,b\n1,2\n")))
	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, err = s.Get(ctx, Key("isp-1", "missing", "csv"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArtifactStore_KeysAndDelete(t *testing.T) {
	s, err := Open(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Key("a", "1", "json"), []byte("{}")))
	require.NoError(t, s.Put(ctx, Key("a", "2", "yaml"), []byte("x: 1")))
	require.NoError(t, s.Put(ctx, Key("b", "3", "csv"), []byte("x")))

	keys, err := s.Keys(ctx, "/reports/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/reports/a/1.json", "/reports/a/2.yaml"}, keys)

	n, err := s.Delete(ctx, "/reports/a/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err = s.Keys(ctx, "/reports/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/reports/b/3.csv"}, keys)
}
