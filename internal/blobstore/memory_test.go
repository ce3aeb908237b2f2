package blobstore_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/soundpost/internal/blobstore"
	"github.com/maneesh/soundpost/internal/chunker"
)

func TestMemoryBlobStore(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory(chunker.NewChunker(4))

	t.Run("not ready before Init", func(t *testing.T) {
		_, err := store.Put(ctx, bytes.NewReader([]byte("abc")), "audio/mpeg", "a.mp3")
		assert.ErrorIs(t, err, blobstore.ErrNotReady)
	})

	require.NoError(t, store.Init(ctx))

	t.Run("round trip", func(t *testing.T) {
		payload := testPayload(42)

		id, err := store.Put(ctx, bytes.NewReader(payload), "audio/ogg", "loop.ogg")
		require.NoError(t, err)

		exists, err := store.Exists(ctx, id)
		require.NoError(t, err)
		assert.True(t, exists)

		info, reader, err := store.Get(ctx, id)
		require.NoError(t, err)
		defer reader.Close()

		assert.Equal(t, "audio/ogg", info.ContentType)
		assert.Equal(t, "loop.ogg", info.Filename)
		assert.Equal(t, int64(42), info.Size)

		got, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, _, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)

		exists, err := store.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}
