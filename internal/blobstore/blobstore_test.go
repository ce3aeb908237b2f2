package blobstore_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/soundpost/internal/blobstore"
	"github.com/maneesh/soundpost/internal/chunker"
	"github.com/maneesh/soundpost/internal/models"
)

// fakeObjects is an in-memory ChunkObjectStore with failure injection
// and a download log, so tests can observe laziness and cleanup.
type fakeObjects struct {
	mu           sync.Mutex
	objects      map[string][]byte
	downloads    []string
	uploads      int
	failUploadAt int // fail the nth upload (1-based), 0 disables
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) EnsureBucket(ctx context.Context) error { return nil }

func (f *fakeObjects) UploadChunk(ctx context.Context, objectKey string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads++
	if f.failUploadAt > 0 && f.uploads == f.failUploadAt {
		return errors.New("injected upload failure")
	}
	f.objects[objectKey] = append([]byte(nil), data...)
	return nil
}

func (f *fakeObjects) DownloadChunk(ctx context.Context, objectKey string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.downloads = append(f.downloads, objectKey)
	data, exists := f.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("no such object: %s", objectKey)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeObjects) RemoveChunk(ctx context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, objectKey)
	return nil
}

func (f *fakeObjects) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.downloads)
}

func (f *fakeObjects) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeMeta is an in-memory MetadataStore with failure injection.
type fakeMeta struct {
	mu           sync.Mutex
	blobs        map[string]*models.Blob
	chunks       map[string][]*models.Chunk
	failFinalize bool
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{
		blobs:  make(map[string]*models.Blob),
		chunks: make(map[string][]*models.Chunk),
	}
}

func (f *fakeMeta) CreateBlob(ctx context.Context, blob *models.Blob) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := *blob
	f.blobs[blob.ID] = &copied
	return nil
}

func (f *fakeMeta) FinalizeBlob(ctx context.Context, blobID string, size int64, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFinalize {
		return errors.New("injected finalize failure")
	}
	blob := f.blobs[blobID]
	blob.Size = size
	blob.ChunkCount = chunkCount
	blob.Finalized = true
	return nil
}

func (f *fakeMeta) GetBlob(ctx context.Context, blobID string) (*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, exists := f.blobs[blobID]
	if !exists || !blob.Finalized {
		return nil, nil
	}
	copied := *blob
	return &copied, nil
}

func (f *fakeMeta) DeleteBlob(ctx context.Context, blobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.blobs, blobID)
	delete(f.chunks, blobID)
	return nil
}

func (f *fakeMeta) CreateChunk(ctx context.Context, chunk *models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := *chunk
	f.chunks[chunk.BlobID] = append(f.chunks[chunk.BlobID], &copied)
	return nil
}

func (f *fakeMeta) GetChunks(ctx context.Context, blobID string) ([]*models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*models.Chunk(nil), f.chunks[blobID]...), nil
}

func testPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func newTestStore(t *testing.T, chunkSize int64) (*blobstore.Store, *fakeObjects, *fakeMeta) {
	t.Helper()
	objects := newFakeObjects()
	meta := newFakeMeta()
	store := blobstore.New(objects, meta, chunker.NewChunker(chunkSize))
	require.NoError(t, store.Init(context.Background()))
	return store, objects, meta
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t, 8)

	for _, size := range []int{0, 1, 7, 8, 9, 100} {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			payload := testPayload(size)

			id, err := store.Put(ctx, bytes.NewReader(payload), "audio/mpeg", "track.mp3")
			require.NoError(t, err)
			require.NotEmpty(t, id)

			info, reader, err := store.Get(ctx, id)
			require.NoError(t, err)
			defer reader.Close()

			assert.Equal(t, "audio/mpeg", info.ContentType)
			assert.Equal(t, "track.mp3", info.Filename)
			assert.Equal(t, int64(size), info.Size)

			got, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestGetIsLazy(t *testing.T) {
	ctx := context.Background()
	store, objects, _ := newTestStore(t, 4)

	id, err := store.Put(ctx, bytes.NewReader(testPayload(12)), "audio/mpeg", "track.mp3")
	require.NoError(t, err)

	_, reader, err := store.Get(ctx, id)
	require.NoError(t, err)
	defer reader.Close()

	// Nothing fetched until the consumer reads
	assert.Equal(t, 0, objects.downloadCount())

	buf := make([]byte, 4)
	_, err = io.ReadFull(reader, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, objects.downloadCount())

	_, err = io.ReadFull(reader, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, objects.downloadCount())

	_, err = io.ReadFull(reader, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, objects.downloadCount())
}

func TestFailedPutLeavesNothingVisible(t *testing.T) {
	ctx := context.Background()

	t.Run("upload failure", func(t *testing.T) {
		store, objects, meta := newTestStore(t, 4)
		objects.failUploadAt = 2

		_, err := store.Put(ctx, bytes.NewReader(testPayload(12)), "audio/mpeg", "track.mp3")
		require.Error(t, err)

		// The first chunk made it out before the failure; cleanup must
		// have removed it along with the blob record.
		assert.Equal(t, 0, objects.objectCount())
		assert.Empty(t, meta.blobs)
		assert.Empty(t, meta.chunks)
	})

	t.Run("finalize failure", func(t *testing.T) {
		store, objects, meta := newTestStore(t, 4)
		meta.failFinalize = true

		_, err := store.Put(ctx, bytes.NewReader(testPayload(12)), "audio/mpeg", "track.mp3")
		require.Error(t, err)
		assert.Equal(t, 0, objects.objectCount())
		assert.Empty(t, meta.blobs)
	})
}

func TestUnfinalizedBlobIsInvisible(t *testing.T) {
	ctx := context.Background()
	store, _, meta := newTestStore(t, 4)

	// Simulate a write in progress: blob and chunk records exist but the
	// blob was never finalized.
	require.NoError(t, meta.CreateBlob(ctx, &models.Blob{ID: "in-progress"}))
	require.NoError(t, meta.CreateChunk(ctx, &models.Chunk{ID: "c0", BlobID: "in-progress"}))

	exists, err := store.Exists(ctx, "in-progress")
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = store.Get(ctx, "in-progress")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestGetUnknownBlob(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t, 4)

	_, _, err := store.Get(ctx, "no-such-blob")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	exists, err := store.Exists(ctx, "no-such-blob")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNotReadyFailsFast(t *testing.T) {
	ctx := context.Background()
	store := blobstore.New(newFakeObjects(), newFakeMeta(), chunker.NewChunker(4))

	assert.False(t, store.Ready())

	_, err := store.Put(ctx, bytes.NewReader(testPayload(4)), "audio/mpeg", "track.mp3")
	assert.ErrorIs(t, err, blobstore.ErrNotReady)

	_, _, err = store.Get(ctx, "anything")
	assert.ErrorIs(t, err, blobstore.ErrNotReady)

	_, err = store.Exists(ctx, "anything")
	assert.ErrorIs(t, err, blobstore.ErrNotReady)

	require.NoError(t, store.Init(ctx))
	assert.True(t, store.Ready())

	id, err := store.Put(ctx, bytes.NewReader(testPayload(4)), "audio/mpeg", "track.mp3")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestCorruptedChunkFailsRead(t *testing.T) {
	ctx := context.Background()
	store, objects, _ := newTestStore(t, 4)

	id, err := store.Put(ctx, bytes.NewReader(testPayload(8)), "audio/mpeg", "track.mp3")
	require.NoError(t, err)

	// Flip a byte in the second stored chunk
	objects.mu.Lock()
	key := fmt.Sprintf("chunks/%s/1", id)
	objects.objects[key][0] ^= 0xff
	objects.mu.Unlock()

	_, reader, err := store.Get(ctx, id)
	require.NoError(t, err)
	defer reader.Close()

	_, err = io.ReadAll(reader)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}
