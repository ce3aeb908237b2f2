package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/maneesh/soundpost/internal/chunker"
	"github.com/maneesh/soundpost/internal/models"
)

// Memory is an in-memory BlobStore used by tests and local development.
// It keeps the contract of Store, including the readiness gate and
// chunked persistence.
type Memory struct {
	chunker *chunker.Chunker
	ready   atomic.Bool

	mu    sync.RWMutex
	blobs map[string]*memoryBlob
}

type memoryBlob struct {
	info   BlobInfo
	chunks [][]byte
}

// NewMemory creates an in-memory blob store. Like the production store
// it rejects traffic until Init is called.
func NewMemory(ch *chunker.Chunker) *Memory {
	return &Memory{
		chunker: ch,
		blobs:   make(map[string]*memoryBlob),
	}
}

// Init marks the store ready
func (m *Memory) Init(ctx context.Context) error {
	m.ready.Store(true)
	return nil
}

// Ready reports whether Init has completed
func (m *Memory) Ready() bool {
	return m.ready.Load()
}

// Put stores the reader's bytes as a chunk sequence under a fresh id.
// The blob becomes visible only once fully read: a failed read publishes
// nothing.
func (m *Memory) Put(ctx context.Context, r io.Reader, contentType, filename string) (string, error) {
	if !m.Ready() {
		return "", ErrNotReady
	}

	blob := &memoryBlob{}
	totalSize, _, err := m.chunker.Split(r, func(cd *models.ChunkData) error {
		blob.chunks = append(blob.chunks, cd.Data)
		return nil
	})
	if err != nil {
		return "", err
	}

	blobID := uuid.New().String()
	blob.info = BlobInfo{
		ID:          blobID,
		Filename:    filename,
		ContentType: contentType,
		Size:        totalSize,
	}

	m.mu.Lock()
	m.blobs[blobID] = blob
	m.mu.Unlock()

	return blobID, nil
}

// Get returns the blob's metadata and a reader over its reassembled bytes
func (m *Memory) Get(ctx context.Context, id string) (*BlobInfo, io.ReadCloser, error) {
	if !m.Ready() {
		return nil, nil, ErrNotReady
	}

	m.mu.RLock()
	blob, exists := m.blobs[id]
	m.mu.RUnlock()

	if !exists {
		return nil, nil, ErrNotFound
	}

	info := blob.info
	data := chunker.Reassemble(blob.chunks)
	return &info, io.NopCloser(bytes.NewReader(data)), nil
}

// Exists reports whether a blob is stored under the id
func (m *Memory) Exists(ctx context.Context, id string) (bool, error) {
	if !m.Ready() {
		return false, ErrNotReady
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.blobs[id]
	return exists, nil
}
