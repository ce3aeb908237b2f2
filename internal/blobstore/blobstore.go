// Package blobstore persists arbitrarily large binary objects as ordered
// sequences of fixed-size chunks and streams them back with bounded
// memory: one chunk is in flight at a time on both the write and the
// read path.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/soundpost/internal/chunker"
	"github.com/maneesh/soundpost/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("soundpost-blobstore")

// Error types
var (
	// ErrNotFound indicates no finalized blob exists under the given id
	ErrNotFound = errors.New("blob not found")

	// ErrNotReady indicates the store has not completed initialization
	ErrNotReady = errors.New("blob store not initialized")
)

// BlobInfo describes a stored blob's declared metadata.
type BlobInfo struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64
}

// BlobStore stores and streams binary objects. A blob is either fully
// persisted or not visible at all: Get and Exists never observe a write
// in progress. All operations fail fast with ErrNotReady until Init has
// completed.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader, contentType, filename string) (string, error)
	Get(ctx context.Context, id string) (*BlobInfo, io.ReadCloser, error)
	Exists(ctx context.Context, id string) (bool, error)
	Ready() bool
}

// ChunkObjectStore persists raw chunk payloads under object keys.
type ChunkObjectStore interface {
	EnsureBucket(ctx context.Context) error
	UploadChunk(ctx context.Context, objectKey string, data []byte) error
	DownloadChunk(ctx context.Context, objectKey string) ([]byte, error)
	RemoveChunk(ctx context.Context, objectKey string) error
}

// MetadataStore persists blob and chunk records. GetBlob returns
// (nil, nil) for ids that are unknown or not yet finalized.
type MetadataStore interface {
	CreateBlob(ctx context.Context, blob *models.Blob) error
	FinalizeBlob(ctx context.Context, blobID string, size int64, chunkCount int) error
	GetBlob(ctx context.Context, blobID string) (*models.Blob, error)
	DeleteBlob(ctx context.Context, blobID string) error
	CreateChunk(ctx context.Context, chunk *models.Chunk) error
	GetChunks(ctx context.Context, blobID string) ([]*models.Chunk, error)
}

// Store is the production BlobStore over a chunk object store and a
// metadata store.
type Store struct {
	objects ChunkObjectStore
	meta    MetadataStore
	chunker *chunker.Chunker
	ready   atomic.Bool
}

// New creates a Store. It is not usable until Init succeeds.
func New(objects ChunkObjectStore, meta MetadataStore, ch *chunker.Chunker) *Store {
	return &Store{
		objects: objects,
		meta:    meta,
		chunker: ch,
	}
}

// Init bootstraps the chunk bucket and marks the store ready. Callers
// may run it in the background and gate traffic on Ready.
func (s *Store) Init(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "blobstore.init")
	defer span.End()

	if err := s.objects.EnsureBucket(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	s.ready.Store(true)
	log.Println("Blob store initialized")
	return nil
}

// Ready reports whether Init has completed
func (s *Store) Ready() bool {
	return s.ready.Load()
}

// Put consumes the reader, writes it as an ordered chunk sequence under a
// fresh blob id and finalizes the blob only after every chunk is durably
// written. On any failure the already-written chunks and the unfinalized
// blob record are removed best-effort; no partial object stays visible.
func (s *Store) Put(ctx context.Context, r io.Reader, contentType, filename string) (string, error) {
	if !s.Ready() {
		return "", ErrNotReady
	}

	blobID := uuid.New().String()

	ctx, span := tracer.Start(ctx, "blobstore.put",
		trace.WithAttributes(
			attribute.String("blob_id", blobID),
			attribute.String("filename", filename),
			attribute.String("content_type", contentType),
		),
	)
	defer span.End()

	blob := &models.Blob{
		ID:          blobID,
		Filename:    filename,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}
	if err := s.meta.CreateBlob(ctx, blob); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to create blob record: %w", err)
	}

	var uploadedKeys []string
	totalSize, chunkCount, err := s.chunker.Split(r, func(cd *models.ChunkData) error {
		objectKey := fmt.Sprintf("chunks/%s/%d", blobID, cd.OrderIndex)

		if err := s.objects.UploadChunk(ctx, objectKey, cd.Data); err != nil {
			return fmt.Errorf("failed to upload chunk %d: %w", cd.OrderIndex, err)
		}
		uploadedKeys = append(uploadedKeys, objectKey)

		chunk := &models.Chunk{
			ID:         uuid.New().String(),
			BlobID:     blobID,
			OrderIndex: cd.OrderIndex,
			Hash:       cd.Hash,
			ObjectKey:  objectKey,
			Size:       cd.Size,
		}
		if err := s.meta.CreateChunk(ctx, chunk); err != nil {
			return fmt.Errorf("failed to record chunk %d: %w", cd.OrderIndex, err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.cleanup(ctx, blobID, uploadedKeys)
		return "", err
	}

	if err := s.meta.FinalizeBlob(ctx, blobID, totalSize, chunkCount); err != nil {
		span.RecordError(err)
		s.cleanup(ctx, blobID, uploadedKeys)
		return "", fmt.Errorf("failed to finalize blob: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("size", totalSize),
		attribute.Int("chunk_count", chunkCount),
	)
	log.Printf("Blob stored: %s (%d bytes, %d chunks)", blobID, totalSize, chunkCount)
	return blobID, nil
}

// cleanup removes the leftovers of a failed Put. Best effort: the blob
// was never finalized so it is invisible either way.
func (s *Store) cleanup(ctx context.Context, blobID string, objectKeys []string) {
	for _, key := range objectKeys {
		if err := s.objects.RemoveChunk(ctx, key); err != nil {
			log.Printf("Warning: failed to remove chunk %s during cleanup: %v", key, err)
		}
	}
	if err := s.meta.DeleteBlob(ctx, blobID); err != nil {
		log.Printf("Warning: failed to remove blob record %s during cleanup: %v", blobID, err)
	}
}

// Get resolves a finalized blob and returns its metadata plus a lazy
// reader over its bytes. Chunks are downloaded one at a time as the
// caller drains the reader, each verified against its recorded hash.
func (s *Store) Get(ctx context.Context, id string) (*BlobInfo, io.ReadCloser, error) {
	if !s.Ready() {
		return nil, nil, ErrNotReady
	}

	ctx, span := tracer.Start(ctx, "blobstore.get",
		trace.WithAttributes(
			attribute.String("blob_id", id),
		),
	)
	defer span.End()

	blob, err := s.meta.GetBlob(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	if blob == nil {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil, ErrNotFound
	}

	chunks, err := s.meta.GetChunks(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	info := &BlobInfo{
		ID:          blob.ID,
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		Size:        blob.Size,
	}
	span.SetAttributes(
		attribute.Int64("size", blob.Size),
		attribute.Int("chunk_count", len(chunks)),
	)

	return info, &chunkReader{ctx: ctx, objects: s.objects, chunks: chunks}, nil
}

// Exists reports whether a finalized blob is stored under the id
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if !s.Ready() {
		return false, ErrNotReady
	}

	blob, err := s.meta.GetBlob(ctx, id)
	if err != nil {
		return false, err
	}
	return blob != nil, nil
}

// chunkReader streams a blob's chunks in order_index order. The next
// chunk is fetched only once the previous one has been fully consumed.
type chunkReader struct {
	ctx     context.Context
	objects ChunkObjectStore
	chunks  []*models.Chunk

	idx int
	buf []byte
	off int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for r.off == len(r.buf) {
		if r.idx == len(r.chunks) {
			return 0, io.EOF
		}
		meta := r.chunks[r.idx]

		data, err := r.objects.DownloadChunk(r.ctx, meta.ObjectKey)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch chunk %d: %w", meta.OrderIndex, err)
		}
		if !chunker.VerifyChunkHash(data, meta.Hash) {
			return 0, fmt.Errorf("hash mismatch for chunk %d of blob %s", meta.OrderIndex, meta.BlobID)
		}

		r.buf = data
		r.off = 0
		r.idx++
	}

	n := copy(p, r.buf[r.off:])
	r.off += n
	return n, nil
}

func (r *chunkReader) Close() error {
	r.buf = nil
	r.off = 0
	r.idx = len(r.chunks)
	return nil
}
