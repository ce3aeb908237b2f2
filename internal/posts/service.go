// Package posts implements the track post workflows: creating a post
// from an upload, listing and fetching posts, appending comments and
// resolving a post's audio object for streaming.
package posts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/soundpost/internal/blobstore"
	"github.com/maneesh/soundpost/internal/models"
	"github.com/maneesh/soundpost/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("soundpost-posts")

// ErrNoTrackFile indicates an upload arrived without a track payload
var ErrNoTrackFile = errors.New("no track file uploaded")

// Cache holds post records between reads. Implemented by the Redis
// client; cache failures never fail a request.
type Cache interface {
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	SetPost(ctx context.Context, post *models.Post) error
	InvalidatePost(ctx context.Context, postID string) error
}

// UploadFields carries the metadata fields submitted alongside a track.
// They pass through verbatim; only the payload itself is validated.
type UploadFields struct {
	TrackName        string
	Artist           string
	Album            string
	RecordedDate     string
	CoverArt         string
	SourcedFrom      string
	Genre            string
	AvailableForSale bool
	Price            float64
	UserID           string
}

// Service orchestrates posts over the blob store and the repository
type Service struct {
	blobs blobstore.BlobStore
	repo  repository.Repository
	cache Cache
}

// NewService creates a post service. cache may be nil.
func NewService(blobs blobstore.BlobStore, repo repository.Repository, cache Cache) *Service {
	return &Service{
		blobs: blobs,
		repo:  repo,
		cache: cache,
	}
}

// CreateFromUpload writes the track blob, creates the post record
// referencing it, then links the post to its owner best-effort.
//
// Ordering is the only consistency guarantee: the blob is finalized
// before the post exists, and the post exists before the owner link. A
// post-create failure leaves the blob orphaned; a link failure (unknown
// user included) is logged and swallowed, the post is still returned.
func (s *Service) CreateFromUpload(ctx context.Context, track io.Reader, contentType, filename string, fields UploadFields) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "posts.create_from_upload",
		trace.WithAttributes(
			attribute.String("track_name", fields.TrackName),
			attribute.String("user_id", fields.UserID),
		),
	)
	defer span.End()

	if track == nil {
		return nil, ErrNoTrackFile
	}

	// Step 1: Persist the track blob
	blobID, err := s.blobs.Put(ctx, track, contentType, filename)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("blob_id", blobID))
	log.Printf("Track blob stored: %s (file: %s)", blobID, filename)

	// Confirm the blob is visible before a post references it
	ok, err := s.blobs.Exists(ctx, blobID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("stored blob %s is not visible: %w", blobID, blobstore.ErrNotFound)
	}

	// Step 2: Create the post referencing the finalized blob
	post := &models.Post{
		ID:               uuid.New().String(),
		TrackName:        fields.TrackName,
		TrackLink:        blobID,
		Artist:           fields.Artist,
		Album:            fields.Album,
		RecordedDate:     fields.RecordedDate,
		CoverArt:         fields.CoverArt,
		SourcedFrom:      fields.SourcedFrom,
		Genre:            fields.Genre,
		AvailableForSale: fields.AvailableForSale,
		Price:            fields.Price,
		PostedBy:         fields.UserID,
		CreatedAt:        time.Now(),
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	span.SetAttributes(attribute.String("post_id", post.ID))

	// Step 3: Link the post to its owner. Failures here do not undo the
	// post; the upload succeeded from the caller's point of view.
	if fields.UserID != "" {
		if _, err := s.repo.AppendOwnedPost(ctx, fields.UserID, post.ID); err != nil {
			log.Printf("Warning: failed to link post %s to user %s: %v", post.ID, fields.UserID, err)
		}
	}

	log.Printf("Music posted: %s (track: %s)", post.ID, fields.TrackName)
	return post, nil
}

// GetPost returns one post, read through the cache when one is configured
func (s *Service) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "posts.get_post",
		trace.WithAttributes(
			attribute.String("post_id", postID),
		),
	)
	defer span.End()

	if s.cache != nil {
		post, err := s.cache.GetPost(ctx, postID)
		if err != nil {
			log.Printf("Warning: post cache read failed: %v", err)
		} else if post != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return post, nil
		}
	}

	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetPost(ctx, post); err != nil {
			log.Printf("Warning: failed to update post cache: %v", err)
		}
	}

	return post, nil
}

// ListPosts returns all posts in insertion order
func (s *Service) ListPosts(ctx context.Context) ([]*models.Post, error) {
	ctx, span := tracer.Start(ctx, "posts.list_posts")
	defer span.End()

	posts, err := s.repo.ListPosts(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("post_count", len(posts)))
	return posts, nil
}

// AddComment appends a comment to the post's ordered comment list and
// returns the updated post
func (s *Service) AddComment(ctx context.Context, postID, comment string) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "posts.add_comment",
		trace.WithAttributes(
			attribute.String("post_id", postID),
		),
	)
	defer span.End()

	post, err := s.repo.AppendComment(ctx, postID, comment)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidatePost(ctx, postID); err != nil {
			log.Printf("Warning: failed to invalidate post cache: %v", err)
		}
	}

	return post, nil
}

// OpenTrack resolves a stored audio object for streaming. The returned
// reader fetches chunks lazily; the caller must drain and close it.
func (s *Service) OpenTrack(ctx context.Context, blobID string) (*blobstore.BlobInfo, io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "posts.open_track",
		trace.WithAttributes(
			attribute.String("blob_id", blobID),
		),
	)
	defer span.End()

	info, reader, err := s.blobs.Get(ctx, blobID)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.String("content_type", info.ContentType),
		attribute.Int64("size", info.Size),
	)
	return info, reader, nil
}

// StoreReady reports whether the underlying blob store finished
// initialization
func (s *Service) StoreReady() bool {
	return s.blobs.Ready()
}
