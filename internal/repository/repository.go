package repository

import (
	"context"
	"errors"

	"github.com/maneesh/soundpost/internal/models"
)

// Error types
var (
	// ErrPostNotFound indicates a music post was not found
	ErrPostNotFound = errors.New("music post not found")

	// ErrUserNotFound indicates a user was not found
	ErrUserNotFound = errors.New("user not found")

	// ErrMissingTrackLink indicates a post was submitted without an
	// object reference
	ErrMissingTrackLink = errors.New("post requires a track link")
)

// Repository persists post and user records. Implementations must keep
// comment order stable and make list appends atomic at the storage layer,
// so concurrent appends against the same record never drop each other.
// Appends are not idempotent: retrying duplicates the entry.
type Repository interface {
	// Post operations
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListPosts(ctx context.Context) ([]*models.Post, error)
	AppendComment(ctx context.Context, postID, comment string) (*models.Post, error)

	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	AppendOwnedPost(ctx context.Context, userID, postID string) (*models.User, error)
}
