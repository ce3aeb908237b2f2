// Package memory provides an in-memory Repository for tests and local
// development.
package memory

import (
	"context"
	"sync"

	"github.com/maneesh/soundpost/internal/models"
	"github.com/maneesh/soundpost/internal/repository"
)

// Repository keeps posts and users in maps guarded by a RWMutex. Posts
// list in insertion order; comment and ownership appends are atomic under
// the lock.
type Repository struct {
	mu        sync.RWMutex
	posts     map[string]*models.Post
	postOrder []string
	users     map[string]*models.User
}

// New creates an empty in-memory repository
func New() *Repository {
	return &Repository{
		posts: make(map[string]*models.Post),
		users: make(map[string]*models.User),
	}
}

func copyPost(p *models.Post) *models.Post {
	out := *p
	out.Comments = append([]string(nil), p.Comments...)
	return &out
}

func copyUser(u *models.User) *models.User {
	out := *u
	out.PostIDs = append([]string(nil), u.PostIDs...)
	return &out
}

// CreatePost stores a post record. The post must reference a stored
// blob; all other fields pass through verbatim.
func (r *Repository) CreatePost(ctx context.Context, post *models.Post) error {
	if post.TrackLink == "" {
		return repository.ErrMissingTrackLink
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.posts[post.ID] = copyPost(post)
	r.postOrder = append(r.postOrder, post.ID)
	return nil
}

// GetPost returns a post with its owner's username filled in
func (r *Repository) GetPost(ctx context.Context, id string) (*models.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, exists := r.posts[id]
	if !exists {
		return nil, repository.ErrPostNotFound
	}

	out := copyPost(post)
	if user, ok := r.users[post.PostedBy]; ok {
		out.PostedByName = user.Username
	}
	return out, nil
}

// ListPosts returns all posts in insertion order
func (r *Repository) ListPosts(ctx context.Context) ([]*models.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var posts []*models.Post
	for _, id := range r.postOrder {
		post := copyPost(r.posts[id])
		if user, ok := r.users[post.PostedBy]; ok {
			post.PostedByName = user.Username
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// AppendComment appends to the post's ordered comment list and returns
// the updated post
func (r *Repository) AppendComment(ctx context.Context, postID, comment string) (*models.Post, error) {
	r.mu.Lock()
	post, exists := r.posts[postID]
	if !exists {
		r.mu.Unlock()
		return nil, repository.ErrPostNotFound
	}
	post.Comments = append(post.Comments, comment)
	r.mu.Unlock()

	return r.GetPost(ctx, postID)
}

// CreateUser stores a user record
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[user.ID] = copyUser(user)
	return nil
}

// GetUser returns a user with their owned post ids
func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return copyUser(user), nil
}

// AppendOwnedPost links a post into the user's owned-post list and
// returns the updated user. Not idempotent: calling twice duplicates
// the link.
func (r *Repository) AppendOwnedPost(ctx context.Context, userID, postID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[userID]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	user.PostIDs = append(user.PostIDs, postID)
	return copyUser(user), nil
}
