package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/soundpost/internal/models"
	"github.com/maneesh/soundpost/internal/repository"
	"github.com/maneesh/soundpost/internal/repository/memory"
)

func TestPosts(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	require.NoError(t, repo.CreateUser(ctx, &models.User{ID: "u1", Username: "ada"}))
	require.NoError(t, repo.CreatePost(ctx, &models.Post{ID: "p1", TrackName: "First", TrackLink: "b1", PostedBy: "u1"}))
	require.NoError(t, repo.CreatePost(ctx, &models.Post{ID: "p2", TrackName: "Second", TrackLink: "b2", PostedBy: "u1"}))

	t.Run("get fills owner username", func(t *testing.T) {
		post, err := repo.GetPost(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "First", post.TrackName)
		assert.Equal(t, "ada", post.PostedByName)
	})

	t.Run("create rejects missing track link", func(t *testing.T) {
		err := repo.CreatePost(ctx, &models.Post{ID: "p3", TrackName: "No file"})
		assert.ErrorIs(t, err, repository.ErrMissingTrackLink)
	})

	t.Run("get unknown post", func(t *testing.T) {
		_, err := repo.GetPost(ctx, "nope")
		assert.ErrorIs(t, err, repository.ErrPostNotFound)
	})

	t.Run("list preserves insertion order", func(t *testing.T) {
		posts, err := repo.ListPosts(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, "p1", posts[0].ID)
		assert.Equal(t, "p2", posts[1].ID)
	})

	t.Run("returned posts are copies", func(t *testing.T) {
		post, err := repo.GetPost(ctx, "p1")
		require.NoError(t, err)
		post.TrackName = "mutated"

		again, err := repo.GetPost(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "First", again.TrackName)
	})
}

func TestAppendComment(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	require.NoError(t, repo.CreatePost(ctx, &models.Post{ID: "p1", TrackLink: "b1"}))

	for _, c := range []string{"C1", "C2", "C3"} {
		_, err := repo.AppendComment(ctx, "p1", c)
		require.NoError(t, err)
	}

	post, err := repo.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2", "C3"}, post.Comments)

	_, err = repo.AppendComment(ctx, "nope", "hello")
	assert.ErrorIs(t, err, repository.ErrPostNotFound)
}

func TestAppendOwnedPost(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	require.NoError(t, repo.CreateUser(ctx, &models.User{ID: "u1", Username: "ada"}))

	user, err := repo.AppendOwnedPost(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, user.PostIDs)

	// Appends are not idempotent: a retry duplicates the link
	user, err = repo.AppendOwnedPost(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p1"}, user.PostIDs)

	_, err = repo.AppendOwnedPost(ctx, "ghost", "p1")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	_, err = repo.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}
