package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/maneesh/soundpost/internal/posts"
	"github.com/maneesh/soundpost/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PostsHandler serves the post listing, lookup and comment endpoints
type PostsHandler struct {
	service *posts.Service
	dev     bool
}

// NewPostsHandler creates a new posts handler
func NewPostsHandler(service *posts.Service, dev bool) *PostsHandler {
	return &PostsHandler{service: service, dev: dev}
}

// List handles GET /api/music
func (ph *PostsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_posts")
	defer span.End()

	musicPosts, err := ph.service.ListPosts(ctx)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusBadRequest, "Music posts could not be retrieved", err, ph.dev)
		return
	}
	if len(musicPosts) == 0 {
		writeError(w, http.StatusNotFound, "No music posts yet", nil, ph.dev)
		return
	}

	span.SetAttributes(attribute.Int("post_count", len(musicPosts)))
	writeJSON(w, http.StatusOK, map[string]any{"musicPosts": musicPosts})
}

// Get handles GET /api/music/{id}
func (ph *PostsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "get_post")
	defer span.End()

	postID := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("post_id", postID))

	musicPost, err := ph.service.GetPost(ctx, postID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrPostNotFound) {
			writeError(w, http.StatusNotFound, "Music post not found", nil, ph.dev)
		} else {
			writeError(w, http.StatusBadRequest, "Music post could not be retrieved", err, ph.dev)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"musicPost": musicPost})
}

// Comment handles POST /api/music/{id}/comment. The comment text arrives
// as a JSON body field or a form field, both named "comment".
func (ph *PostsHandler) Comment(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "submit_comment",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	postID := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("post_id", postID))

	var comment string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Comment string `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			span.RecordError(err)
			writeError(w, http.StatusBadRequest, "Invalid comment body", err, ph.dev)
			return
		}
		comment = body.Comment
	} else {
		comment = r.FormValue("comment")
	}

	musicPost, err := ph.service.AddComment(ctx, postID, comment)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrPostNotFound) {
			writeError(w, http.StatusNotFound, "Music post not found", nil, ph.dev)
		} else {
			writeError(w, http.StatusInternalServerError, "Comment could not be submitted", err, ph.dev)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Comment submitted",
		"musicPost": musicPost,
	})
}

// BucketStatus handles GET /api/bucket-status, the readiness probe
// consumed by deployment tooling.
func (ph *PostsHandler) BucketStatus(w http.ResponseWriter, r *http.Request) {
	if ph.service.StoreReady() {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Blob store is ready"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "Blob store is not initialized"})
}
