package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/maneesh/soundpost/internal/blobstore"
	"github.com/maneesh/soundpost/internal/posts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("soundpost-handlers")

// maxUploadMemory caps how much of a multipart body is buffered in
// memory before spilling to disk.
const maxUploadMemory = 32 << 20

// UploadHandler handles track upload requests
type UploadHandler struct {
	service *posts.Service
	dev     bool
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(service *posts.Service, dev bool) *UploadHandler {
	return &UploadHandler{service: service, dev: dev}
}

// ServeHTTP handles POST /upload/file: a multipart payload with a "file"
// part plus the track metadata fields.
func (uh *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_track",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		span.RecordError(err)
		writeError(w, http.StatusBadRequest, "No track file uploaded", err, uh.dev)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No track file uploaded", err, uh.dev)
		return
	}
	defer file.Close()

	fields := posts.UploadFields{
		TrackName:    r.FormValue("trackName"),
		Artist:       r.FormValue("artist"),
		Album:        r.FormValue("album"),
		RecordedDate: r.FormValue("recordedDate"),
		CoverArt:     r.FormValue("coverArt"),
		SourcedFrom:  r.FormValue("sourcedFrom"),
		Genre:        r.FormValue("genre"),
		UserID:       r.FormValue("userID"),
	}
	fields.AvailableForSale, _ = strconv.ParseBool(r.FormValue("availableForSale"))
	fields.Price, _ = strconv.ParseFloat(r.FormValue("price"), 64)

	span.SetAttributes(
		attribute.String("track_name", fields.TrackName),
		attribute.String("file_name", header.Filename),
		attribute.Int64("file_size", header.Size),
	)
	log.Printf("Uploading track: %s (file: %s, %d bytes)", fields.TrackName, header.Filename, header.Size)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	post, err := uh.service.CreateFromUpload(ctx, file, contentType, header.Filename, fields)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, posts.ErrNoTrackFile):
			writeError(w, http.StatusBadRequest, "No track file uploaded", nil, uh.dev)
		case errors.Is(err, blobstore.ErrNotReady):
			writeError(w, http.StatusInternalServerError, "Blob store is not initialized", nil, uh.dev)
		default:
			writeError(w, http.StatusBadRequest, "Music post could not be saved", err, uh.dev)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Music Posted!",
		"post":    post,
	})
}
