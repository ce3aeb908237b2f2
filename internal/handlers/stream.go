package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/soundpost/internal/blobstore"
	"github.com/maneesh/soundpost/internal/posts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StreamHandler handles audio streaming requests
type StreamHandler struct {
	service *posts.Service
	dev     bool
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(service *posts.Service, dev bool) *StreamHandler {
	return &StreamHandler{service: service, dev: dev}
}

// ServeHTTP handles GET /api/stream/{fileId}. The object is delivered
// start-to-end as one continuous byte stream; there is no range serving.
func (sh *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "stream_track",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	vars := mux.Vars(r)
	fileID := vars["fileId"]
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "missing fileId in path", nil, sh.dev)
		return
	}

	span.SetAttributes(attribute.String("blob_id", fileID))
	log.Printf("Streaming track: %s", fileID)

	info, reader, err := sh.service.OpenTrack(ctx, fileID)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, blobstore.ErrNotFound):
			writeError(w, http.StatusNotFound, "File not found", nil, sh.dev)
		case errors.Is(err, blobstore.ErrNotReady):
			writeError(w, http.StatusInternalServerError, "Blob store is not initialized", nil, sh.dev)
		default:
			writeError(w, http.StatusBadRequest, "Unable to stream file", err, sh.dev)
		}
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s", info.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size))
	w.WriteHeader(http.StatusOK)

	// Headers are out the door; a failure from here on (including the
	// client going away) just ends the stream.
	written, err := io.Copy(w, reader)
	if err != nil {
		log.Printf("Stream for %s ended after %d bytes: %v", fileID, written, err)
		return
	}

	span.SetAttributes(attribute.Int64("bytes_streamed", written))
	log.Printf("Stream completed: %s (%d bytes)", fileID, written)
}
