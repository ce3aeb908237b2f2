package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/maneesh/soundpost/internal/models"
	"github.com/maneesh/soundpost/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MySQLClient wraps metadata database operations with tracing. It backs
// both the blob/chunk metadata used by the blob store and the post/user
// repository.
type MySQLClient struct {
	db *sql.DB
}

// NewMySQLClient initializes a new MySQL client
func NewMySQLClient(dsn string) (*MySQLClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &MySQLClient{db: db}, nil
}

// Close closes the database connection
func (mc *MySQLClient) Close() error {
	return mc.db.Close()
}

// EnsureSchema creates the metadata tables if they do not exist
func (mc *MySQLClient) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS blobs (
			id CHAR(36) PRIMARY KEY,
			filename VARCHAR(512) NOT NULL,
			content_type VARCHAR(255) NOT NULL,
			size BIGINT NOT NULL,
			chunk_count INT NOT NULL,
			finalized TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id CHAR(36) PRIMARY KEY,
			blob_id CHAR(36) NOT NULL,
			order_index INT NOT NULL,
			hash CHAR(64) NOT NULL,
			object_key VARCHAR(512) NOT NULL,
			size BIGINT NOT NULL,
			INDEX idx_chunks_blob (blob_id, order_index)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id CHAR(36) PRIMARY KEY,
			username VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id CHAR(36) PRIMARY KEY,
			track_name VARCHAR(512) NOT NULL,
			track_link CHAR(36) NOT NULL,
			artist VARCHAR(512) NOT NULL,
			album VARCHAR(512) NOT NULL,
			recorded_date VARCHAR(64) NOT NULL,
			cover_art VARCHAR(1024) NOT NULL,
			sourced_from VARCHAR(1024) NOT NULL,
			genre VARCHAR(255) NOT NULL,
			available_for_sale TINYINT(1) NOT NULL DEFAULT 0,
			price DOUBLE NOT NULL DEFAULT 0,
			posted_by CHAR(36) NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			post_id CHAR(36) NOT NULL,
			body TEXT NOT NULL,
			INDEX idx_comments_post (post_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS user_posts (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id CHAR(36) NOT NULL,
			post_id CHAR(36) NOT NULL,
			INDEX idx_user_posts_user (user_id, seq)
		)`,
	}

	for _, stmt := range statements {
		if _, err := mc.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreateBlob inserts an unfinalized blob record with tracing
func (mc *MySQLClient) CreateBlob(ctx context.Context, blob *models.Blob) error {
	ctx, span := tracer.Start(ctx, "mysql.create_blob",
		trace.WithAttributes(
			attribute.String("blob_id", blob.ID),
			attribute.String("filename", blob.Filename),
		),
	)
	defer span.End()

	query := `INSERT INTO blobs (id, filename, content_type, size, chunk_count, finalized, created_at)
			  VALUES (?, ?, ?, ?, ?, 0, ?)`

	_, err := mc.db.ExecContext(ctx, query, blob.ID, blob.Filename, blob.ContentType, blob.Size, blob.ChunkCount, blob.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert blob: %w", err)
	}

	return nil
}

// FinalizeBlob marks a blob visible once every chunk is durably written
func (mc *MySQLClient) FinalizeBlob(ctx context.Context, blobID string, size int64, chunkCount int) error {
	ctx, span := tracer.Start(ctx, "mysql.finalize_blob",
		trace.WithAttributes(
			attribute.String("blob_id", blobID),
			attribute.Int64("size", size),
			attribute.Int("chunk_count", chunkCount),
		),
	)
	defer span.End()

	query := `UPDATE blobs SET size = ?, chunk_count = ?, finalized = 1 WHERE id = ?`

	_, err := mc.db.ExecContext(ctx, query, size, chunkCount, blobID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to finalize blob: %w", err)
	}

	return nil
}

// GetBlob retrieves a finalized blob record. Unknown and unfinalized
// blobs both come back as (nil, nil): a partial write is never visible.
func (mc *MySQLClient) GetBlob(ctx context.Context, blobID string) (*models.Blob, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_blob",
		trace.WithAttributes(
			attribute.String("blob_id", blobID),
		),
	)
	defer span.End()

	query := `SELECT id, filename, content_type, size, chunk_count, finalized, created_at
			  FROM blobs WHERE id = ? AND finalized = 1`

	var blob models.Blob
	err := mc.db.QueryRowContext(ctx, query, blobID).Scan(
		&blob.ID,
		&blob.Filename,
		&blob.ContentType,
		&blob.Size,
		&blob.ChunkCount,
		&blob.Finalized,
		&blob.CreatedAt,
	)

	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query blob: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &blob, nil
}

// DeleteBlob removes a blob record and its chunk records. Used for
// cleanup after a failed write, before the blob ever became visible.
func (mc *MySQLClient) DeleteBlob(ctx context.Context, blobID string) error {
	ctx, span := tracer.Start(ctx, "mysql.delete_blob",
		trace.WithAttributes(
			attribute.String("blob_id", blobID),
		),
	)
	defer span.End()

	if _, err := mc.db.ExecContext(ctx, `DELETE FROM chunks WHERE blob_id = ?`, blobID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := mc.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, blobID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	return nil
}

// CreateChunk inserts chunk metadata with tracing
func (mc *MySQLClient) CreateChunk(ctx context.Context, chunk *models.Chunk) error {
	ctx, span := tracer.Start(ctx, "mysql.create_chunk",
		trace.WithAttributes(
			attribute.String("chunk_id", chunk.ID),
			attribute.String("blob_id", chunk.BlobID),
			attribute.Int("order_index", chunk.OrderIndex),
		),
	)
	defer span.End()

	query := `INSERT INTO chunks (id, blob_id, order_index, hash, object_key, size)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := mc.db.ExecContext(ctx, query, chunk.ID, chunk.BlobID, chunk.OrderIndex, chunk.Hash, chunk.ObjectKey, chunk.Size)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}

// GetChunks retrieves all chunks for a blob ordered by order_index
func (mc *MySQLClient) GetChunks(ctx context.Context, blobID string) ([]*models.Chunk, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_chunks",
		trace.WithAttributes(
			attribute.String("blob_id", blobID),
		),
	)
	defer span.End()

	query := `SELECT id, blob_id, order_index, hash, object_key, size
			  FROM chunks
			  WHERE blob_id = ?
			  ORDER BY order_index ASC`

	rows, err := mc.db.QueryContext(ctx, query, blobID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.BlobID,
			&chunk.OrderIndex,
			&chunk.Hash,
			&chunk.ObjectKey,
			&chunk.Size,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))
	return chunks, nil
}

// CreatePost inserts a post record with tracing. The post must reference
// a stored blob; all other fields pass through verbatim.
func (mc *MySQLClient) CreatePost(ctx context.Context, post *models.Post) error {
	if post.TrackLink == "" {
		return repository.ErrMissingTrackLink
	}

	ctx, span := tracer.Start(ctx, "mysql.create_post",
		trace.WithAttributes(
			attribute.String("post_id", post.ID),
			attribute.String("track_name", post.TrackName),
		),
	)
	defer span.End()

	query := `INSERT INTO posts (id, track_name, track_link, artist, album, recorded_date,
			  cover_art, sourced_from, genre, available_for_sale, price, posted_by, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := mc.db.ExecContext(ctx, query,
		post.ID, post.TrackName, post.TrackLink, post.Artist, post.Album, post.RecordedDate,
		post.CoverArt, post.SourcedFrom, post.Genre, post.AvailableForSale, post.Price,
		post.PostedBy, post.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert post: %w", err)
	}

	return nil
}

const postColumns = `p.id, p.track_name, p.track_link, p.artist, p.album, p.recorded_date,
	p.cover_art, p.sourced_from, p.genre, p.available_for_sale, p.price, p.posted_by,
	COALESCE(u.username, ''), p.created_at`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var post models.Post
	err := row.Scan(
		&post.ID,
		&post.TrackName,
		&post.TrackLink,
		&post.Artist,
		&post.Album,
		&post.RecordedDate,
		&post.CoverArt,
		&post.SourcedFrom,
		&post.Genre,
		&post.AvailableForSale,
		&post.Price,
		&post.PostedBy,
		&post.PostedByName,
		&post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPost retrieves a post by ID with its comments and owner username
func (mc *MySQLClient) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_post",
		trace.WithAttributes(
			attribute.String("post_id", postID),
		),
	)
	defer span.End()

	query := `SELECT ` + postColumns + `
			  FROM posts p LEFT JOIN users u ON u.id = p.posted_by
			  WHERE p.id = ?`

	post, err := scanPost(mc.db.QueryRowContext(ctx, query, postID))
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, repository.ErrPostNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query post: %w", err)
	}

	comments, err := mc.getComments(ctx, postID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	post.Comments = comments

	span.SetAttributes(attribute.Bool("found", true))
	return post, nil
}

// ListPosts retrieves all posts in insertion order with their comments
func (mc *MySQLClient) ListPosts(ctx context.Context) ([]*models.Post, error) {
	ctx, span := tracer.Start(ctx, "mysql.list_posts")
	defer span.End()

	query := `SELECT ` + postColumns + `
			  FROM posts p LEFT JOIN users u ON u.id = p.posted_by
			  ORDER BY p.created_at ASC, p.id ASC`

	rows, err := mc.db.QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	for _, post := range posts {
		comments, err := mc.getComments(ctx, post.ID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		post.Comments = comments
	}

	span.SetAttributes(attribute.Int("post_count", len(posts)))
	return posts, nil
}

func (mc *MySQLClient) getComments(ctx context.Context, postID string) ([]string, error) {
	query := `SELECT body FROM comments WHERE post_id = ? ORDER BY seq ASC`

	rows, err := mc.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, body)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}

// AppendComment appends a comment to a post's ordered comment list and
// returns the updated post. The append is a plain INSERT keyed by an
// auto-increment sequence, so concurrent appends never lose each other.
func (mc *MySQLClient) AppendComment(ctx context.Context, postID, comment string) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "mysql.append_comment",
		trace.WithAttributes(
			attribute.String("post_id", postID),
		),
	)
	defer span.End()

	// Existence check first so an unknown post never gains comments
	if _, err := mc.GetPost(ctx, postID); err != nil {
		return nil, err
	}

	query := `INSERT INTO comments (post_id, body) VALUES (?, ?)`
	if _, err := mc.db.ExecContext(ctx, query, postID, comment); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	return mc.GetPost(ctx, postID)
}

// CreateUser inserts a user record
func (mc *MySQLClient) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "mysql.create_user",
		trace.WithAttributes(
			attribute.String("user_id", user.ID),
		),
	)
	defer span.End()

	query := `INSERT INTO users (id, username) VALUES (?, ?)`
	if _, err := mc.db.ExecContext(ctx, query, user.ID, user.Username); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetUser retrieves a user and their owned post ids in append order
func (mc *MySQLClient) GetUser(ctx context.Context, userID string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_user",
		trace.WithAttributes(
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	var user models.User
	err := mc.db.QueryRowContext(ctx, `SELECT id, username FROM users WHERE id = ?`, userID).
		Scan(&user.ID, &user.Username)
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, repository.ErrUserNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	rows, err := mc.db.QueryContext(ctx,
		`SELECT post_id FROM user_posts WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query owned posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var postID string
		if err := rows.Scan(&postID); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan owned post: %w", err)
		}
		user.PostIDs = append(user.PostIDs, postID)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating owned posts: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &user, nil
}

// AppendOwnedPost links a post into a user's owned-post list and returns
// the updated user. Not idempotent: calling twice duplicates the link.
func (mc *MySQLClient) AppendOwnedPost(ctx context.Context, userID, postID string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mysql.append_owned_post",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("post_id", postID),
		),
	)
	defer span.End()

	if _, err := mc.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	query := `INSERT INTO user_posts (user_id, post_id) VALUES (?, ?)`
	if _, err := mc.db.ExecContext(ctx, query, userID, postID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to link post: %w", err)
	}

	return mc.GetUser(ctx, userID)
}
