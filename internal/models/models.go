package models

import "time"

// Post represents one uploaded track and its metadata.
type Post struct {
	ID               string    `json:"id"`
	TrackName        string    `json:"trackName"`
	TrackLink        string    `json:"trackLink"` // blob id of the audio object
	Artist           string    `json:"artist"`
	Album            string    `json:"album"`
	RecordedDate     string    `json:"recordedDate"`
	CoverArt         string    `json:"coverArt"`
	SourcedFrom      string    `json:"sourcedFrom"`
	Genre            string    `json:"genre"`
	AvailableForSale bool      `json:"availableForSale"`
	Price            float64   `json:"price"`
	Comments         []string  `json:"comment"`
	PostedBy         string    `json:"postedBy"`
	PostedByName     string    `json:"postedByName,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// User owns zero or more posts. Identity fields beyond the display name
// belong to the out-of-scope registration flow.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	PostIDs  []string `json:"musicPosts"`
}

// Blob is the metadata record for one stored binary object.
type Blob struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ChunkCount  int       `json:"chunk_count"`
	Finalized   bool      `json:"finalized"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chunk is one fixed-size segment of a blob.
type Chunk struct {
	ID         string `json:"id"`
	BlobID     string `json:"blob_id"`
	OrderIndex int    `json:"order_index"`
	Hash       string `json:"hash"`
	ObjectKey  string `json:"object_key"`
	Size       int64  `json:"size"`
}

// ChunkData holds one chunk's bytes while it is in flight.
type ChunkData struct {
	Data       []byte
	OrderIndex int
	Hash       string
	Size       int64
}
