package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/maneesh/soundpost/internal/models"
)

// Chunker splits byte streams into fixed-size chunks and reassembles them
type Chunker struct {
	chunkSize int64
}

// NewChunker creates a new chunker with the specified chunk size
func NewChunker(chunkSize int64) *Chunker {
	return &Chunker{
		chunkSize: chunkSize,
	}
}

// Split reads from a reader and hands each fixed-size chunk to fn as soon
// as it is filled, so only one chunk is held in memory at a time. It
// returns the total byte count and the number of chunks emitted. A
// zero-length stream emits no chunks.
func (c *Chunker) Split(reader io.Reader, fn func(*models.ChunkData) error) (int64, int, error) {
	var totalSize int64
	orderIndex := 0

	for {
		buffer := make([]byte, c.chunkSize)
		n, err := io.ReadFull(reader, buffer)

		if n > 0 {
			chunkData := buffer[:n]

			chunk := &models.ChunkData{
				Data:       chunkData,
				OrderIndex: orderIndex,
				Hash:       ComputeHash(chunkData),
				Size:       int64(n),
			}

			if err := fn(chunk); err != nil {
				return totalSize, orderIndex, err
			}

			totalSize += int64(n)
			orderIndex++
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return totalSize, orderIndex, fmt.Errorf("error reading chunk: %w", err)
		}
	}

	return totalSize, orderIndex, nil
}

// ComputeHash computes SHA256 hash of data
func ComputeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Reassemble combines chunks in order
func Reassemble(chunks [][]byte) []byte {
	totalSize := 0
	for _, chunk := range chunks {
		totalSize += len(chunk)
	}

	result := make([]byte, 0, totalSize)
	for _, chunk := range chunks {
		result = append(result, chunk...)
	}

	return result
}

// VerifyChunkHash verifies that chunk data matches the expected hash
func VerifyChunkHash(data []byte, expectedHash string) bool {
	return ComputeHash(data) == expectedHash
}
