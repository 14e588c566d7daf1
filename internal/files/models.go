// Package files tracks uploaded documents and keeps their chunk vectors
// in sync with the tenant's similarity index.
package files

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for file operations.
var (
	// ErrFileNotFound indicates no file record exists for the id.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidFile indicates a file record missing required fields.
	ErrInvalidFile = errors.New("invalid file record")
)

// Status is a file's processing state.
type Status string

// File processing states.
const (
	StatusPending            Status = "pending"
	StatusProcessing         Status = "processing"
	StatusComplete           Status = "complete"
	StatusTranscriptionError Status = "transcription_error"
	StatusVectorizationError Status = "vectorization_error"
)

// FileRecord describes one uploaded document and the chunk vectors
// currently indexed for it.
//
// Invariant: RelatedVectors is always exactly the set of vector ids
// indexed for this file. A failed re-vectorize leaves it empty, never
// partially populated.
type FileRecord struct {
	ID               string    `json:"id"`
	FileName         string    `json:"file_name"`
	FilePath         string    `json:"file_path"`
	FileType         string    `json:"file_type"`
	FileSize         int64     `json:"file_size"`
	UserID           string    `json:"user_id"`
	ProcessingStatus Status    `json:"processing_status"`
	TextContent      string    `json:"text_content,omitempty"`
	RelatedVectors   []string  `json:"related_vectors"`
	UploadDate       time.Time `json:"upload_date"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Validate checks the fields required before a record enters the ledger.
func (r *FileRecord) Validate() error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidFile)
	}
	if r.FileName == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidFile)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidFile)
	}
	return nil
}

// ChunkHit is one ranked chunk returned by a file search.
type ChunkHit struct {
	FileID     string  `json:"file_id"`
	FileName   string  `json:"file_name"`
	ChunkText  string  `json:"chunk_text"`
	ChunkIndex int     `json:"chunk_index"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Similarity float64 `json:"similarity"`
}
