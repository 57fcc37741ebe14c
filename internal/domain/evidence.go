package domain

import (
	"mime"
	"strings"
)

const (
	// MaxEvidenceFiles upper bound of files attached to one dispute.
	MaxEvidenceFiles = 5
	// MaxEvidenceFileSize upper bound of a single evidence file in bytes.
	MaxEvidenceFileSize = 10 << 20
)

var allowedEvidenceTypes = map[string]struct{}{
	"image/png":       {},
	"image/jpeg":      {},
	"image/gif":       {},
	"video/mp4":       {},
	"application/pdf": {},
}

// EvidenceFile uploaded proof attached to a dispute.
type EvidenceFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the file size in bytes.
func (f EvidenceFile) Size() int64 {
	return int64(len(f.Data))
}

// FileRef reference to stored evidence.
type FileRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
}

// ValidateEvidence enforces count, size and MIME type limits.
func ValidateEvidence(files []EvidenceFile) error {
	if len(files) > MaxEvidenceFiles {
		return ErrEvidenceValidation.Newf("at most %d files allowed, got %d", MaxEvidenceFiles, len(files))
	}
	for i, f := range files {
		if f.Size() == 0 {
			return ErrEvidenceValidation.Newf("file %d (%q) is empty", i, f.Name)
		}
		if f.Size() > MaxEvidenceFileSize {
			return ErrEvidenceValidation.Newf("file %d (%q) is %d bytes, limit is %d", i, f.Name, f.Size(), MaxEvidenceFileSize)
		}
		mediaType := NormalizeMediaType(f.ContentType)
		if _, ok := allowedEvidenceTypes[mediaType]; !ok {
			return ErrEvidenceValidation.Newf("file %d (%q) has unsupported type %q", i, f.Name, f.ContentType)
		}
	}
	return nil
}

// NormalizeMediaType strips parameters and lower-cases a Content-Type value.
func NormalizeMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
