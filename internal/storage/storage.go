// Package storage holds the object store backends used for evidence files
// and generated reports.
package storage

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// PutOptions controls a single upload.
type PutOptions struct {
	ContentType string
	// NoClobber makes the upload fail with types.ErrUploadConflict when an
	// object already exists at the path.
	NoClobber bool
}

// ObjectStore is a single bucket of an object storage service.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, opts PutOptions) (string, error)
	// Get returns types.ErrObjectNotFound for missing objects.
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, paths ...string) error
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename reduces a client supplied filename to a safe object key
// segment.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 120 {
		ext := path.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:120-len(ext)] + ext
	}
	return name
}

// EvidencePath builds {userId}/{jobId}/{epochMillis}-{nonce}-{filename}. The
// nonce keeps same-named files uploaded in the same millisecond apart.
func EvidencePath(userID, jobID string, at time.Time, nonce, filename string) string {
	return fmt.Sprintf("%s/%s/%d-%s-%s", userID, jobID, at.UnixMilli(), nonce, SanitizeFilename(filename))
}

// ReportPath builds {userId}/{filename}.
func ReportPath(userID, filename string) string {
	return fmt.Sprintf("%s/%s", userID, SanitizeFilename(filename))
}
