package storage

import (
	"context"
	"io"
	"time"
)

// Uploader writes report objects. The returned path is a storage URI, not a
// public link.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

// ReportObject is the object name of a session's report.
func ReportObject(sessionID string) string {
	return "reports/" + sessionID + ".json"
}
