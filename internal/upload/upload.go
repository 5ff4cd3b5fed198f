// Package upload moves accepted files to storage and hands back a URL the
// extraction step can address.
//
// The transport is an adapter boundary: HTTP posts to the external storage
// service, Memory keeps bytes in-process for offline operation and tests and
// doubles as the file source for local extraction.
package upload

import "context"

// Uploader stores one file and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, fileName string, data []byte) (url string, err error)
}
