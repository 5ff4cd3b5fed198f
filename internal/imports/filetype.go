package imports

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// allowedMIMEs is the content-type allow-list for uploads.
var allowedMIMEs = []string{
	"text/csv",
	"application/json",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// allowedExtensions backs the fallback for text files whose content sniffs
// too generically to name a format.
var allowedExtensions = map[string]bool{
	".csv":  true,
	".json": true,
	".xls":  true,
	".xlsx": true,
}

// CheckFileType sniffs the upload's content and rejects anything outside
// the allow-list with ErrInvalidFileType.
//
// Detection trusts content over the client's declared type. A one-column
// CSV or a loosely formatted JSON file can sniff as bare text, so files in
// the text family fall back to the extension; binary formats get no such
// fallback and must sniff clean.
func CheckFileType(fileName string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidFileType)
	}

	detected := mimetype.Detect(data)
	for _, allowed := range allowedMIMEs {
		if detected.Is(allowed) {
			return nil
		}
	}

	if strings.HasPrefix(detected.String(), "text/") {
		if allowedExtensions[strings.ToLower(filepath.Ext(fileName))] {
			return nil
		}
	}

	return fmt.Errorf("%w: %s detected as %s", ErrInvalidFileType, fileName, detected.String())
}
