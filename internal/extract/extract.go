// Package extract converts uploaded files into schema-conformant candidate
// records for one record kind.
//
// Extraction is an adapter boundary: the engine only depends on the Extractor
// interface. Two implementations exist: HTTP calls the external mapping
// service that handles unstructured and binary formats, Local parses CSV and
// JSON directly for offline operation and tests.
package extract

import (
	"context"
	"fmt"

	"github.com/reliantlabs/medcat/internal/catalog"
	"github.com/tidwall/gjson"
)

// Extractor turns an uploaded file, addressed by URL, into candidate records
// restricted to the definition's schema.
type Extractor interface {
	Extract(ctx context.Context, fileURL string, def catalog.Definition) ([]catalog.Record, error)
}

// decodeResponse interprets a mapping-service reply:
//
//	{"status": "success"|"failure", "output": object|array, "details": "..."}
//
// A single object output counts as a one-element sequence. A failure status
// or an absent/empty output is an error carrying the service's details when
// present.
func decodeResponse(body []byte, def catalog.Definition) ([]catalog.Record, error) {
	status := gjson.GetBytes(body, "status").String()
	if status != "success" {
		if details := gjson.GetBytes(body, "details").String(); details != "" {
			return nil, fmt.Errorf("mapping service: %s", details)
		}
		return nil, fmt.Errorf("mapping service reported failure")
	}

	output := gjson.GetBytes(body, "output")
	if !output.Exists() {
		return nil, fmt.Errorf("mapping service returned no output")
	}

	var records []catalog.Record
	if output.IsArray() {
		output.ForEach(func(_, element gjson.Result) bool {
			if element.IsObject() {
				records = append(records, toRecord(element, def))
			}
			return true
		})
	} else if output.IsObject() {
		records = append(records, toRecord(output, def))
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("mapping service returned no usable output")
	}
	return records, nil
}

// toRecord flattens one output element to a schema-conformant record.
// Values of any JSON type are coerced to strings; unknown fields are dropped.
func toRecord(element gjson.Result, def catalog.Definition) catalog.Record {
	rec := make(catalog.Record)
	element.ForEach(func(key, value gjson.Result) bool {
		rec[key.String()] = value.String()
		return true
	})
	return def.Conform(rec)
}
