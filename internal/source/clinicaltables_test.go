package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const conditionsResponse = `[
  3,
  ["2367", "4512", "8890"],
  {
    "icd10cm_codes": ["E11.9,E11.8", "", "I10"],
    "term_icd9_code": ["250.00", "", ""],
    "synonyms": [["DM2", "Type II diabetes"], [], []]
  },
  [["Type 2 diabetes mellitus"], ["Condition without a code"], ["Essential hypertension"]]
]`

func TestClinicalTablesFetch(t *testing.T) {
	fastPace(t)

	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conditions/v3/search", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(conditionsResponse))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewClinicalTables(srv.URL, []string{"t"})
	records, err := src.Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// The middle row has no ICD-10 code and is dropped.
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	first := records[0]
	if first["code"] != "E11.9" {
		t.Errorf("code = %q, want the first code of the list", first["code"])
	}
	if first["condition_name"] != "Type 2 diabetes mellitus" {
		t.Errorf("condition_name = %q", first["condition_name"])
	}
	if first["icd9_code"] != "250.00" {
		t.Errorf("icd9_code = %q", first["icd9_code"])
	}
	if first["synonyms"] != "DM2; Type II diabetes" {
		t.Errorf("synonyms = %q", first["synonyms"])
	}

	second := records[1]
	if second["code"] != "I10" || second["condition_name"] != "Essential hypertension" {
		t.Errorf("second = %v", second)
	}
	if _, ok := second["synonyms"]; ok {
		t.Error("empty synonyms stored")
	}
}

func TestClinicalTablesWalksTerms(t *testing.T) {
	fastPace(t)

	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conditions/v3/search", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(conditionsResponse))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewClinicalTables(srv.URL, []string{"a", "b", "c"})
	records, err := src.Fetch(context.Background(), 100)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want one per term", got)
	}
	if len(records) != 6 {
		t.Errorf("got %d records, want 6", len(records))
	}
}

func TestClinicalTablesStopsAtLimit(t *testing.T) {
	fastPace(t)

	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conditions/v3/search", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(conditionsResponse))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewClinicalTables(srv.URL, []string{"a", "b", "c"})
	records, err := src.Fetch(context.Background(), 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}
