package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/reliantlabs/medcat/internal/catalog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultClinicalTablesBaseURL is the NLM Clinical Table Search Service
// host.
const DefaultClinicalTablesBaseURL = "https://clinicaltables.nlm.nih.gov"

// DefaultClinicalTablesPageSize is the per-term result cap. The service
// allows at most 500.
var DefaultClinicalTablesPageSize = 200

// defaultTerms walks the condition index alphabetically. The service is a
// search API, so a bulk pull iterates seed terms rather than paging one
// list.
var defaultTerms = strings.Split("abcdefghijklmnopqrstuvwxyz", "")

// ClinicalTables imports diagnosis-code records from the NLM conditions
// table.
type ClinicalTables struct {
	client *resty.Client
	pager  *rate.Limiter
	terms  []string

	// PageSize overrides the per-term result cap, mainly for tests.
	PageSize int
}

// NewClinicalTables builds the source. An empty baseURL takes the public
// host; empty terms take the alphabetical walk.
func NewClinicalTables(baseURL string, terms []string) *ClinicalTables {
	if baseURL == "" {
		baseURL = DefaultClinicalTablesBaseURL
	}
	if len(terms) == 0 {
		terms = defaultTerms
	}
	return &ClinicalTables{
		client:   newClient(baseURL),
		pager:    newPager(),
		terms:    terms,
		PageSize: DefaultClinicalTablesPageSize,
	}
}

// Name implements Source.
func (s *ClinicalTables) Name() string { return "clinicaltables" }

// Kind implements Source.
func (s *ClinicalTables) Kind() catalog.Kind { return catalog.KindDiagnosis }

// Fetch queries the conditions table once per seed term until limit records
// are collected. The same condition can match several terms; the runner's
// upsert-by-key makes the repeats harmless.
func (s *ClinicalTables) Fetch(ctx context.Context, limit int) ([]catalog.Record, error) {
	def, ok := catalog.Get(catalog.KindDiagnosis)
	if !ok {
		return nil, fmt.Errorf("diagnosis kind not registered")
	}

	var out []catalog.Record
	for _, term := range s.terms {
		if len(out) >= limit {
			break
		}
		if err := s.pager.Wait(ctx); err != nil {
			return nil, err
		}

		root, err := fetchJSON(ctx, s.client, "/api/conditions/v3/search", map[string]string{
			"terms":   term,
			"maxList": strconv.Itoa(min(s.PageSize, limit-len(out))),
			"df":      "primary_name",
			"ef":      "icd10cm_codes,term_icd9_code,synonyms",
		})
		if err != nil {
			return nil, fmt.Errorf("conditions term %q: %w", term, err)
		}

		out = append(out, conditionRecords(root, def)...)
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// conditionRecords maps one positional-array response onto diagnosis
// records. The service replies [total, [keys], {extras}, [[display]...]]
// with the extra fields as arrays parallel to the display rows. Rows
// without an ICD-10 code carry no identity and are dropped here.
func conditionRecords(root gjson.Result, def catalog.Definition) []catalog.Record {
	display := root.Get("3")
	if !display.IsArray() {
		return nil
	}
	extras := root.Get("2")
	icd10 := extras.Get("icd10cm_codes").Array()
	icd9 := extras.Get("term_icd9_code").Array()
	synonyms := extras.Get("synonyms").Array()

	var out []catalog.Record
	i := -1
	display.ForEach(func(_, row gjson.Result) bool {
		i++

		code := ""
		if i < len(icd10) {
			// The field is a comma-separated code list; the first
			// entry is the primary code.
			code = strings.TrimSpace(strings.SplitN(icd10[i].String(), ",", 2)[0])
		}
		if code == "" {
			return true
		}

		name := row.String()
		if row.IsArray() {
			name = row.Get("0").String()
		}

		rec := catalog.Record{
			"code":           code,
			"condition_name": name,
		}
		if i < len(icd9) {
			rec["icd9_code"] = icd9[i].String()
		}
		if i < len(synonyms) && synonyms[i].IsArray() {
			var parts []string
			synonyms[i].ForEach(func(_, v gjson.Result) bool {
				if v.String() != "" {
					parts = append(parts, v.String())
				}
				return true
			})
			rec["synonyms"] = strings.Join(parts, "; ")
		}

		out = append(out, def.Conform(rec))
		return true
	})
	return out
}
