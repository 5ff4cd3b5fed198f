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

// DefaultOpenFDABaseURL is the public openFDA API host.
const DefaultOpenFDABaseURL = "https://api.fda.gov"

// DefaultOpenFDAPageSize is how many NDC entries one page requests. The API
// allows up to 1000 per request but throttles by volume.
var DefaultOpenFDAPageSize = 100

// OpenFDA imports drug records from the openFDA National Drug Code
// directory.
type OpenFDA struct {
	client *resty.Client
	pager  *rate.Limiter

	// PageSize overrides the per-request batch, mainly for tests.
	PageSize int
}

// NewOpenFDA builds the source. An empty baseURL takes the public host.
func NewOpenFDA(baseURL string) *OpenFDA {
	if baseURL == "" {
		baseURL = DefaultOpenFDABaseURL
	}
	return &OpenFDA{
		client:   newClient(baseURL),
		pager:    newPager(),
		PageSize: DefaultOpenFDAPageSize,
	}
}

// Name implements Source.
func (s *OpenFDA) Name() string { return "openfda" }

// Kind implements Source.
func (s *OpenFDA) Kind() catalog.Kind { return catalog.KindDrug }

// Fetch walks the NDC directory page by page until limit records are
// collected or the directory runs out.
func (s *OpenFDA) Fetch(ctx context.Context, limit int) ([]catalog.Record, error) {
	def, ok := catalog.Get(catalog.KindDrug)
	if !ok {
		return nil, fmt.Errorf("drug kind not registered")
	}

	var out []catalog.Record
	for skip := 0; skip < limit; skip += s.PageSize {
		if err := s.pager.Wait(ctx); err != nil {
			return nil, err
		}

		page := min(s.PageSize, limit-skip)
		root, err := fetchJSON(ctx, s.client, "/drug/ndc.json", map[string]string{
			"limit": strconv.Itoa(page),
			"skip":  strconv.Itoa(skip),
		})
		if err != nil {
			return nil, fmt.Errorf("ndc page at %d: %w", skip, err)
		}

		results := root.Get("results")
		if !results.IsArray() {
			break
		}
		count := 0
		results.ForEach(func(_, item gjson.Result) bool {
			out = append(out, drugRecord(item, def))
			count++
			return true
		})
		if count < page {
			break
		}
		// Past the last page the API answers 404, so stop on the
		// reported total rather than probing for an empty page.
		if total := root.Get("meta.results.total").Int(); total > 0 && int64(skip+count) >= total {
			break
		}
	}
	return out, nil
}

// drugRecord maps one NDC directory entry onto the drug schema.
func drugRecord(item gjson.Result, def catalog.Definition) catalog.Record {
	rec := catalog.Record{
		"generic_name": item.Get("generic_name").String(),
		"ndc":          item.Get("product_ndc").String(),
		"product_name": item.Get("brand_name").String(),
		"manufacturer": item.Get("labeler_name").String(),
		"dosage_form":  item.Get("dosage_form").String(),
	}

	if route := item.Get("route"); route.IsArray() {
		var parts []string
		route.ForEach(func(_, v gjson.Result) bool {
			if v.String() != "" {
				parts = append(parts, v.String())
			}
			return true
		})
		rec["route_of_administration"] = strings.Join(parts, ", ")
	} else if route.Exists() {
		rec["route_of_administration"] = route.String()
	}

	if ingredients := item.Get("active_ingredients"); ingredients.IsArray() {
		var parts []string
		ingredients.ForEach(func(_, ing gjson.Result) bool {
			name := ing.Get("name").String()
			if name == "" {
				return true
			}
			if strength := ing.Get("strength").String(); strength != "" {
				name = name + " (" + strength + ")"
			}
			parts = append(parts, name)
			return true
		})
		rec["active_ingredients"] = strings.Join(parts, "; ")
	}

	return def.Conform(rec)
}
