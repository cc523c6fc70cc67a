package result

import (
	"slices"
	"strings"
	"time"
)

// LinkCheckResult is the outcome of checking one URL, after retries.
// Values are built with NewLinkCheckResult and not modified afterwards;
// the With* methods return copies.
type LinkCheckResult struct {
	URL        string   `json:"url"`
	IsBroken   bool     `json:"is_broken"`
	ErrorType  Category `json:"error_type"`
	Detail     string   `json:"detail,omitempty"`
	StatusCode int      `json:"status_code,omitempty"` // 0 if no response was received
	Attempts   int      `json:"attempts"`
	Sources    []string `json:"sources,omitempty"` // posts that reference the URL
}

// NewLinkCheckResult builds a result whose IsBroken flag agrees with its
// category. A status outside [200,399] is never reported as OK.
func NewLinkCheckResult(url string, category Category, detail string, statusCode int) LinkCheckResult {
	if !category.Valid() {
		category = CategoryUnknown
	}
	if category == CategoryOK && statusCode != 0 && (statusCode < 200 || statusCode > 399) {
		category = ClassifyError(nil, statusCode)
	}
	return LinkCheckResult{
		URL:        url,
		IsBroken:   category != CategoryOK,
		ErrorType:  category,
		Detail:     detail,
		StatusCode: statusCode,
		Attempts:   1,
	}
}

// HasStatus reports whether an HTTP response was received.
func (r LinkCheckResult) HasStatus() bool {
	return r.StatusCode != 0
}

// WithAttempts returns a copy of r recording n attempts.
func (r LinkCheckResult) WithAttempts(n int) LinkCheckResult {
	r.Attempts = n
	return r
}

// WithSources returns a copy of r referencing the given source pages.
func (r LinkCheckResult) WithSources(sources []string) LinkCheckResult {
	r.Sources = slices.Clone(sources)
	return r
}

// Stats contains aggregate statistics for a run.
type Stats struct {
	PostsFound   int              `json:"posts_found"`
	PostsFetched int              `json:"posts_fetched"`
	LinksChecked int              `json:"links_checked"`
	BrokenCount  int              `json:"broken_count"`
	ByCategory   map[Category]int `json:"by_category"`
	Duration     time.Duration    `json:"duration_ns"`
}

// Report is the complete output of a run.
type Report struct {
	RunID   string            `json:"run_id"`
	BaseURL string            `json:"base_url"`
	Year    int               `json:"year,omitempty"`
	Posts   []string          `json:"posts"`
	Links   []LinkCheckResult `json:"links"`
	Stats   Stats             `json:"stats"`
}

// NewReport sorts links by URL and computes the aggregate statistics.
func NewReport(runID, baseURL string, year int, posts []string, links []LinkCheckResult, duration time.Duration) *Report {
	sorted := slices.Clone(links)
	SortByURL(sorted)

	stats := Stats{
		PostsFound:   len(posts),
		LinksChecked: len(sorted),
		ByCategory:   make(map[Category]int),
		Duration:     duration,
	}
	for _, link := range sorted {
		stats.ByCategory[link.ErrorType]++
		if link.IsBroken {
			stats.BrokenCount++
		}
	}

	return &Report{
		RunID:   runID,
		BaseURL: baseURL,
		Year:    year,
		Posts:   slices.Clone(posts),
		Links:   sorted,
		Stats:   stats,
	}
}

// Broken returns the broken results in URL order.
func (r *Report) Broken() []LinkCheckResult {
	if r == nil {
		return nil
	}
	var broken []LinkCheckResult
	for _, link := range r.Links {
		if link.IsBroken {
			broken = append(broken, link)
		}
	}
	return broken
}

// SortByURL sorts results in place by URL.
func SortByURL(links []LinkCheckResult) {
	slices.SortFunc(links, func(a, b LinkCheckResult) int {
		return strings.Compare(a.URL, b.URL)
	})
}
