// Package models defines data structures shared by the monitor packages.
package models

import "time"

// Product is a single product listing extracted from a product page.
type Product struct {
	Title         string `csv:"title" json:"title"`
	SKU           string `csv:"sku" json:"sku"`
	PriceOriginal string `csv:"price_original" json:"price_original"`
	PriceCurrent  string `csv:"price_current" json:"price_current"`
	Description   string `csv:"description" json:"description"`
	URL           string `csv:"url" json:"url"`
}

// HasSKU reports whether the product carries a usable identifier.
func (p Product) HasSKU() bool {
	return p.SKU != ""
}

// SkipReason labels why a URL produced no record.
type SkipReason string

const (
	SkipMediaLink      SkipReason = "media_link"
	SkipNotProductPage SkipReason = "not_product_page"
	SkipFetchFailed    SkipReason = "fetch_failed"
)

// Batch selects the [Start, End) window of the discovered URL sequence.
// End <= 0 means through the end of the sequence.
type Batch struct {
	Start int
	End   int
}

// Bounds clamps the batch to a sequence of total URLs. An empty window is
// returned as lo == hi.
func (b Batch) Bounds(total int) (lo, hi int) {
	lo = b.Start
	if lo < 0 {
		lo = 0
	}
	hi = b.End
	if hi <= 0 || hi > total {
		hi = total
	}
	if lo >= hi {
		return hi, hi
	}
	return lo, hi
}

// IsBounded reports whether the batch narrows the sequence at all.
func (b Batch) IsBounded() bool {
	return b.Start > 0 || b.End > 0
}

// Outcome is the result of processing one URL: either a record or a skip.
type Outcome struct {
	Index   int
	URL     string
	Product *Product
	Reason  SkipReason
	Err     error
}

// OK reports whether the outcome produced a record.
func (o Outcome) OK() bool {
	return o.Product != nil
}

// RunResult holds the overall result of one monitor run.
type RunResult struct {
	RunID       string
	Records     []Product
	NewRecords  []Product
	Processed   int
	Failures    int
	Skipped     map[SkipReason]int
	FailedURLs  []string
	Checkpoints int
	FirstRun    bool
	StartTime   time.Time
	EndTime     time.Time
}

// NewRunResult returns an empty result with its maps initialised.
func NewRunResult() *RunResult {
	return &RunResult{
		Skipped: make(map[SkipReason]int),
	}
}

// Record folds a single outcome into the result.
func (r *RunResult) Record(o Outcome) {
	r.Processed++
	if o.OK() {
		r.Records = append(r.Records, *o.Product)
		return
	}
	r.Failures++
	r.Skipped[o.Reason]++
	if o.Reason == SkipFetchFailed {
		r.FailedURLs = append(r.FailedURLs, o.URL)
	}
}
