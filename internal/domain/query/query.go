// Package query validates and normalizes raw search requests into
// immutable plans consumed by the ranking engine and the cache layer.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Default builder configuration constants.
const (
	defaultMaxPageSize = 50
	defaultMaxPage     = 20
	defaultMaxTextLen  = 256
)

// Sort enumerates the supported sort specs.
type Sort int

const (
	SortRelevance Sort = iota
	SortDate
	SortPrice
	SortPopularity
	SortDistance
)

func (s Sort) String() string {
	switch s {
	case SortRelevance:
		return "relevance"
	case SortDate:
		return "date"
	case SortPrice:
		return "price"
	case SortPopularity:
		return "popularity"
	case SortDistance:
		return "distance"
	default:
		return "unknown"
	}
}

// Geo is an origin plus radius in miles.
type Geo struct {
	Lat    float64
	Lon    float64
	Radius float64
}

// Request is the raw, caller-facing search request.
type Request struct {
	Text       string
	Categories []string
	Cities     []string

	PriceMin *float64
	PriceMax *float64
	DateFrom *time.Time
	DateTo   *time.Time
	Geo      *Geo

	Sort     string
	Page     int
	PageSize int

	IncludeSoldOut  bool
	SuppressFlagged bool
}

// Filter is the closed tagged-variant set of plan filters. Implementations
// are the only types satisfying the unexported marker method.
type Filter interface {
	filterKey() string
}

// TextFilter matches normalized terms against title/artist/venue fields.
type TextFilter struct {
	Terms []string
}

func (f TextFilter) filterKey() string {
	return "text=" + strings.Join(f.Terms, ",")
}

// TermFilter matches a field against an allowed value set.
type TermFilter struct {
	Field  string // "category" or "city"
	Values []string
}

func (f TermFilter) filterKey() string {
	return f.Field + "=" + strings.Join(f.Values, ",")
}

// RangeFilter bounds a numeric field. Date ranges use unix seconds.
type RangeFilter struct {
	Field  string // "price" or "date"
	Min    float64
	Max    float64
	HasMin bool
	HasMax bool
}

func (f RangeFilter) filterKey() string {
	var b strings.Builder
	b.WriteString(f.Field)
	b.WriteByte('=')
	if f.HasMin {
		b.WriteString(strconv.FormatFloat(f.Min, 'f', -1, 64))
	}
	b.WriteByte(':')
	if f.HasMax {
		b.WriteString(strconv.FormatFloat(f.Max, 'f', -1, 64))
	}
	return b.String()
}

// GeoFilter keeps only events within Radius miles of the origin.
type GeoFilter struct {
	Lat    float64
	Lon    float64
	Radius float64
}

func (f GeoFilter) filterKey() string {
	return fmt.Sprintf("geo=%.6f,%.6f,%.2f", f.Lat, f.Lon, f.Radius)
}

// Plan is the immutable normalized form of a request. Construct only via
// Builder.Build; downstream consumers treat it as read-only.
type Plan struct {
	Terms           []string
	Filters         []Filter
	Sort            Sort
	Page            int
	PageSize        int
	IncludeSoldOut  bool
	SuppressFlagged bool

	key string
}

// Key returns the canonical encoding of the plan, stable across identical
// requests. Cache keys are derived from it plus the relevant epochs.
func (p *Plan) Key() string {
	return p.key
}

// Fingerprint hashes the canonical encoding.
func (p *Plan) Fingerprint() uint64 {
	return xxhash.Sum64String(p.key)
}

// TermValues returns the values of the term filter on field, nil if absent.
func (p *Plan) TermValues(field string) []string {
	for _, f := range p.Filters {
		if tf, ok := f.(TermFilter); ok && tf.Field == field {
			return tf.Values
		}
	}
	return nil
}

// GeoOrigin returns the plan's geo filter, nil if absent.
func (p *Plan) GeoOrigin() *GeoFilter {
	for _, f := range p.Filters {
		if gf, ok := f.(GeoFilter); ok {
			return &gf
		}
	}
	return nil
}

// Range returns the range filter on field, nil if absent.
func (p *Plan) Range(field string) *RangeFilter {
	for _, f := range p.Filters {
		if rf, ok := f.(RangeFilter); ok && rf.Field == field {
			return &rf
		}
	}
	return nil
}

// PastOnly reports whether every matching event must predate now, which
// makes the result effectively immutable and cacheable without expiry.
func (p *Plan) PastOnly(now time.Time) bool {
	rf := p.Range("date")
	return rf != nil && rf.HasMax && rf.Max < float64(now.Unix())
}

// Builder validates requests and produces plans. Safe for unbounded
// concurrent use; it holds only configuration.
type Builder struct {
	maxPageSize int
	maxPage     int
	maxTextLen  int
}

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithMaxPageSize caps the per-page hit count.
func WithMaxPageSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxPageSize = n
		}
	}
}

// WithMaxPage caps pagination depth accepted at validation time.
func WithMaxPage(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxPage = n
		}
	}
}

// WithMaxTextLength caps accepted query text length.
func WithMaxTextLength(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxTextLen = n
		}
	}
}

// NewBuilder creates a Builder with configuration options.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		maxPageSize: defaultMaxPageSize,
		maxPage:     defaultMaxPage,
		maxTextLen:  defaultMaxTextLen,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates req and returns an immutable plan. Any violation fails
// with ErrInvalidQuery and a specific reason; no partial plan is produced.
func (b *Builder) Build(req Request) (*Plan, error) {
	if len(req.Text) > b.maxTextLen {
		return nil, fmt.Errorf("%w: text exceeds %d characters", ErrInvalidQuery, b.maxTextLen)
	}
	if req.Page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", ErrInvalidQuery)
	}
	if req.Page >= b.maxPage {
		return nil, fmt.Errorf("%w: page exceeds maximum of %d", ErrInvalidQuery, b.maxPage-1)
	}
	if req.PageSize < 0 || req.PageSize > b.maxPageSize {
		return nil, fmt.Errorf("%w: page size must be between 0 and %d", ErrInvalidQuery, b.maxPageSize)
	}
	if req.PriceMin != nil && *req.PriceMin < 0 {
		return nil, fmt.Errorf("%w: price_min must not be negative", ErrInvalidQuery)
	}
	if req.PriceMin != nil && req.PriceMax != nil && *req.PriceMin > *req.PriceMax {
		return nil, fmt.Errorf("%w: price_min exceeds price_max", ErrInvalidQuery)
	}
	if req.DateFrom != nil && req.DateTo != nil && req.DateFrom.After(*req.DateTo) {
		return nil, fmt.Errorf("%w: date_from is after date_to", ErrInvalidQuery)
	}
	if req.Geo != nil {
		if req.Geo.Radius <= 0 {
			return nil, fmt.Errorf("%w: geo radius must be positive", ErrInvalidQuery)
		}
		if req.Geo.Lat < -90 || req.Geo.Lat > 90 || req.Geo.Lon < -180 || req.Geo.Lon > 180 {
			return nil, fmt.Errorf("%w: geo origin out of range", ErrInvalidQuery)
		}
	}

	sortSpec, err := parseSort(req.Sort)
	if err != nil {
		return nil, err
	}
	if sortSpec == SortDistance && req.Geo == nil {
		return nil, fmt.Errorf("%w: distance sort requires a geo origin", ErrInvalidQuery)
	}

	p := &Plan{
		Terms:           tokenize(req.Text),
		Sort:            sortSpec,
		Page:            req.Page,
		PageSize:        req.PageSize,
		IncludeSoldOut:  req.IncludeSoldOut,
		SuppressFlagged: req.SuppressFlagged,
	}
	if p.PageSize == 0 {
		p.PageSize = b.maxPageSize
	}

	if len(p.Terms) > 0 {
		p.Filters = append(p.Filters, TextFilter{Terms: p.Terms})
	}
	if vals := normalizeTerms(req.Categories); len(vals) > 0 {
		p.Filters = append(p.Filters, TermFilter{Field: "category", Values: vals})
	}
	if vals := normalizeTerms(req.Cities); len(vals) > 0 {
		p.Filters = append(p.Filters, TermFilter{Field: "city", Values: vals})
	}
	if req.PriceMin != nil || req.PriceMax != nil {
		rf := RangeFilter{Field: "price"}
		if req.PriceMin != nil {
			rf.Min, rf.HasMin = *req.PriceMin, true
		}
		if req.PriceMax != nil {
			rf.Max, rf.HasMax = *req.PriceMax, true
		}
		p.Filters = append(p.Filters, rf)
	}
	if req.DateFrom != nil || req.DateTo != nil {
		rf := RangeFilter{Field: "date"}
		if req.DateFrom != nil {
			rf.Min, rf.HasMin = float64(req.DateFrom.Unix()), true
		}
		if req.DateTo != nil {
			rf.Max, rf.HasMax = float64(req.DateTo.Unix()), true
		}
		p.Filters = append(p.Filters, rf)
	}
	if req.Geo != nil {
		p.Filters = append(p.Filters, GeoFilter{Lat: req.Geo.Lat, Lon: req.Geo.Lon, Radius: req.Geo.Radius})
	}

	p.key = canonicalKey(p)
	return p, nil
}

func parseSort(s string) (Sort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "relevance":
		return SortRelevance, nil
	case "date":
		return SortDate, nil
	case "price":
		return SortPrice, nil
	case "popularity":
		return SortPopularity, nil
	case "distance":
		return SortDistance, nil
	default:
		return SortRelevance, fmt.Errorf("%w: unknown sort %q", ErrInvalidQuery, s)
	}
}

// tokenize lowercases and splits query text into deduplicated terms.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// normalizeTerms lowercases, deduplicates and sorts term-filter values so
// equivalent requests canonicalize to the same plan key.
func normalizeTerms(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func canonicalKey(p *Plan) string {
	parts := make([]string, 0, len(p.Filters)+4)
	for _, f := range p.Filters {
		parts = append(parts, f.filterKey())
	}
	sort.Strings(parts)
	parts = append(parts,
		"sort="+p.Sort.String(),
		"page="+strconv.Itoa(p.Page),
		"size="+strconv.Itoa(p.PageSize),
		"soldout="+strconv.FormatBool(p.IncludeSoldOut),
		"suppress="+strconv.FormatBool(p.SuppressFlagged),
	)
	return strings.Join(parts, "|")
}
