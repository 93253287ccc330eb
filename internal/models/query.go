package models

import (
	"fmt"
	"math"
	"slices"
)

// Filter restricts the candidate set of a search. Implementations are closed to this package.
type Filter interface {
	// Match reports whether a document with the given metadata passes the filter.
	Match(meta *ContentMetadata) bool
	// Kind names the filter for logging and cache keys.
	Kind() string
	isFilter()
}

// ProjectIDsIn keeps documents owned by one of the listed projects.
type ProjectIDsIn []string

func (f ProjectIDsIn) Match(meta *ContentMetadata) bool { return slices.Contains(f, meta.ProjectID) }
func (f ProjectIDsIn) Kind() string                     { return "project_ids" }
func (ProjectIDsIn) isFilter()                          {}

// ContentTypesIn keeps documents of one of the listed content types.
type ContentTypesIn []ContentType

func (f ContentTypesIn) Match(meta *ContentMetadata) bool { return slices.Contains(f, meta.Type) }
func (f ContentTypesIn) Kind() string                     { return "content_types" }
func (ContentTypesIn) isFilter()                          {}

// LanguagesIn keeps documents in one of the listed languages.
type LanguagesIn []string

func (f LanguagesIn) Match(meta *ContentMetadata) bool { return slices.Contains(f, meta.Language) }
func (f LanguagesIn) Kind() string                     { return "languages" }
func (LanguagesIn) isFilter()                          {}

// TagsAny keeps documents carrying at least one of the listed tags.
type TagsAny []string

func (f TagsAny) Match(meta *ContentMetadata) bool {
	for _, t := range meta.Tags {
		if slices.Contains(f, t) {
			return true
		}
	}
	return false
}
func (f TagsAny) Kind() string { return "tags" }
func (TagsAny) isFilter()      {}

// MatchAll reports whether meta passes every filter. An empty filter list matches everything.
func MatchAll(filters []Filter, meta *ContentMetadata) bool {
	for _, f := range filters {
		if f != nil && !f.Match(meta) {
			return false
		}
	}
	return true
}

// SearchFilters is the typed filter set accepted by semantic search.
type SearchFilters struct {
	ProjectIDs   []string      `json:"project_ids,omitempty"`
	ContentTypes []ContentType `json:"content_types,omitempty"`
	Languages    []string      `json:"languages,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
}

// ToFilters converts the typed filter set into store filters. Empty fields are skipped.
func (f *SearchFilters) ToFilters() []Filter {
	if f == nil {
		return nil
	}
	var out []Filter
	if len(f.ProjectIDs) > 0 {
		out = append(out, ProjectIDsIn(f.ProjectIDs))
	}
	if len(f.ContentTypes) > 0 {
		out = append(out, ContentTypesIn(f.ContentTypes))
	}
	if len(f.Languages) > 0 {
		out = append(out, LanguagesIn(f.Languages))
	}
	if len(f.Tags) > 0 {
		out = append(out, TagsAny(f.Tags))
	}
	return out
}

// Describe returns the applied filters keyed by kind, for reporting in responses.
func (f *SearchFilters) Describe() map[string][]string {
	out := make(map[string][]string)
	if f == nil {
		return out
	}
	if len(f.ProjectIDs) > 0 {
		out[ProjectIDsIn(nil).Kind()] = f.ProjectIDs
	}
	if len(f.ContentTypes) > 0 {
		types := make([]string, len(f.ContentTypes))
		for i, t := range f.ContentTypes {
			types[i] = string(t)
		}
		out[ContentTypesIn(nil).Kind()] = types
	}
	if len(f.Languages) > 0 {
		out[LanguagesIn(nil).Kind()] = f.Languages
	}
	if len(f.Tags) > 0 {
		out[TagsAny(nil).Kind()] = f.Tags
	}
	return out
}

// SearchOptions controls a semantic search.
type SearchOptions struct {
	TopK            int     `json:"top_k,omitempty"`
	Threshold       float64 `json:"threshold,omitempty"`
	IncludeChunks   bool    `json:"include_chunks,omitempty"`
	EnableReranking bool    `json:"enable_reranking,omitempty"`
}

// Validate defaults TopK to defaultTopK, caps it at maxTopK, and rejects non-finite thresholds.
func (o *SearchOptions) Validate(defaultTopK, maxTopK int) error {
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if maxTopK > 0 && o.TopK > maxTopK {
		o.TopK = maxTopK
	}
	if math.IsNaN(o.Threshold) || math.IsInf(o.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite", ErrInvalidInput)
	}
	return nil
}

// SemanticSearchRequest is the body of a semantic search call.
type SemanticSearchRequest struct {
	Query   string         `json:"query"`
	Filters *SearchFilters `json:"filters,omitempty"`
	Options SearchOptions  `json:"options"`
}

// Validate ensures the request has a query.
func (r *SemanticSearchRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	return nil
}
