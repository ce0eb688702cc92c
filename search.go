package vecdb

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/metadata"
)

// overFetchFactor is the initial multiplier applied to k when a metadata
// filter is present: the index is asked for factor*k candidates and the
// survivors are post-filtered. The fetch size doubles on each retry until
// k survivors are found or the whole collection has been scanned.
const overFetchFactor = 4

// SearchOptions tunes a similarity search.
type SearchOptions struct {
	// EF overrides the index's candidate list size for this call.
	// Zero means "use the configured default".
	EF int

	// Filter restricts results to records whose metadata matches.
	Filter *metadata.Filter

	// IncludeMetadata attaches each hit's metadata to the result.
	IncludeMetadata bool

	// IncludeDocument attaches each hit's source document to the result.
	IncludeDocument bool
}

// SearchResult is a single search hit. Metadata and Document are only
// populated when requested via SearchOptions.
type SearchResult struct {
	ID       uint64
	Distance float32
	Metadata metadata.Document
	Document string
}

// Search returns the k nearest live records to q, ordered by ascending
// distance with ties broken by smaller ID. With a filter set, results are
// the k nearest records among those matching the filter.
func (c *Collection) Search(ctx context.Context, q []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	opts := SearchOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	c.mu.RLock()
	results, err := c.searchLocked(ctx, q, k, &opts)
	c.mu.RUnlock()

	c.logger.LogSearch(ctx, k, len(results), err)
	return results, err
}

func (c *Collection) searchLocked(ctx context.Context, q []float32, k int, opts *SearchOptions) ([]SearchResult, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if len(q) != c.cfg.Dimension {
		return nil, &ErrDimensionMismatch{Expected: c.cfg.Dimension, Actual: len(q)}
	}

	if opts.Filter != nil {
		if err := opts.Filter.Validate(); err != nil {
			return nil, err
		}
		return c.filteredSearchLocked(ctx, q, k, opts)
	}

	hits, err := c.idx.Search(ctx, q, k, &index.SearchOptions{EF: opts.EF})
	if err != nil {
		return nil, translateError(err)
	}
	return c.materialize(hits, opts), nil
}

// filteredSearchLocked over-fetches from the index and post-filters against
// the authoritative metadata store, doubling the fetch size until k matches
// are found or every live record has been considered.
func (c *Collection) filteredSearchLocked(ctx context.Context, q []float32, k int, opts *SearchOptions) ([]SearchResult, error) {
	live := c.idx.Len()
	if live == 0 {
		return nil, nil
	}

	fetch := k * overFetchFactor
	for {
		if fetch > live {
			fetch = live
		}

		hits, err := c.idx.Search(ctx, q, fetch, &index.SearchOptions{EF: opts.EF})
		if err != nil {
			return nil, translateError(err)
		}

		matched := hits[:0]
		for _, hit := range hits {
			rec, ok := c.records[hit.ID]
			if !ok {
				continue
			}
			if opts.Filter.Matches(rec.Metadata) {
				matched = append(matched, hit)
				if len(matched) == k {
					return c.materialize(matched, opts), nil
				}
			}
		}

		// An exact index returns every live record at fetch == live, and
		// HNSW has visited its reachable graph; no retry can add matches.
		if fetch == live {
			return c.materialize(matched, opts), nil
		}
		fetch *= 2
	}
}

func (c *Collection) materialize(hits []index.SearchResult, opts *SearchOptions) []SearchResult {
	if len(hits) == 0 {
		return nil
	}
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{ID: hit.ID, Distance: hit.Distance}
		if rec, ok := c.records[hit.ID]; ok {
			if opts.IncludeMetadata {
				results[i].Metadata = rec.Metadata.Clone()
			}
			if opts.IncludeDocument {
				results[i].Document = rec.Document
			}
		}
	}
	return results
}

// SearchBatch runs one search per query concurrently. Result i corresponds
// to query i; the first error aborts the remaining searches.
func (c *Collection) SearchBatch(ctx context.Context, queries [][]float32, k int, optFns ...func(o *SearchOptions)) ([][]SearchResult, error) {
	opts := SearchOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	results := make([][]SearchResult, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			c.mu.RLock()
			defer c.mu.RUnlock()

			callOpts := opts
			hits, err := c.searchLocked(ctx, q, k, &callOpts)
			if err != nil {
				return err
			}
			results[i] = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// TextSearchOptions tunes a full-text lookup.
type TextSearchOptions struct {
	// Field restricts the lookup to one metadata field. Empty searches the
	// source documents and every indexed metadata field.
	Field string

	// Limit caps the number of returned IDs. Zero means no cap.
	Limit int
}

// TextSearch returns the IDs of live records whose document or metadata
// contains every word of the query, in ascending ID order. The inverted
// index is built lazily on the first call and maintained incrementally
// afterwards; hits are re-verified against the records.
func (c *Collection) TextSearch(query string, optFns ...func(o *TextSearchOptions)) []uint64 {
	opts := TextSearchOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureTextIndexLocked()

	hits := c.textIndex.Search(opts.Field, query)
	if hits == nil {
		return nil
	}

	ids := make([]uint64, 0, hits.GetCardinality())
	it := hits.Iterator()
	for it.HasNext() {
		id := it.Next()
		rec, ok := c.records[id]
		if !ok || !c.textMatches(rec, query, opts.Field) {
			continue
		}
		ids = append(ids, id)
		if opts.Limit > 0 && len(ids) == opts.Limit {
			break
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Collection) ensureTextIndexLocked() {
	if c.textIndex != nil {
		return
	}
	ix := metadata.NewTextIndex()
	for id, rec := range c.records {
		ix.Add(id, rec.Metadata)
		ix.AddText(id, documentField, rec.Document)
	}
	c.textIndex = ix
}

// textMatches re-verifies a posting hit against the authoritative record,
// with the same all-words semantics the inverted index uses.
func (c *Collection) textMatches(rec *Record, query, field string) bool {
	switch field {
	case "":
		if matchesAllWords(rec.Document, query) {
			return true
		}
		for f := range rec.Metadata {
			if fieldMatchesAllWords(rec.Metadata, f, query) {
				return true
			}
		}
		return false
	case documentField:
		return matchesAllWords(rec.Document, query)
	default:
		return fieldMatchesAllWords(rec.Metadata, field, query)
	}
}

// fieldMatchesAllWords pools the tokens of every string value under the
// field, mirroring how the inverted index merges array elements into one
// posting namespace.
func fieldMatchesAllWords(doc metadata.Document, field, query string) bool {
	v, ok := doc[field]
	if !ok {
		return false
	}

	var text string
	switch v.Kind {
	case metadata.KindString:
		text = v.S
	case metadata.KindArray:
		var parts []string
		for _, elem := range v.A {
			if elem.Kind == metadata.KindString {
				parts = append(parts, elem.S)
			}
		}
		text = strings.Join(parts, " ")
	}
	return matchesAllWords(text, query)
}

func matchesAllWords(text, query string) bool {
	if text == "" {
		return false
	}
	words := metadata.Tokenize(text)
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	for _, w := range metadata.Tokenize(query) {
		if _, ok := seen[w]; !ok {
			return false
		}
	}
	return true
}
