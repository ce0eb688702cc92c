package metadata

import (
	"strings"
	"unicode"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// TextIndex is an inverted index from field -> lowercased word -> posting
// bitmap of IDs.
//
// It accelerates $text filters and full-text lookups; it is never
// authoritative — the metadata documents remain the source of truth, and
// callers re-verify hits against them.
type TextIndex struct {
	fields map[string]map[string]*roaring64.Bitmap
}

// NewTextIndex creates an empty text index.
func NewTextIndex() *TextIndex {
	return &TextIndex{fields: make(map[string]map[string]*roaring64.Bitmap)}
}

// Tokenize splits text into lowercased words. Word boundaries are any
// non-letter, non-digit runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// AddText indexes a free-text field for the given ID.
func (ix *TextIndex) AddText(id uint64, field, text string) {
	if ix == nil || text == "" {
		return
	}
	postings, ok := ix.fields[field]
	if !ok {
		postings = make(map[string]*roaring64.Bitmap)
		ix.fields[field] = postings
	}
	for _, word := range Tokenize(text) {
		bm, ok := postings[word]
		if !ok {
			bm = roaring64.New()
			postings[word] = bm
		}
		bm.Add(id)
	}
}

// Add indexes every string value (including string array elements) of the
// document for the given ID.
func (ix *TextIndex) Add(id uint64, doc Document) {
	if ix == nil {
		return
	}
	for field, v := range doc {
		ix.addValue(id, field, v)
	}
}

func (ix *TextIndex) addValue(id uint64, field string, v Value) {
	switch v.Kind {
	case KindString:
		ix.AddText(id, field, v.S)
	case KindArray:
		for _, elem := range v.A {
			if elem.Kind == KindString {
				ix.AddText(id, field, elem.S)
			}
		}
	}
}

// Remove drops the ID from every posting list. Word-level removal would
// need the original text; dropping by ID keeps deletion O(index size) only
// for the affected words when the caller supplies the document.
func (ix *TextIndex) Remove(id uint64, doc Document) {
	if ix == nil {
		return
	}
	for field, v := range doc {
		ix.removeValue(id, field, v)
	}
}

// RemoveText drops the ID from the postings of one free-text field.
func (ix *TextIndex) RemoveText(id uint64, field, text string) {
	if ix == nil || text == "" {
		return
	}
	postings, ok := ix.fields[field]
	if !ok {
		return
	}
	for _, word := range Tokenize(text) {
		if bm, ok := postings[word]; ok {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(postings, word)
			}
		}
	}
	if len(postings) == 0 {
		delete(ix.fields, field)
	}
}

func (ix *TextIndex) removeValue(id uint64, field string, v Value) {
	switch v.Kind {
	case KindString:
		ix.RemoveText(id, field, v.S)
	case KindArray:
		for _, elem := range v.A {
			if elem.Kind == KindString {
				ix.RemoveText(id, field, elem.S)
			}
		}
	}
}

// Search returns the IDs whose indexed field contains every word of the
// query. An empty field matches across all indexed fields. A nil result
// means no matches.
func (ix *TextIndex) Search(field, query string) *roaring64.Bitmap {
	if ix == nil {
		return nil
	}
	words := Tokenize(query)
	if len(words) == 0 {
		return nil
	}

	if field != "" {
		return ix.searchField(field, words)
	}

	var union *roaring64.Bitmap
	for f := range ix.fields {
		if hits := ix.searchField(f, words); hits != nil {
			if union == nil {
				union = hits
			} else {
				union.Or(hits)
			}
		}
	}
	return union
}

func (ix *TextIndex) searchField(field string, words []string) *roaring64.Bitmap {
	postings, ok := ix.fields[field]
	if !ok {
		return nil
	}
	var result *roaring64.Bitmap
	for _, word := range words {
		bm, ok := postings[word]
		if !ok {
			return nil
		}
		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}
		if result.IsEmpty() {
			return nil
		}
	}
	return result
}
