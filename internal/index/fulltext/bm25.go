// Package fulltext implements lexical recall with a hand-rolled BM25
// scorer. BM25 libraries are out of scope: the index is built fresh from
// the in-memory candidate set on every recall call rather than maintained
// as a persistent inverted index, since the candidate pool is already
// narrowed by authorization and scope before scoring ever runs.
package fulltext

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/scrypster/mnemo/pkg/types"
)

// BM25 tuning constants, the standard defaults from Robertson & Zaragoza.
const (
	k1 = 1.2
	b  = 0.75
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases and splits text into alphanumeric terms.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Scored pairs a memory with its BM25 score against a query.
type Scored struct {
	Memory *types.MemoryRecord
	Score  float64
}

// Search scores candidates against query using BM25 over their content
// fields and returns the top limit results, descending by score. Memories
// that share no term with the query are dropped rather than scored 0, so
// callers can distinguish "no lexical match" from "weak match".
func Search(query string, candidates []*types.MemoryRecord, limit int) []Scored {
	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 || len(candidates) == 0 {
		return nil
	}

	docs := make([][]string, len(candidates))
	var totalLen int
	termDocFreq := make(map[string]int)

	for i, m := range candidates {
		terms := Tokenize(m.Content)
		docs[i] = terms
		totalLen += len(terms)

		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			if !seen[t] {
				termDocFreq[t]++
				seen[t] = true
			}
		}
	}

	n := float64(len(candidates))
	avgDocLen := float64(totalLen) / n

	idf := make(map[string]float64, len(queryTerms))
	for _, qt := range queryTerms {
		df := float64(termDocFreq[qt])
		// BM25+ style floor keeps idf non-negative even for terms present in
		// every document, instead of the classical formula's negative idf.
		idf[qt] = math.Log(1 + (n-df+0.5)/(df+0.5))
	}

	var out []Scored
	for i, m := range candidates {
		termFreq := make(map[string]int, len(docs[i]))
		for _, t := range docs[i] {
			termFreq[t]++
		}

		docLen := float64(len(docs[i]))
		var score float64
		var matched bool
		for _, qt := range queryTerms {
			tf := float64(termFreq[qt])
			if tf == 0 {
				continue
			}
			matched = true
			numerator := tf * (k1 + 1)
			denominator := tf + k1*(1-b+b*(docLen/avgDocLen))
			score += idf[qt] * (numerator / denominator)
		}
		if matched {
			out = append(out, Scored{Memory: m, Score: score})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
