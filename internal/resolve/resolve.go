// Package resolve matches free-text user input against known names.
package resolve

import (
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Defaults for Fuzzy.
const (
	DefaultThreshold = 0.5
	DefaultLimit     = 5
)

// Resolver returns the candidates that plausibly match query, best first.
type Resolver interface {
	Resolve(query string, candidates []string) []string
}

// Fuzzy prefers case-insensitive substring matches and falls back to
// Levenshtein similarity above Threshold.
type Fuzzy struct {
	Threshold float64
	Limit     int
	metric    strutil.StringMetric
}

// NewFuzzy creates a resolver with the default threshold and limit.
func NewFuzzy() *Fuzzy {
	lev := metrics.NewLevenshtein()
	lev.CaseSensitive = false

	return &Fuzzy{
		Threshold: DefaultThreshold,
		Limit:     DefaultLimit,
		metric:    lev,
	}
}

type scored struct {
	name  string
	score float64
}

// Resolve ranks candidates against query.
func (f *Fuzzy) Resolve(query string, candidates []string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}
	}
	lowered := strings.ToLower(query)

	unique := dedupe(candidates)

	matches := make([]string, 0)
	for _, c := range unique {
		if strings.Contains(strings.ToLower(c), lowered) {
			matches = append(matches, c)
		}
	}
	if len(matches) > 0 {
		return f.limit(matches)
	}

	ranked := make([]scored, 0)
	for _, c := range unique {
		score := strutil.Similarity(query, c, f.metric)
		if score > f.Threshold {
			ranked = append(ranked, scored{name: c, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	for _, r := range ranked {
		matches = append(matches, r.name)
	}
	return f.limit(matches)
}

func (f *Fuzzy) limit(names []string) []string {
	if f.Limit > 0 && len(names) > f.Limit {
		return names[:f.Limit]
	}
	return names
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Permutations returns every ordering of the words in name, so "Ann Lee"
// also matches a query typed as "Lee Ann".
func Permutations(name string) []string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return []string{}
	}
	if len(words) > 4 {
		return []string{strings.Join(words, " ")}
	}

	var out []string
	var permute func(k int)
	permute = func(k int) {
		if k == len(words) {
			out = append(out, strings.Join(words, " "))
			return
		}
		for i := k; i < len(words); i++ {
			words[k], words[i] = words[i], words[k]
			permute(k + 1)
			words[k], words[i] = words[i], words[k]
		}
	}
	permute(0)
	return dedupe(out)
}

var _ Resolver = (*Fuzzy)(nil)
