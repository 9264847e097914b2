// Package selector implements weighted random article selection.
package selector

import (
	"math/rand/v2"
	"time"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/metrics"
)

// Branch names the pool a selection was drawn from.
type Branch string

// Selection branches.
const (
	BranchBookmarked   Branch = "bookmark_weighted"
	BranchUnbookmarked Branch = "random_unbookmarked"
	BranchAll          Branch = "random_all"
	BranchFallback     Branch = "fallback"
)

// DefaultBookmarkedProbability is the chance of drawing from the bookmarked tier.
const DefaultBookmarkedProbability = 0.7

// Selection is one picked article and the branch it came from.
type Selection struct {
	Article article.Article `json:"article"`
	Branch  Branch          `json:"branch"`
}

// Selector picks one article per call with a bias toward bookmarked ones.
type Selector struct {
	rng                   *rand.Rand
	bookmarkedProbability float64
}

// Option customises a Selector.
type Option func(*Selector)

// WithBookmarkedProbability overrides the bookmarked tier probability.
func WithBookmarkedProbability(p float64) Option {
	return func(s *Selector) {
		if p >= 0 && p <= 1 {
			s.bookmarkedProbability = p
		}
	}
}

// New builds a Selector drawing from rng.
func New(rng *rand.Rand, opts ...Option) *Selector {
	if rng == nil {
		rng = NewRand(nil)
	}
	s := &Selector{rng: rng, bookmarkedProbability: DefaultBookmarkedProbability}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRand returns a local random source seeded from seed, or from the clock when seed is nil.
func NewRand(seed *int64) *rand.Rand {
	var s uint64
	if seed != nil {
		s = uint64(*seed)
	} else {
		s = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// Pick draws one article. Articles with a positive bookmark count are
// preferred with the configured probability and weighted by count+1.
func (s *Selector) Pick(articles []article.Article) (Selection, error) {
	if len(articles) == 0 {
		return Selection{}, article.ErrNoArticles
	}

	var bookmarked, unbookmarked []article.Article
	for _, a := range articles {
		if a.Bookmarks() > 0 {
			bookmarked = append(bookmarked, a)
		} else {
			unbookmarked = append(unbookmarked, a)
		}
	}

	pool, branch, weights := articles, BranchAll, []float64(nil)
	if len(bookmarked) > 0 {
		if s.rng.Float64() < s.bookmarkedProbability {
			pool, branch = bookmarked, BranchBookmarked
			weights = make([]float64, len(bookmarked))
			for i, a := range bookmarked {
				weights[i] = float64(a.Bookmarks() + 1)
			}
		} else if len(unbookmarked) > 0 {
			pool, branch = unbookmarked, BranchUnbookmarked
		}
	}
	if len(pool) == 0 {
		pool, branch, weights = articles, BranchFallback, nil
	}

	var idx int
	if weights != nil {
		idx = WeightedIndex(s.rng, weights)
	} else {
		idx = s.rng.IntN(len(pool))
	}
	metrics.ObserveSelection(string(branch))
	return Selection{Article: pool[idx], Branch: branch}, nil
}

// WeightedIndex returns an index into the non-empty weights slice drawn
// proportionally to each weight.
// Non-positive weights are never chosen unless every weight is non-positive,
// in which case the draw is uniform.
func WeightedIndex(rng *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	target := rng.Float64() * total
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		target -= w
		if target < 0 {
			return i
		}
	}
	return last
}

// RankWeighted draws k items with replacement, weighting the item at rank i by 1/(i+1).
// Items must already be ordered best first.
func RankWeighted[T any](rng *rand.Rand, items []T, k int) []T {
	if len(items) == 0 || k <= 0 {
		return nil
	}
	weights := make([]float64, len(items))
	for i := range items {
		weights[i] = 1 / float64(i+1)
	}
	out := make([]T, 0, k)
	for range k {
		out = append(out, items[WeightedIndex(rng, weights)])
	}
	return out
}
