// Package peerreview distributes submissions to reviewers from a cohort and
// aggregates the rubric scores they return.
package peerreview

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
)

var (
	// ErrInsufficientReviewers is returned when a submission cannot receive
	// the requested number of distinct eligible reviewers.
	ErrInsufficientReviewers = errors.New("insufficient reviewers")
	// ErrUnbalanced is returned when no assignment keeps reviewer loads
	// within one of each other.
	ErrUnbalanced = errors.New("reviewer load cannot be balanced")
)

// Submission is a piece of work to be reviewed.
type Submission struct {
	ID       string `json:"id"`
	AuthorID string `json:"authorId"`
}

// Assignment pairs a reviewer with a submission.
type Assignment struct {
	SubmissionID string `json:"submissionId"`
	ReviewerID   string `json:"reviewerId"`
	Anonymous    bool   `json:"anonymous"`
}

// Options controls an allocation.
type Options struct {
	AllowSelfReview bool `json:"allowSelfReview"`
	Anonymous       bool `json:"anonymous"`
}

// Allocator assigns reviewers with balanced load. It is safe for concurrent
// use; ties are broken with its random source.
type Allocator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAllocator creates an Allocator. A nil source seeds randomly.
func NewAllocator(src rand.Source) *Allocator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Allocator{rng: rand.New(src)}
}

// Assign gives every submission n distinct reviewers from cohort. Each pick
// takes the least-loaded eligible reviewer; a repair pass then shifts
// assignments until reviewer loads differ by at most one.
//
// Balance needs slack in the eligibility rules. When one author owns several
// submissions and n is close to len(cohort)-1, that author's submissions
// must go to nearly everyone else while the author can only review the rest,
// and no allocation stays within one. Assign then fails with ErrUnbalanced.
// Nothing is returned on failure.
func (al *Allocator) Assign(subs []Submission, cohort []string, n int, opts Options) ([]Assignment, error) {
	if n <= 0 {
		return nil, fmt.Errorf("reviewers per submission must be positive, got %d", n)
	}
	reviewers := dedupe(cohort)

	eligible := func(sub Submission, reviewer string) bool {
		return opts.AllowSelfReview || reviewer != sub.AuthorID
	}
	for _, sub := range subs {
		count := 0
		for _, r := range reviewers {
			if eligible(sub, r) {
				count++
			}
		}
		if count < n {
			return nil, fmt.Errorf("submission %s: %w: %d eligible, %d required", sub.ID, ErrInsufficientReviewers, count, n)
		}
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	load := make(map[string]int, len(reviewers))
	for _, r := range reviewers {
		load[r] = 0
	}
	picked := make([]map[string]bool, len(subs))

	for i, sub := range subs {
		pool := make([]string, 0, len(reviewers))
		for _, r := range reviewers {
			if eligible(sub, r) {
				pool = append(pool, r)
			}
		}
		al.rng.Shuffle(len(pool), func(a, b int) { pool[a], pool[b] = pool[b], pool[a] })
		sort.SliceStable(pool, func(a, b int) bool { return load[pool[a]] < load[pool[b]] })

		picked[i] = make(map[string]bool, n)
		for _, r := range pool[:n] {
			picked[i][r] = true
			load[r]++
		}
	}

	rebalance(subs, reviewers, picked, load, eligible)
	if hi, lo := spread(reviewers, load); len(hi) > 0 && load[hi[0]]-load[lo[0]] > 1 {
		return nil, fmt.Errorf("%w: loads range from %d to %d", ErrUnbalanced, load[lo[0]], load[hi[0]])
	}

	out := make([]Assignment, 0, len(subs)*n)
	for i, sub := range subs {
		ids := make([]string, 0, len(picked[i]))
		for r := range picked[i] {
			ids = append(ids, r)
		}
		sort.Strings(ids)
		for _, r := range ids {
			out = append(out, Assignment{SubmissionID: sub.ID, ReviewerID: r, Anonymous: opts.Anonymous})
		}
	}
	return out, nil
}

// rebalance shifts one unit of load at a time from a most-loaded reviewer to
// one at least two below it while the spread exceeds one. A shift may chain
// through other reviewers, each handing one submission on, which leaves their
// loads unchanged. Every shift lowers the sum of squared loads, so the loop
// terminates.
func rebalance(subs []Submission, reviewers []string, picked []map[string]bool, load map[string]int, eligible func(Submission, string) bool) {
	for {
		hi, lo := spread(reviewers, load)
		if len(hi) == 0 || load[hi[0]]-load[lo[0]] <= 1 {
			return
		}
		if !shiftOne(subs, reviewers, picked, load, hi, load[hi[0]]-2, eligible) {
			return
		}
	}
}

// move is one submission changing hands.
type move struct {
	sub      int
	from, to string
}

// shiftOne searches breadth-first from the reviewers in hi for a chain of
// moves ending at a reviewer with load at most target, then applies it.
func shiftOne(subs []Submission, reviewers []string, picked []map[string]bool, load map[string]int, hi []string, target int, eligible func(Submission, string) bool) bool {
	via := make(map[string]move, len(reviewers))
	seen := make(map[string]bool, len(reviewers))
	queue := append([]string(nil), hi...)
	for _, r := range hi {
		seen[r] = true
	}
	for len(queue) > 0 {
		from := queue[0]
		queue = queue[1:]
		for _, to := range reviewers {
			if seen[to] {
				continue
			}
			for i, sub := range subs {
				if !picked[i][from] || picked[i][to] || !eligible(sub, to) {
					continue
				}
				seen[to] = true
				via[to] = move{sub: i, from: from, to: to}
				if load[to] <= target {
					applyChain(picked, load, via, to)
					return true
				}
				queue = append(queue, to)
				break
			}
		}
	}
	return false
}

// applyChain walks the moves back from end to the overloaded reviewer that
// started the chain.
func applyChain(picked []map[string]bool, load map[string]int, via map[string]move, end string) {
	var chain []move
	for r := end; ; {
		m, ok := via[r]
		if !ok {
			break
		}
		chain = append(chain, m)
		r = m.from
	}
	for i := len(chain) - 1; i >= 0; i-- {
		m := chain[i]
		delete(picked[m.sub], m.from)
		picked[m.sub][m.to] = true
	}
	load[chain[len(chain)-1].from]--
	load[end]++
}

// spread returns the reviewers at maximum and at minimum load.
func spread(reviewers []string, load map[string]int) (hi, lo []string) {
	if len(reviewers) == 0 {
		return nil, nil
	}
	maxLoad, minLoad := load[reviewers[0]], load[reviewers[0]]
	for _, r := range reviewers {
		maxLoad = max(maxLoad, load[r])
		minLoad = min(minLoad, load[r])
	}
	for _, r := range reviewers {
		if load[r] == maxLoad {
			hi = append(hi, r)
		}
		if load[r] == minLoad {
			lo = append(lo, r)
		}
	}
	return hi, lo
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Loads counts assignments per reviewer.
func Loads(assignments []Assignment) map[string]int {
	out := make(map[string]int)
	for _, a := range assignments {
		out[a.ReviewerID]++
	}
	return out
}
