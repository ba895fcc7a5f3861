package spacedrep

import (
	"sort"
	"time"
)

// IsDue returns true if a review scheduled at next is due (at or past next).
func IsDue(next, now time.Time) bool {
	return !now.Before(next)
}

// OverdueDays returns how many days past due next is. Returns 0 if not yet due.
func OverdueDays(next, now time.Time) float64 {
	if now.Before(next) {
		return 0
	}
	return now.Sub(next).Hours() / 24.0
}

// DaysUntilReview returns the number of days until the next review.
// Returns 0 if already due.
func DaysUntilReview(next, now time.Time) int {
	if IsDue(next, now) {
		return 0
	}
	return int(next.Sub(now).Hours()/24.0) + 1
}

// ReviewStatus describes a skill's review status for display.
type ReviewStatus string

const (
	ReviewNotDue  ReviewStatus = "not_due"
	ReviewDue     ReviewStatus = "due"
	ReviewOverdue ReviewStatus = "overdue"
)

// Status classifies a review. A review is overdue once it has been due for
// longer than half of its interval.
func Status(next time.Time, interval time.Duration, now time.Time) ReviewStatus {
	if !IsDue(next, now) {
		return ReviewNotDue
	}
	if now.Sub(next) > interval/2 {
		return ReviewOverdue
	}
	return ReviewDue
}

// Item is one entry of a review queue.
type Item struct {
	Key         string
	NextReview  time.Time
	OverdueDays float64
}

// Queue returns the due items among the given schedule, most overdue first.
// Ties are broken by key for stable output.
func Queue(schedule map[string]time.Time, now time.Time) []Item {
	var items []Item
	for key, next := range schedule {
		if !IsDue(next, now) {
			continue
		}
		items = append(items, Item{Key: key, NextReview: next, OverdueDays: OverdueDays(next, now)})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].NextReview.Equal(items[j].NextReview) {
			return items[i].NextReview.Before(items[j].NextReview)
		}
		return items[i].Key < items[j].Key
	})
	return items
}
