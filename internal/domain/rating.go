package domain

import "time"

// Rating represents a single user's rating of a directory account.
type Rating struct {
	ID         string
	AccountID  string
	UserID     string
	Stars      int
	Comment    *string
	AuthorName string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RatingStats is the server-computed aggregate for one account. It is produced
// by the gateway and cached as-is; clients never recompute it from raw ratings.
type RatingStats struct {
	Average     float64
	Total       int64
	CountByStar [5]int64 // index 0 holds the 1-star count
}

// Count returns the number of ratings with the given star value (1..5).
func (s RatingStats) Count(stars int) int64 {
	if stars < 1 || stars > 5 {
		return 0
	}
	return s.CountByStar[stars-1]
}
