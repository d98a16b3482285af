package interfaces

import "context"

const ComparatorPoolServiceID ServiceID = "ComparatorPool"

type MatchRequest struct {
	CandidatePath string
	Dir           string
	// Filenames are scanned in order; the first score below Threshold wins.
	Filenames []string
	Threshold float64
}

type MatchResult struct {
	Found    bool
	Filename string
	Score    float64
	Compared int
}

type IComparatorPoolService interface {
	FindMatch(ctx context.Context, req MatchRequest) (MatchResult, error)
}
