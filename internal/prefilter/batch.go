package prefilter

import (
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/model"
)

// BucketMultiple is the stats bucket for candidates rejected on more than
// one dimension at once.
const BucketMultiple = "multiple"

// Stats aggregates pre-filter outcomes over a whole batch. ByReason counts
// one bucket per distinct single failing check, plus BucketMultiple for
// candidates that failed several checks.
type Stats struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Rejected int            `json:"rejected"`
	ByReason map[string]int `json:"by_reason"`
}

// Rejection pairs a rejected candidate with its verdict so callers can show
// why each one was dropped.
type Rejection struct {
	Candidate model.Candidate        `json:"candidate"`
	Verdict   model.PreFilterVerdict `json:"verdict"`
}

// BatchResult is the boundary shape handed to callers of the batch filter.
type BatchResult struct {
	Qualified []model.Candidate `json:"qualified"`
	Rejected  []Rejection       `json:"rejected"`
	Stats     Stats             `json:"stats"`
}

// EvaluateBatch filters every candidate and aggregates rejection statistics.
// Input order is preserved in both output lists.
func (f *Filter) EvaluateBatch(candidates []model.Candidate) BatchResult {
	res := BatchResult{
		Stats: Stats{Total: len(candidates), ByReason: map[string]int{}},
	}

	for _, c := range candidates {
		verdict := f.Evaluate(c)
		if verdict.Passed {
			res.Qualified = append(res.Qualified, c)
			res.Stats.Passed++
			continue
		}

		res.Rejected = append(res.Rejected, Rejection{Candidate: c, Verdict: verdict})
		res.Stats.Rejected++

		failed := verdict.FailedChecks()
		if len(failed) == 1 {
			res.Stats.ByReason[failed[0]]++
		} else {
			res.Stats.ByReason[BucketMultiple]++
		}
	}

	zap.L().Info("prefilter: batch evaluated",
		zap.Int("total", res.Stats.Total),
		zap.Int("passed", res.Stats.Passed),
		zap.Int("rejected", res.Stats.Rejected),
		zap.Any("by_reason", res.Stats.ByReason),
	)

	return res
}
