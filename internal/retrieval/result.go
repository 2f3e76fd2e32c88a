package retrieval

import "github.com/engramhq/engram/internal/recordstore"

// Result is one ranked Recall hit: the hydrated record plus its
// similarity, BM25, combined, and final reranked scores.
type Result struct {
	Record     recordstore.Record
	Similarity float32
	BM25       float32
	Combined   float32
	Score      float32
}

const (
	weightVector = 0.6
	weightBM25   = 0.4

	rerankWeightCombined   = 0.6
	rerankWeightImportance = 0.2
	rerankWeightRecency    = 0.2

	recencyHorizonDays = 30.0
)

// bm25ScoreFromRank maps FTS5's native rank (negative, smaller is better)
// into a [0,1] score.
func bm25ScoreFromRank(rank float64) float32 {
	score := (10 + rank) / 9
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return float32(score)
}

func recencyScore(ageDays float64) float32 {
	r := 1 - ageDays/recencyHorizonDays
	if r < 0 {
		return 0
	}
	return float32(r)
}
