package dispatch

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/tomo-delivery/dispatchd/core/model"
)

// ScoredRider pairs a candidate with its weighted score.
type ScoredRider struct {
	Rider model.Rider
	Score float64
}

// Scorer ranks eligible riders for an order.
type Scorer interface {
	Rank(riders []model.Rider, order *model.Order, weights ScoringWeights) []ScoredRider
}

// WeightedScorer computes a linear combination of distance, performance
// and fairness sub-scores, each normalized to [0,1]. Distance is
// max-normalized over the candidate set so the farthest candidate scores
// 0 and co-located riders score 1. Ties are broken by rider id so that
// rankings are reproducible.
type WeightedScorer struct{}

func (WeightedScorer) Rank(riders []model.Rider, order *model.Order, weights ScoringWeights) []ScoredRider {
	if len(riders) == 0 {
		return nil
	}
	w := weights.Normalized()

	distances := make([]float64, len(riders))
	for i, r := range riders {
		distances[i] = r.Location.DistanceKm(order.Pickup)
	}
	maxDist := floats.Max(distances)

	ranked := make([]ScoredRider, len(riders))
	for i, r := range riders {
		distScore := 1.0
		if maxDist > 0 {
			distScore = 1.0 - distances[i]/maxDist
		}
		fairScore := 1.0 / (1.0 + float64(r.RecentOrders))
		score := w.Distance*distScore + w.Performance*r.Performance() + w.Fairness*fairScore
		ranked[i] = ScoredRider{Rider: r, Score: score}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Rider.ID < ranked[j].Rider.ID
	})
	return ranked
}
