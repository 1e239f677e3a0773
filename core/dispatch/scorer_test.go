package dispatch

import (
	"testing"

	"github.com/tomo-delivery/dispatchd/core/model"
)

func rider(id string, lat, lng, acceptance, onTime float64, recent int) model.Rider {
	return model.Rider{
		ID:             id,
		Online:         true,
		Approved:       true,
		Active:         true,
		Capacity:       1,
		Location:       model.Coordinates{Lat: lat, Lng: lng},
		AcceptanceRate: acceptance,
		OnTimeRate:     onTime,
		RecentOrders:   recent,
	}
}

func TestWeightedScorer_PerformanceCanBeatDistance(t *testing.T) {
	// Rider A is right at the pickup but performs poorly and is loaded;
	// rider B is farther out with a strong record. With weights
	// 0.4/0.3/0.3:
	//   A: 0.4*1.0 + 0.3*0.2 + 0.3*0.2 = 0.52
	//   B: 0.4*0.0 + 0.3*1.0 + 0.3*1.0 = 0.60
	order := &model.Order{ID: "o1", Pickup: model.Coordinates{Lat: 24.70, Lng: 46.70}}
	a := rider("rider-a", 24.70, 46.70, 0.2, 0.2, 4)
	b := rider("rider-b", 24.75, 46.75, 1.0, 1.0, 0)
	weights := ScoringWeights{Distance: 0.4, Performance: 0.3, Fairness: 0.3}

	ranked := WeightedScorer{}.Rank([]model.Rider{a, b}, order, weights)
	if ranked[0].Rider.ID != "rider-b" {
		t.Fatalf("expected rider-b to win, ranking: %v vs %v", ranked[0], ranked[1])
	}
}

func TestWeightedScorer_DistanceDominatesWhenWeighted(t *testing.T) {
	order := &model.Order{ID: "o1", Pickup: model.Coordinates{Lat: 24.70, Lng: 46.70}}
	near := rider("near", 24.701, 46.701, 0.5, 0.5, 0)
	far := rider("far", 24.80, 46.80, 0.9, 0.9, 0)
	weights := ScoringWeights{Distance: 1.0}

	ranked := WeightedScorer{}.Rank([]model.Rider{far, near}, order, weights)
	if ranked[0].Rider.ID != "near" {
		t.Fatalf("pure distance weighting must favor the near rider, got %s", ranked[0].Rider.ID)
	}
}

func TestWeightedScorer_FairnessPrefersLessLoadedRider(t *testing.T) {
	order := &model.Order{ID: "o1", Pickup: model.Coordinates{Lat: 24.70, Lng: 46.70}}
	busy := rider("busy", 24.70, 46.70, 0.8, 0.8, 5)
	fresh := rider("fresh", 24.70, 46.70, 0.8, 0.8, 0)
	weights := ScoringWeights{Fairness: 1.0}

	ranked := WeightedScorer{}.Rank([]model.Rider{busy, fresh}, order, weights)
	if ranked[0].Rider.ID != "fresh" {
		t.Fatalf("fairness weighting must favor the fresh rider, got %s", ranked[0].Rider.ID)
	}
}

func TestWeightedScorer_TieBreaksByRiderID(t *testing.T) {
	order := &model.Order{ID: "o1", Pickup: model.Coordinates{Lat: 24.70, Lng: 46.70}}
	r1 := rider("r-b", 24.70, 46.70, 0.5, 0.5, 0)
	r2 := rider("r-a", 24.70, 46.70, 0.5, 0.5, 0)

	weights := ScoringWeights{Distance: 0.4, Performance: 0.3, Fairness: 0.3}
	for i := 0; i < 5; i++ {
		ranked := WeightedScorer{}.Rank([]model.Rider{r1, r2}, order, weights)
		if ranked[0].Rider.ID != "r-a" {
			t.Fatalf("tie must break by rider id, got %s first", ranked[0].Rider.ID)
		}
	}
}

func TestWeightedScorer_InconsistentWeightsAreNormalized(t *testing.T) {
	order := &model.Order{ID: "o1", Pickup: model.Coordinates{Lat: 24.70, Lng: 46.70}}
	a := rider("a", 24.70, 46.70, 1, 1, 0)
	// Weights sum to 2.0; the resulting score must still land in [0,1].
	ranked := WeightedScorer{}.Rank([]model.Rider{a}, order, ScoringWeights{Distance: 1, Performance: 0.5, Fairness: 0.5})
	if ranked[0].Score < 0 || ranked[0].Score > 1 {
		t.Fatalf("score out of range: %f", ranked[0].Score)
	}
}

func TestWeightedScorer_EmptyInput(t *testing.T) {
	if got := (WeightedScorer{}).Rank(nil, &model.Order{}, ScoringWeights{}); got != nil {
		t.Fatalf("expected nil ranking, got %v", got)
	}
}
