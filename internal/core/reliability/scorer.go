// Package reliability computes a trust classification for completed search
// results from three normalized signals: result coverage, data freshness, and
// the retrieval method that produced the result. The computation is a pure
// function of its inputs; nothing here performs I/O or holds state.
package reliability

import "math"

// Method identifies how a search result was retrieved.
type Method string

const (
	MethodLive       Method = "live"
	MethodCacheFresh Method = "cache_fresh"
	MethodCacheStale Method = "cache_stale"
)

// Level is the user-facing trust label for a result.
type Level string

const (
	LevelAlta  Level = "Alta"
	LevelMedia Level = "Media"
	LevelBaixa Level = "Baixa"
)

// Result is the derived trust score for a single search result. It is never
// persisted; callers embed it in whatever response envelope they return.
type Result struct {
	Score float64 `json:"score"`
	Level Level   `json:"level"`
}

// Weights applied to the three sub-scores.
const (
	coverageWeight  = 0.5
	freshnessWeight = 0.3
	methodWeight    = 0.2
)

// FreshnessScore maps minutes since the underlying data was last updated to a
// normalized score. Thresholds are evaluated in ascending order, first match
// wins.
func FreshnessScore(minutesSinceUpdate float64) float64 {
	switch {
	case minutesSinceUpdate < 5:
		return 1.0
	case minutesSinceUpdate < 60:
		return 0.7
	case minutesSinceUpdate < 360:
		return 0.4
	default:
		return 0.1
	}
}

// MethodScore maps a retrieval method to a normalized score. Unrecognized
// methods score the same as a stale cache hit rather than failing.
func MethodScore(method Method) float64 {
	switch method {
	case MethodLive:
		return 1.0
	case MethodCacheFresh:
		return 0.8
	case MethodCacheStale:
		return 0.4
	default:
		return 0.4
	}
}

// DeriveMethod resolves the retrieval method from the backend's response
// state and cache status fields. An absent state means the backend answered
// live; a "degraded" answer still came from the live path. Any state outside
// the known set (notably an empty-result failure) is treated as stale cache.
func DeriveMethod(responseState, cacheStatus string) Method {
	switch responseState {
	case "", "live", "degraded":
		return MethodLive
	case "cached":
		if cacheStatus == "fresh" {
			return MethodCacheFresh
		}
		return MethodCacheStale
	default:
		return MethodCacheStale
	}
}

// Calculate combines coverage percentage, freshness, and retrieval method
// into a Result. Coverage outside [0,100] is clamped before normalizing. The
// score is rounded to two decimals; a score of exactly 0.8 classifies as
// Media, not Alta.
func Calculate(coveragePct, minutesSinceUpdate float64, method Method) Result {
	coverage := coveragePct
	if coverage < 0 {
		coverage = 0
	}
	if coverage > 100 {
		coverage = 100
	}

	score := coverageWeight*(coverage/100) +
		freshnessWeight*FreshnessScore(minutesSinceUpdate) +
		methodWeight*MethodScore(method)
	score = math.Round(score*100) / 100

	return Result{Score: score, Level: levelFor(score)}
}

func levelFor(score float64) Level {
	switch {
	case score > 0.8:
		return LevelAlta
	case score >= 0.5:
		return LevelMedia
	default:
		return LevelBaixa
	}
}
