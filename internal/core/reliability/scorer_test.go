package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreshnessScore(t *testing.T) {
	tests := []struct {
		name     string
		minutes  float64
		expected float64
	}{
		{"just updated", 0, 1.0},
		{"under five minutes", 4.9, 1.0},
		{"five minutes exactly", 5, 0.7},
		{"under an hour", 59, 0.7},
		{"one hour exactly", 60, 0.4},
		{"under six hours", 359, 0.4},
		{"six hours exactly", 360, 0.1},
		{"days old", 10000, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FreshnessScore(tt.minutes))
		})
	}
}

func TestMethodScore(t *testing.T) {
	assert.Equal(t, 1.0, MethodScore(MethodLive))
	assert.Equal(t, 0.8, MethodScore(MethodCacheFresh))
	assert.Equal(t, 0.4, MethodScore(MethodCacheStale))

	// Unknown methods fall back to the stale-cache score, never zero.
	assert.Equal(t, 0.4, MethodScore(Method("bogus")))
	assert.Equal(t, 0.4, MethodScore(Method("")))
}

func TestDeriveMethod(t *testing.T) {
	tests := []struct {
		name        string
		state       string
		cacheStatus string
		expected    Method
	}{
		{"absent state is live", "", "", MethodLive},
		{"explicit live", "live", "", MethodLive},
		{"degraded still live", "degraded", "", MethodLive},
		{"cached and fresh", "cached", "fresh", MethodCacheFresh},
		{"cached and stale", "cached", "stale", MethodCacheStale},
		{"cached with unknown status", "cached", "", MethodCacheStale},
		{"failure state maps to stale", "empty_results", "", MethodCacheStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveMethod(tt.state, tt.cacheStatus))
		})
	}
}

func TestCalculate_PerfectResult(t *testing.T) {
	result := Calculate(100, 0, MethodLive)

	assert.Equal(t, 1.00, result.Score)
	assert.Equal(t, LevelAlta, result.Level)
}

func TestCalculate_WorstCase(t *testing.T) {
	result := Calculate(0, 1000, MethodCacheStale)

	// 0.5*0 + 0.3*0.1 + 0.2*0.4 = 0.11
	assert.Equal(t, 0.11, result.Score)
	assert.Equal(t, LevelBaixa, result.Level)
}

func TestCalculate_ClampsCoverage(t *testing.T) {
	over := Calculate(150, 0, MethodLive)
	capped := Calculate(100, 0, MethodLive)
	assert.Equal(t, capped, over)

	under := Calculate(-20, 0, MethodLive)
	floor := Calculate(0, 0, MethodLive)
	assert.Equal(t, floor, under)
}

func TestCalculate_BoundaryIsMedia(t *testing.T) {
	// 0.5*0.6 + 0.3*1.0 + 0.2*1.0 = 0.80 exactly: Media, not Alta.
	result := Calculate(60, 0, MethodLive)

	assert.Equal(t, 0.80, result.Score)
	assert.Equal(t, LevelMedia, result.Level)
}

func TestCalculate_Levels(t *testing.T) {
	tests := []struct {
		name     string
		coverage float64
		minutes  float64
		method   Method
		level    Level
	}{
		{"high coverage live", 95, 2, MethodLive, LevelAlta},
		{"mid coverage fresh cache", 70, 30, MethodCacheFresh, LevelMedia},
		{"low coverage stale cache", 20, 400, MethodCacheStale, LevelBaixa},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Calculate(tt.coverage, tt.minutes, tt.method)
			assert.Equal(t, tt.level, result.Level)
		})
	}
}
