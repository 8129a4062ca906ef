// Package scoring computes the 0-100 quality score of every indexed entry.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/metrics"
)

// Sub-score weights. They sum to 1.
const (
	WeightPopularity   = 0.30
	WeightFreshness    = 0.20
	WeightCompleteness = 0.20
	WeightCompliance   = 0.20
	WeightCommunity    = 0.10
)

// Breakdown holds the unweighted sub-scores, each in [0,100].
type Breakdown struct {
	Popularity   float64 `json:"popularity"`
	Freshness    float64 `json:"freshness"`
	Completeness float64 `json:"completeness"`
	Compliance   float64 `json:"compliance"`
	Community    float64 `json:"community"`
}

// Total returns the weighted sum clamped to [0,100].
func (b Breakdown) Total() float64 {
	total := b.Popularity*WeightPopularity +
		b.Freshness*WeightFreshness +
		b.Completeness*WeightCompleteness +
		b.Compliance*WeightCompliance +
		b.Community*WeightCommunity
	return clamp(total, 0, 100)
}

// Result is the score assigned to one entry.
type Result struct {
	EntryID   string    `json:"entry_id"`
	Slug      string    `json:"slug"`
	Score     int       `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Ceilings are the corpus-wide reference values popularity is normalised
// against.
type Ceilings struct {
	Stars     int `json:"stars"`
	Downloads int `json:"downloads"`
}

// Snapshot is the document exported after each scoring pass.
type Snapshot struct {
	ScoredAt time.Time `json:"scored_at"`
	Ceilings Ceilings  `json:"ceilings"`
	Results  []Result  `json:"results"`
}

// Option customises a Scorer.
type Option func(*Scorer)

// WithSnapshots writes a JSON snapshot of each pass under prefix in blobs.
func WithSnapshots(blobs index.BlobStore, prefix string) Option {
	return func(s *Scorer) {
		s.blobs = blobs
		s.prefix = prefix
	}
}

// Scorer rescores the whole index.
type Scorer struct {
	store  index.EntryStore
	clock  index.Clock
	logger *zap.Logger
	blobs  index.BlobStore
	prefix string
}

// New constructs a Scorer.
func New(store index.EntryStore, clock index.Clock, logger *zap.Logger, opts ...Option) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scorer{store: store, clock: clock, logger: logger.Named("scoring")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreAll computes and persists a score for every entry. A failed snapshot
// write is logged and does not fail the pass.
func (s *Scorer) ScoreAll(ctx context.Context) ([]Result, error) {
	start := time.Now()
	inputs, err := s.store.ListForScoring(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	now := s.clock.Now()
	ceilings := ComputeCeilings(inputs)

	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		breakdown := Score(in, ceilings, now)
		score := int(math.Round(breakdown.Total()))
		if err := s.store.UpdateQualityScore(ctx, in.Entry.ID, score); err != nil {
			return results, fmt.Errorf("persist score for %q: %w", in.Entry.Slug, err)
		}
		results = append(results, Result{
			EntryID:   in.Entry.ID,
			Slug:      in.Entry.Slug,
			Score:     score,
			Breakdown: breakdown,
		})
	}
	metrics.ObserveScoring(time.Since(start))
	s.logger.Info("scoring pass finished",
		zap.Int("entries", len(results)),
		zap.Int("star_ceiling", ceilings.Stars),
		zap.Int("download_ceiling", ceilings.Downloads),
	)

	if s.blobs != nil {
		if uri, err := s.writeSnapshot(ctx, Snapshot{ScoredAt: now, Ceilings: ceilings, Results: results}); err != nil {
			s.logger.Warn("score snapshot failed", zap.Error(err))
		} else {
			s.logger.Info("score snapshot written", zap.String("uri", uri))
		}
	}
	return results, nil
}

func (s *Scorer) writeSnapshot(ctx context.Context, snap Snapshot) (string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	path := SnapshotPath(s.prefix, snap.ScoredAt)
	return s.blobs.PutObject(ctx, path, "application/json", bytes.NewReader(payload))
}

// SnapshotPath returns {prefix}/scores/{timestamp}.json.
func SnapshotPath(prefix string, at time.Time) string {
	name := "scores/" + at.UTC().Format("20060102T150405Z") + ".json"
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// ComputeCeilings takes the 95th percentile of stars and downloads, falling
// back to the maximum and then to 1 so normalisation never divides by zero.
func ComputeCeilings(inputs []index.ScoringInput) Ceilings {
	stars := make([]int, 0, len(inputs))
	downloads := make([]int, 0, len(inputs))
	for _, in := range inputs {
		stars = append(stars, in.Entry.Stars)
		downloads = append(downloads, in.Entry.WeeklyDownloads)
	}
	return Ceilings{Stars: p95(stars), Downloads: p95(downloads)}
}

func p95(values []int) int {
	if len(values) == 0 {
		return 1
	}
	sort.Sort(sort.Reverse(sort.IntSlice(values)))
	v := values[int(math.Floor(float64(len(values))*0.05))]
	if v <= 0 {
		v = values[0]
	}
	if v <= 0 {
		v = 1
	}
	return v
}

// Score computes the sub-scores of one entry. It is pure: the same input,
// ceilings and reference time always produce the same breakdown.
func Score(in index.ScoringInput, ceilings Ceilings, now time.Time) Breakdown {
	return Breakdown{
		Popularity:   popularity(in.Entry, ceilings),
		Freshness:    freshness(in.Entry, now),
		Completeness: completeness(in.Entry),
		Compliance:   compliance(in),
		Community:    community(in.Entry),
	}
}

func popularity(e index.Entry, c Ceilings) float64 {
	return 0.6*normalize(float64(e.Stars), float64(c.Stars)) +
		0.4*normalize(float64(e.WeeklyDownloads), float64(c.Downloads))
}

// normalize maps v onto [0,100] on a log scale relative to ceiling.
func normalize(v, ceiling float64) float64 {
	if v <= 0 {
		return 0
	}
	if ceiling < 1 {
		ceiling = 1
	}
	return math.Min(100, math.Log1p(v)/math.Log1p(ceiling)*100)
}

var freshnessSteps = []struct {
	days  float64
	score float64
}{
	{7, 100},
	{30, 80},
	{90, 60},
	{180, 40},
	{365, 20},
}

func freshness(e index.Entry, now time.Time) float64 {
	last, ok := lastActivity(e)
	if !ok {
		return 0
	}
	days := now.Sub(last).Hours() / 24
	for _, step := range freshnessSteps {
		if days <= step.days {
			return step.score
		}
	}
	return 5
}

// lastActivity prefers the upstream push time over the local update time.
func lastActivity(e index.Entry) (time.Time, bool) {
	if raw, ok := e.Metadata["pushedAt"].(string); ok && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, true
		}
	}
	if !e.UpdatedAt.IsZero() {
		return e.UpdatedAt, true
	}
	return time.Time{}, false
}

func completeness(e index.Entry) float64 {
	var score float64
	if len([]rune(e.Description)) > 10 {
		score += 25
	}
	if e.License != "" {
		score += 20
	}
	if e.InstallCommand != "" {
		score += 30
	}
	if readme, _ := e.Metadata["readme"].(string); readme != "" || e.Description != "" {
		score += 25
	}
	return score
}

func compliance(in index.ScoringInput) float64 {
	var score float64
	if in.ToolCount > 0 {
		score += 35
	}
	if in.ResourceCount > 0 {
		score += 20
	}
	if in.PromptCount > 0 {
		score += 15
	}
	if hasDep, _ := in.Entry.Metadata["hasMcpDependency"].(bool); hasDep {
		score += 30
	}
	return score
}

func community(e index.Entry) float64 {
	forks := number(e.Metadata["forksCount"])
	issues := number(e.Metadata["openIssuesCount"])
	return math.Min(100, forks*5)*0.6 + math.Min(100, issues*3)*0.4
}

// number reads a metadata counter regardless of how it was decoded.
func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
