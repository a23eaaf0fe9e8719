package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"research-board-platform/internal/logger"
	"research-board-platform/models"
)

// Result is what a tier produced: timestamped segments when the tier is
// time-aware, or a flat text blob otherwise. Tier records which tier
// succeeded.
type Result struct {
	Segments []models.Segment
	Text     string
	Tier     string
}

// PlainText joins segment texts when no flat text was set.
func (r *Result) PlainText() string {
	if r.Text != "" {
		return r.Text
	}
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// Empty reports whether the result carries no usable text.
func (r *Result) Empty() bool {
	if r == nil {
		return true
	}
	if strings.TrimSpace(r.Text) != "" {
		return false
	}
	for _, s := range r.Segments {
		if strings.TrimSpace(s.Text) != "" {
			return false
		}
	}
	return true
}

// Tier is one acquisition strategy. Tiers are tried in order; returning
// an error or an empty result sends the cascade to the next tier.
type Tier interface {
	Name() string
	Acquire(ctx context.Context, sourceURL string) (*Result, error)
}

// SoftFailure marks a non-final tier failure. The cascade logs and
// swallows these; they never reach the caller.
type SoftFailure struct {
	Tier string
	Err  error
}

func (e *SoftFailure) Error() string {
	return fmt.Sprintf("acquisition tier %s failed: %v", e.Tier, e.Err)
}

func (e *SoftFailure) Unwrap() error { return e.Err }

// TotalFailure means every tier was exhausted. It is terminal for the
// item being ingested.
type TotalFailure struct {
	Tier string
	Err  error
}

func (e *TotalFailure) Error() string {
	return fmt.Sprintf("all acquisition tiers exhausted, last tier %s: %v", e.Tier, e.Err)
}

func (e *TotalFailure) Unwrap() error { return e.Err }

var errNoUsableText = errors.New("tier produced no usable text")

// Cascade walks an ordered tier list. Every non-final failure becomes a
// logged SoftFailure and the walk continues; only the final tier's
// failure surfaces, wrapped as a TotalFailure.
type Cascade struct {
	tiers []Tier
}

// NewCascade builds a cascade over the given tiers, in order.
func NewCascade(tiers ...Tier) (*Cascade, error) {
	if len(tiers) == 0 {
		return nil, errors.New("cascade requires at least one tier")
	}
	return &Cascade{tiers: tiers}, nil
}

// Acquire tries each tier in order and returns the first usable result.
func (c *Cascade) Acquire(ctx context.Context, sourceURL string) (*Result, error) {
	for i, tier := range c.tiers {
		res, err := tier.Acquire(ctx, sourceURL)
		if err == nil && res.Empty() {
			err = errNoUsableText
		}
		if err != nil {
			if i == len(c.tiers)-1 {
				return nil, &TotalFailure{Tier: tier.Name(), Err: err}
			}
			soft := &SoftFailure{Tier: tier.Name(), Err: err}
			logger.Warn("Acquisition tier failed, falling through",
				"tier", tier.Name(), "url", sourceURL, "error", soft.Err.Error())
			continue
		}
		res.Tier = tier.Name()
		return res, nil
	}
	// Unreachable with a non-empty tier list.
	return nil, &TotalFailure{Err: errors.New("no tiers configured")}
}
