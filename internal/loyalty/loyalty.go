// Package loyalty classifies members into tiers by cumulative eligible spend
// and derives point expiry status at read time.
package loyalty

import (
	"math"
	"strings"
	"time"
)

// Tier is an ordered membership level: TierBase < TierMid < TierTop.
type Tier int

const (
	TierBase Tier = iota
	TierMid
	TierTop
)

func (t Tier) String() string {
	switch t {
	case TierMid:
		return "mid"
	case TierTop:
		return "top"
	default:
		return "base"
	}
}

// Label is the name shown to members.
func (t Tier) Label() string {
	switch t {
	case TierMid:
		return "Gold"
	case TierTop:
		return "Platinum"
	default:
		return "Silver"
	}
}

// Thresholds are the cumulative spend amounts that unlock the mid and top tiers.
type Thresholds struct {
	Mid float64
	Top float64
}

// DefaultThresholds returns the current program thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Mid: 100_000_000, Top: 200_000_000}
}

// Classify returns the tier for spend. Boundaries are inclusive.
func Classify(spend float64, th Thresholds) Tier {
	spend = math.Max(spend, 0)
	switch {
	case spend >= th.Top:
		return TierTop
	case spend >= th.Mid:
		return TierMid
	default:
		return TierBase
	}
}

// Standing is a member's tier plus progress toward the next one.
type Standing struct {
	Spend   float64
	Tier    Tier
	Next    Tier
	HasNext bool

	// Overall is spend / Top capped at 1.
	Overall float64
	// Segment is progress within the current tier band, 1 at the top tier.
	Segment float64
	// Remaining is the spend still needed for Next, 0 at the top tier.
	Remaining float64
}

// Evaluate computes the standing for spend.
func Evaluate(spend float64, th Thresholds) Standing {
	spend = math.Max(spend, 0)
	s := Standing{Spend: spend, Tier: Classify(spend, th)}

	if th.Top > 0 {
		s.Overall = math.Min(spend/th.Top, 1)
	} else {
		s.Overall = 1
	}

	var lower, upper float64
	switch s.Tier {
	case TierBase:
		lower, upper = 0, th.Mid
		s.Next, s.HasNext = TierMid, true
	case TierMid:
		lower, upper = th.Mid, th.Top
		s.Next, s.HasNext = TierTop, true
	default:
		s.Next = TierTop
		s.Segment = 1
		return s
	}

	if upper > lower {
		s.Segment = (spend - lower) / (upper - lower)
	}
	s.Remaining = upper - spend
	return s
}

// AdjustExpiry moves an expiry on the 1st of a month back one day, so points
// read as expiring at the end of the previous month. Other days are unchanged.
func AdjustExpiry(t time.Time) time.Time {
	if t.Day() == 1 {
		return t.AddDate(0, 0, -1)
	}
	return t
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats the backend emits. Layouts
// without a zone are read in loc. Empty or malformed input reports false.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ExpiryStatus is the read-time expiry annotation of a point transaction.
type ExpiryStatus struct {
	HasExpiry       bool
	ExpiresAt       time.Time
	Expired         bool
	ExpiringSoon    bool
	DaysUntilExpiry int
}

// Annotate derives the expiry status of a transaction worth points. A nil
// expiry yields the zero status, which renders no badge.
func Annotate(points int, expiresAt *time.Time, now time.Time) ExpiryStatus {
	if expiresAt == nil || expiresAt.IsZero() {
		return ExpiryStatus{}
	}

	adjusted := AdjustExpiry(*expiresAt)
	remaining := adjusted.Sub(now)

	return ExpiryStatus{
		HasExpiry:       true,
		ExpiresAt:       adjusted,
		Expired:         adjusted.Before(now),
		ExpiringSoon:    adjusted.After(now) && points > 0,
		DaysUntilExpiry: int(math.Ceil(remaining.Hours() / 24)),
	}
}
