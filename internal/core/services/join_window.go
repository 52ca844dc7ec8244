package services

import (
	"fmt"
	"time"

	"telecare/internal/core/domain"
)

// JoinWindowPolicy decides whether a consultation may be joined right now
// relative to its scheduled time. The bounds are configuration, not code.
type JoinWindowPolicy struct {
	// Early is how long before the scheduled time joining opens.
	Early time.Duration
	// Late is how long after the scheduled time joining stays open.
	Late time.Duration
}

// DefaultJoinWindow opens 15 minutes early and closes 30 minutes late.
func DefaultJoinWindow() JoinWindowPolicy {
	return JoinWindowPolicy{Early: 15 * time.Minute, Late: 30 * time.Minute}
}

// Window returns the absolute joinable interval for a scheduled time.
func (p JoinWindowPolicy) Window(scheduledAt time.Time) (opens, closes time.Time) {
	return scheduledAt.Add(-p.Early), scheduledAt.Add(p.Late)
}

// Check returns ErrNotJoinable when now falls outside the window.
func (p JoinWindowPolicy) Check(scheduledAt, now time.Time) error {
	opens, closes := p.Window(scheduledAt)
	if now.Before(opens) {
		return fmt.Errorf("%w: opens in %s", domain.ErrNotJoinable, opens.Sub(now).Round(time.Second))
	}
	if now.After(closes) {
		return fmt.Errorf("%w: closed %s ago", domain.ErrNotJoinable, now.Sub(closes).Round(time.Second))
	}
	return nil
}
