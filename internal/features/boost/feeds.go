// Package boost — feeds.go собирает State из независимых источников.
package boost

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Feeds — источники процентных бустов.
type Feeds interface {
	ReferralPct(ctx context.Context, userID uuid.UUID) (float64, error)
	XProfilePct(ctx context.Context, userID uuid.UUID) (float64, error)
	XPostPct(ctx context.Context, userID uuid.UUID) (float64, error)
	ArenaBoosts(ctx context.Context, userID uuid.UUID) ([]ArenaBoost, error)
}

// StreakSource — источник длины стрика.
type StreakSource interface {
	Days(ctx context.Context, userID uuid.UUID) (int, error)
}

// Load читает все источники. Упавший источник логируется и даёт 0 —
// скорость и начисление никогда не блокируются из-за бустов.
func Load(ctx context.Context, feeds Feeds, streaks StreakSource, userID uuid.UUID) State {
	var s State
	logger := log.WithField("user_id", userID)

	degrade := func(feed string, err error) {
		logger.WithError(err).WithField("feed", feed).Warn("Источник буста недоступен, считаем 0")
	}

	if pct, err := feeds.ReferralPct(ctx, userID); err != nil {
		degrade("referral", err)
	} else {
		s.ReferralPct = pct
	}
	if pct, err := feeds.XProfilePct(ctx, userID); err != nil {
		degrade("x_profile", err)
	} else {
		s.XProfilePct = pct
	}
	if pct, err := feeds.XPostPct(ctx, userID); err != nil {
		degrade("x_post", err)
	} else {
		s.XPostPct = pct
	}
	if boosts, err := feeds.ArenaBoosts(ctx, userID); err != nil {
		degrade("arena", err)
	} else {
		s.ArenaBoosts = boosts
	}
	if streaks != nil {
		if days, err := streaks.Days(ctx, userID); err != nil {
			degrade("streak", err)
		} else {
			s.StreakDays = days
		}
	}
	return s
}
