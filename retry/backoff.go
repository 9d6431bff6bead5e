// Package retry decides when failed tiles are loaded again.
package retry

import (
	"math"

	"github.com/adam-ce/cesium/models"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseFrames = 1
	DefaultMaxFrames  = 600
)

// Backoff lets a failed tile be loaded again after a number of frames that
// doubles with each attempt. An optional limiter caps the rate of retries
// across all tiles.
type Backoff struct {
	// The number of frames to wait after the first failed attempt.
	BaseFrames uint64

	// The maximum number of frames to wait between attempts.
	MaxFrames uint64

	Limiter *rate.Limiter
}

// NewBackoff returns a backoff whose retries are limited to perSecond, with
// bursts of up to burst retries. A zero perSecond disables the limit.
func NewBackoff(baseFrames, maxFrames uint64, perSecond float64, burst int) *Backoff {
	b := &Backoff{
		BaseFrames: baseFrames,
		MaxFrames:  maxFrames,
	}

	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		b.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return b
}

// Delay returns the number of frames to wait after the given number of
// attempts.
func (b *Backoff) Delay(attempts int) uint64 {
	base := b.BaseFrames
	if base == 0 {
		base = DefaultBaseFrames
	}

	limit := b.MaxFrames
	if limit == 0 {
		limit = DefaultMaxFrames
	}

	if attempts <= 1 {
		return min(base, limit)
	}

	shift := float64(attempts - 1)
	if shift >= 63 {
		return limit
	}

	delay := float64(base) * math.Pow(2, shift)
	if delay >= float64(limit) {
		return limit
	}
	return uint64(delay)
}

// Due reports whether the backoff delay of t is over in frame.
func (b *Backoff) Due(t *models.Tile, frame uint64) bool {
	return frame >= t.LastLoadFrame && frame-t.LastLoadFrame >= b.Delay(t.LoadAttempts)
}

// Allow reports whether t can be loaded again in frame. It takes a token from
// the limiter when the delay is over.
func (b *Backoff) Allow(t *models.Tile, frame uint64) bool {
	if !b.Due(t, frame) {
		return false
	}

	if b.Limiter != nil {
		return b.Limiter.Allow()
	}
	return true
}
