// Package clock implements the lag-compensated dual-clock model required by
// the timer manager and effect tracker: expiry logic follows the game-time
// clock recorded in the log, while visible countdown/audio phase follows a
// process-time clock backdated by the observed ingest lag.
//
// This is not a cosmetic detail: game events are observed with a variable
// file-I/O delay after they occurred in-game, so a process clock snapshot of
// "now" at the moment a trigger fires would always run the visible countdown
// behind a freshly-started timer's true game-time progress, and the
// discrepancy changes as the reader's read-induced delay itself varies.
package clock

import "time"

// Dual pairs a game-time anchor with a lag-compensated process-time anchor.
type Dual struct {
	GameStart    time.Time
	ProcessStart time.Time
}

// NewDual starts a Dual given the event's game timestamp and the current
// wall-clock time. The process anchor is backdated by the observed lag
// (now - eventTimestamp, clamped to >= 0) so that elapsed-time reads from
// either clock agree at the moment of creation.
func NewDual(eventTimestamp, now time.Time) Dual {
	lag := now.Sub(eventTimestamp)
	if lag < 0 {
		lag = 0
	}
	return Dual{
		GameStart:    eventTimestamp,
		ProcessStart: now.Add(-lag),
	}
}

// GameElapsed returns elapsed time since start, measured against the game
// clock, as of gameNow (normally the current event's timestamp).
func (d Dual) GameElapsed(gameNow time.Time) time.Duration {
	return gameNow.Sub(d.GameStart)
}

// ProcessElapsed returns elapsed time since start, measured against the
// lag-compensated process clock, as of processNow (normally time.Now()).
func (d Dual) ProcessElapsed(processNow time.Time) time.Duration {
	return processNow.Sub(d.ProcessStart)
}

// Restart resets both anchors, used when a timer/effect refreshes.
func (d *Dual) Restart(eventTimestamp, now time.Time) {
	*d = NewDual(eventTimestamp, now)
}
