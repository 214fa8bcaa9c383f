package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDualBackdatesByLag(t *testing.T) {
	eventTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := eventTime.Add(2 * time.Second) // 2s of ingest lag

	d := NewDual(eventTime, now)
	require.Equal(t, eventTime, d.GameStart)
	require.Equal(t, eventTime, d.ProcessStart, "process start must be backdated to align with game time")
}

func TestNewDualClampsNegativeLag(t *testing.T) {
	eventTime := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	now := eventTime.Add(-1 * time.Second) // event timestamp "in the future" vs now: clock skew

	d := NewDual(eventTime, now)
	require.Equal(t, now, d.ProcessStart)
}

func TestElapsedAgreesAtCreation(t *testing.T) {
	eventTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := eventTime.Add(3 * time.Second)

	d := NewDual(eventTime, now)
	require.Equal(t, d.GameElapsed(now), d.ProcessElapsed(now))
}
