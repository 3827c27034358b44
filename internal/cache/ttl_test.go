package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgtv/livestatus/internal/live"
)

func TestTTLPolicyForStaysInRange(t *testing.T) {
	policy := TTLPolicy{
		Live:    TTLRange{Min: 15 * time.Second, Max: 30 * time.Second},
		Offline: TTLRange{Min: 45 * time.Second, Max: 75 * time.Second},
		Unknown: TTLRange{Min: 25 * time.Second, Max: 40 * time.Second},
	}

	cases := []struct {
		status live.Status
		rng    TTLRange
	}{
		{live.StatusLive, policy.Live},
		{live.StatusOffline, policy.Offline},
		{live.StatusUnknown, policy.Unknown},
	}
	for _, tc := range cases {
		for range 50 {
			ttl := policy.For(tc.status)
			require.GreaterOrEqual(t, ttl, tc.rng.Min, "status %s", tc.status)
			require.Less(t, ttl, tc.rng.Max, "status %s", tc.status)
		}
	}
}

func TestTTLPolicyForDegenerateRange(t *testing.T) {
	policy := DefaultTTLPolicy()
	policy.Live = TTLRange{Min: 20 * time.Second, Max: 20 * time.Second}
	require.Equal(t, 20*time.Second, policy.For(live.StatusLive))
}

func TestTTLPolicyForUnrecognizedStatusUsesUnknownRange(t *testing.T) {
	policy := DefaultTTLPolicy()
	ttl := policy.For(live.Status("banned"))
	require.GreaterOrEqual(t, ttl, policy.Unknown.Min)
	require.Less(t, ttl, policy.Unknown.Max)
}

func TestTTLPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultTTLPolicy().Validate())

	bad := DefaultTTLPolicy()
	bad.Offline = TTLRange{Min: time.Minute, Max: time.Second}
	require.Error(t, bad.Validate())

	zero := DefaultTTLPolicy()
	zero.Unknown = TTLRange{}
	require.Error(t, zero.Validate())
}
