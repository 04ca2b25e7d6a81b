package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/vault-secret-agent/pkg/timeutil"
)

var epoch = time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)

func TestSession_StartsUnauthenticated(t *testing.T) {
	s := New(timeutil.NewFakeClock(epoch))

	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, int64(0), s.RemainingTTL())
	assert.True(t, s.Snapshot().ExpiresAt().IsZero())
}

func TestSession_RemainingTTL(t *testing.T) {
	tests := []struct {
		name    string
		lease   int64
		elapsed time.Duration
		want    int64
	}{
		{"fresh", 3600, 0, 3600},
		{"partially_used", 3600, 3500 * time.Second, 100},
		{"exactly_expired", 3600, 3600 * time.Second, 0},
		{"long_expired_clamps_to_zero", 3600, 10 * time.Hour, 0},
		{"zero_lease", 0, 0, 0},
		{"zero_lease_after_time", 0, time.Minute, 0},
		{"sub_second_elapsed_ignored", 60, 500 * time.Millisecond, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := timeutil.NewFakeClock(epoch)
			s := New(clock)
			s.ApplyAuth("hvs.token-value", tt.lease, true)

			clock.Advance(tt.elapsed)

			assert.Equal(t, tt.want, s.RemainingTTL())
		})
	}
}

func TestSession_RemainingTTL_NeverNegative(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch)
	s := New(clock)

	for lease := int64(0); lease <= 50; lease += 7 {
		s.ApplyAuth("hvs.token-value", lease, false)
		for elapsed := int64(0); elapsed <= 60; elapsed += 3 {
			clock.Set(epoch.Add(time.Duration(elapsed) * time.Second))
			ttl := s.RemainingTTL()
			want := lease - elapsed
			if want < 0 {
				want = 0
			}
			require.Equal(t, want, ttl, "lease=%d elapsed=%d", lease, elapsed)
		}
		clock.Set(epoch)
	}
}

func TestSession_ClockMovedBackwards(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch)
	s := New(clock)
	s.ApplyAuth("hvs.token-value", 600, true)

	clock.Set(epoch.Add(-time.Hour))

	assert.Equal(t, int64(600), s.RemainingTTL())
}

func TestSession_ApplyAuthReplacesEverything(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch)
	s := New(clock)
	s.ApplyAuth("hvs.first", 3600, true)

	clock.Advance(time.Minute)
	snap := s.ApplyAuth("hvs.second", 120, false)

	assert.Equal(t, "hvs.second", snap.Token)
	assert.Equal(t, int64(120), snap.LeaseSeconds)
	assert.False(t, snap.Renewable)
	assert.Equal(t, epoch.Add(time.Minute), snap.IssuedAt)
	assert.Equal(t, snap, s.Snapshot())
	assert.Equal(t, epoch.Add(time.Minute+120*time.Second), snap.ExpiresAt())
}

func TestSession_ApplyRenewalKeepsToken(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch)
	s := New(clock)
	s.ApplyAuth("hvs.token-value", 3600, true)

	clock.Advance(3500 * time.Second)
	snap, ok := s.ApplyRenewal(3600)

	require.True(t, ok)
	assert.Equal(t, "hvs.token-value", snap.Token)
	assert.True(t, snap.Renewable)
	assert.Equal(t, int64(3600), snap.LeaseSeconds)
	assert.Equal(t, epoch.Add(3500*time.Second), snap.IssuedAt)
	assert.Equal(t, int64(3600), s.RemainingTTL())
}

func TestSession_ApplyRenewalOnEmptySession(t *testing.T) {
	s := New(timeutil.NewFakeClock(epoch))

	_, ok := s.ApplyRenewal(3600)

	assert.False(t, ok)
	assert.False(t, s.IsAuthenticated())
}

func TestSession_NegativeLeaseClamped(t *testing.T) {
	s := New(timeutil.NewFakeClock(epoch))

	snap := s.ApplyAuth("hvs.token-value", -5, true)

	assert.Equal(t, int64(0), snap.LeaseSeconds)
	assert.Equal(t, int64(0), s.RemainingTTL())
}

// Readers must never see a token paired with another write's lease.
func TestSession_ConcurrentSnapshotsAreConsistent(t *testing.T) {
	s := New(timeutil.NewFakeClock(epoch))
	s.ApplyAuth("token-100", 100, true)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			if i%2 == 0 {
				s.ApplyAuth("token-200", 200, false)
			} else {
				s.ApplyAuth("token-100", 100, true)
			}
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				switch snap.Token {
				case "token-100":
					if snap.LeaseSeconds != 100 || !snap.Renewable {
						t.Errorf("torn read: %+v", snap)
						return
					}
				case "token-200":
					if snap.LeaseSeconds != 200 || snap.Renewable {
						t.Errorf("torn read: %+v", snap)
						return
					}
				default:
					t.Errorf("unexpected token %q", snap.Token)
					return
				}
			}
		}()
	}

	wg.Wait()
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", ""},
		{"abc", "****"},
		{"abcdefgh", "abcd..."},
		{"hvs.CAESIJ0123456789", "hvs.CAESIJ..."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskToken(tt.token), "token %q", tt.token)
	}
}
