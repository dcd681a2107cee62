package retry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 3*time.Second, p.InitialDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, time.Second, p.MaxJitter)
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, State{Count: 0, Delay: 3 * time.Second}, p.Initial())
}

func TestAdvance_NoJitter(t *testing.T) {
	p := DefaultPolicy()
	p.MaxJitter = 0

	want := []time.Duration{
		6 * time.Second,
		12 * time.Second,
		24 * time.Second,
		30 * time.Second, // Capped
		30 * time.Second,
	}

	s := p.Initial()
	for i, expected := range want {
		var ok bool
		s, ok = p.Advance(s)
		require.True(t, ok, "retry %d should be allowed", i+1)
		assert.Equal(t, i+1, s.Count)
		assert.Equal(t, expected, s.Delay, "retry %d", i+1)
	}

	after, ok := p.Advance(s)
	assert.False(t, ok, "retry past the ceiling must be refused")
	assert.Equal(t, s, after, "refused retry must not change state")
}

// Backoff never decreases between retries and never exceeds the cap,
// whatever the jitter draws.
func TestAdvance_BackoffGrowth(t *testing.T) {
	jitters := []time.Duration{0, 999 * time.Millisecond, 500 * time.Millisecond, 1, 250 * time.Millisecond}

	for run := 0; run < len(jitters); run++ {
		t.Run(fmt.Sprintf("run_%d", run), func(t *testing.T) {
			i := run
			p := DefaultPolicy()
			p.Jitter = func(max time.Duration) time.Duration {
				j := jitters[i%len(jitters)]
				i++
				return j
			}

			s := p.Initial()
			prev := s.Delay
			for n := 1; n <= p.MaxRetries; n++ {
				var ok bool
				s, ok = p.Advance(s)
				require.True(t, ok)

				assert.GreaterOrEqual(t, s.Delay, prev, "delay decreased at retry %d", n)
				assert.LessOrEqual(t, s.Delay, p.MaxDelay, "delay exceeded cap at retry %d", n)

				floor := 3 * time.Second << n
				if floor > p.MaxDelay {
					floor = p.MaxDelay
				}
				assert.GreaterOrEqual(t, s.Delay, floor, "delay below 3s*2^n at retry %d", n)
				prev = s.Delay
			}
		})
	}
}

func TestAdvance_RealJitterStaysInRange(t *testing.T) {
	p := DefaultPolicy()

	for i := 0; i < 100; i++ {
		s, ok := p.Advance(p.Initial())
		require.True(t, ok)
		assert.GreaterOrEqual(t, s.Delay, 6*time.Second)
		assert.Less(t, s.Delay, 7*time.Second)
	}
}

func TestExhausted(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		count     int
		exhausted bool
	}{
		{0, false},
		{4, false},
		{5, true},
		{6, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("count_%d", tt.count), func(t *testing.T) {
			assert.Equal(t, tt.exhausted, p.Exhausted(State{Count: tt.count}))
		})
	}
}

func TestNextDelay_ZeroMaxJitterNeverCallsJitterFunc(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: time.Minute, MaxRetries: 1}
	p.Jitter = func(time.Duration) time.Duration {
		t.Fatal("jitter func must not be called when MaxJitter is 0")
		return 0
	}

	assert.Equal(t, 2*time.Second, p.NextDelay(time.Second))
}
