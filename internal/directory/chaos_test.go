package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	calls int
}

func (s *stubClient) Authenticate(context.Context, string, string) error { s.calls++; return nil }
func (s *stubClient) FetchPerson(context.Context, string) (*Entry, error) {
	s.calls++
	return &Entry{Username: "alice"}, nil
}
func (s *stubClient) SetPersonDisplayName(context.Context, string, string) error {
	s.calls++
	return nil
}
func (s *stubClient) TerminateSession(context.Context) error { s.calls++; return nil }

type stubConnector struct {
	clients []*stubClient
	err     error
}

func (c *stubConnector) Connect(context.Context) (Client, error) {
	if c.err != nil {
		return nil, c.err
	}
	client := &stubClient{}
	c.clients = append(c.clients, client)
	return client, nil
}

func TestChaosConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ChaosConfig
		wantErr bool
	}{
		{"zero", ChaosConfig{}, false},
		{"error rate", ChaosConfig{ErrorRate: 0.5}, false},
		{"latency", ChaosConfig{LatencyMin: time.Millisecond, LatencyMax: 2 * time.Millisecond}, false},
		{"rate above one", ChaosConfig{ErrorRate: 1.5}, true},
		{"negative rate", ChaosConfig{ErrorRate: -0.1}, true},
		{"max below min", ChaosConfig{LatencyMin: time.Second, LatencyMax: time.Millisecond}, true},
		{"negative latency", ChaosConfig{LatencyMin: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.False(t, (&ChaosConfig{}).Enabled())
	assert.True(t, (&ChaosConfig{ErrorRate: 0.1}).Enabled())
}

func TestChaos_AlwaysFail(t *testing.T) {
	ctx := context.Background()
	inner := &stubConnector{}
	c, err := NewChaos(inner, ChaosConfig{ErrorRate: 1, Seed: 42})
	require.NoError(t, err)

	client, err := c.Connect(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, client.Authenticate(ctx, "alice", "pw"), ErrInjected)
	_, err = client.FetchPerson(ctx, "alice")
	assert.ErrorIs(t, err, ErrInjected)
	assert.ErrorIs(t, client.SetPersonDisplayName(ctx, "alice", "A"), ErrInjected)
	assert.ErrorIs(t, client.TerminateSession(ctx), ErrInjected)

	assert.Equal(t, 0, inner.clients[0].calls)
	assert.Equal(t, ChaosStats{Calls: 4, Injected: 4}, c.Stats())
}

func TestChaos_PassThrough(t *testing.T) {
	ctx := context.Background()
	inner := &stubConnector{}
	c, err := NewChaos(inner, ChaosConfig{})
	require.NoError(t, err)

	client, err := c.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, client.Authenticate(ctx, "alice", "pw"))
	entry, err := client.FetchPerson(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.Username)
	require.NoError(t, client.SetPersonDisplayName(ctx, "alice", "A"))
	require.NoError(t, client.TerminateSession(ctx))
	assert.Equal(t, 4, inner.clients[0].calls)
}

func TestChaos_Latency(t *testing.T) {
	ctx := context.Background()
	c, err := NewChaos(&stubConnector{}, ChaosConfig{
		LatencyMin: 10 * time.Millisecond,
		LatencyMax: 20 * time.Millisecond,
		Seed:       7,
	})
	require.NoError(t, err)

	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	client, err := c.Connect(ctx)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, client.Authenticate(ctx, "alice", "pw"))
	}

	require.Len(t, slept, 50)
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}
	assert.Equal(t, int64(50), c.Stats().Delayed)
}

func TestChaos_DeterministicPerSeed(t *testing.T) {
	ctx := context.Background()
	run := func() []bool {
		c, err := NewChaos(&stubConnector{}, ChaosConfig{ErrorRate: 0.3, Seed: 99})
		require.NoError(t, err)
		client, err := c.Connect(ctx)
		require.NoError(t, err)
		out := make([]bool, 100)
		for i := range out {
			out[i] = client.Authenticate(ctx, "alice", "pw") != nil
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestChaos_Errors(t *testing.T) {
	_, err := NewChaos(nil, ChaosConfig{})
	assert.Error(t, err)

	_, err = NewChaos(&stubConnector{}, ChaosConfig{ErrorRate: 2})
	assert.Error(t, err)

	boom := errors.New("boom")
	c, err := NewChaos(&stubConnector{err: boom}, ChaosConfig{})
	require.NoError(t, err)
	_, err = c.Connect(context.Background())
	assert.ErrorIs(t, err, boom)
}

// faults returns which of n calls on a fresh slot session fail.
func faults(t *testing.T, c *Chaos, slot uint64, n int) []bool {
	t.Helper()
	client, err := c.ConnectSlot(context.Background(), slot)
	require.NoError(t, err)
	out := make([]bool, n)
	for i := range out {
		out[i] = client.Authenticate(context.Background(), "alice", "pw") != nil
	}
	return out
}

func TestChaos_SlotsAreIndependentOfConnectOrder(t *testing.T) {
	config := ChaosConfig{ErrorRate: 0.5, Seed: 7}
	forward, err := NewChaos(&stubConnector{}, config)
	require.NoError(t, err)
	backward, err := NewChaos(&stubConnector{}, config)
	require.NoError(t, err)

	want := make(map[uint64][]bool)
	for slot := range uint64(5) {
		want[slot] = faults(t, forward, slot, 50)
	}
	for slot := uint64(5); slot > 0; slot-- {
		assert.Equal(t, want[slot-1], faults(t, backward, slot-1, 50), "slot %d", slot-1)
	}
	assert.NotEqual(t, want[0], want[1])
}

type stubTOTPClient struct {
	stubClient
	codes []string
}

func (s *stubTOTPClient) AuthenticateTOTP(_ context.Context, _, _, code string) error {
	s.codes = append(s.codes, code)
	return nil
}

type totpConnector struct{ client *stubTOTPClient }

func (c totpConnector) Connect(context.Context) (Client, error) { return c.client, nil }

func TestChaos_AuthenticateTOTP(t *testing.T) {
	ctx := context.Background()

	inner := &stubTOTPClient{}
	c, err := NewChaos(totpConnector{client: inner}, ChaosConfig{Seed: 1})
	require.NoError(t, err)
	client, err := c.Connect(ctx)
	require.NoError(t, err)

	tc, ok := client.(TOTPClient)
	require.True(t, ok)
	require.NoError(t, tc.AuthenticateTOTP(ctx, "alice", "pw", "123456"))
	assert.Equal(t, []string{"123456"}, inner.codes)

	plain := &stubConnector{}
	c, err = NewChaos(plain, ChaosConfig{Seed: 1})
	require.NoError(t, err)
	client, err = c.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, client.(TOTPClient).AuthenticateTOTP(ctx, "alice", "pw", "123456"))
	assert.Equal(t, 1, plain.clients[0].calls, "falls back to a password login")

	failing, err := NewChaos(&stubConnector{}, ChaosConfig{ErrorRate: 1, Seed: 1})
	require.NoError(t, err)
	client, err = failing.Connect(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, client.(TOTPClient).AuthenticateTOTP(ctx, "alice", "pw", "1"), ErrInjected)
}
