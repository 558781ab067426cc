package talk_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/fleetwatch/internal/talk"
)

type fakeRTC struct {
	mu       sync.Mutex
	joins    []string
	tokens   []string
	leaves   int
	transmit []bool
	joinErr  error
	txErr    error

	// joinGate, when set, blocks Join until released.
	joinGate chan struct{}
}

func (r *fakeRTC) Join(_ context.Context, channel, token string) error {
	if r.joinGate != nil {
		<-r.joinGate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.joinErr != nil {
		return r.joinErr
	}
	r.joins = append(r.joins, channel)
	r.tokens = append(r.tokens, token)
	return nil
}

func (r *fakeRTC) Leave(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves++
	return nil
}

func (r *fakeRTC) SetTransmit(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.txErr != nil {
		return r.txErr
	}
	r.transmit = append(r.transmit, enabled)
	return nil
}

type staticCreds struct{ err error }

func (c staticCreds) Token(_ context.Context, channel string) (string, error) {
	return "token-for-" + channel, c.err
}

func TestSelectPeerJoinsDerivedChannel(t *testing.T) {
	rtc := &fakeRTC{}
	s := talk.NewSession(rtc, staticCreds{}, nil)

	require.NoError(t, s.SelectPeer(context.Background(), "unit-7"))
	require.Equal(t, talk.StateJoined, s.State())
	require.Equal(t, "channel_unit-7", s.Channel())
	require.Equal(t, []string{"channel_unit-7"}, rtc.joins)
	require.False(t, s.Transmitting())
}

func TestSessionJoinsWithIssuerBackedCredentials(t *testing.T) {
	issuer, err := talk.NewTokenIssuer([]byte("local-secret"), 0)
	require.NoError(t, err)

	rtc := &fakeRTC{}
	s := talk.NewSession(rtc, talk.IssuerSource{Issuer: issuer, UID: "operator-1"}, nil)

	require.NoError(t, s.SelectPeer(context.Background(), "unit-9"))
	require.Equal(t, talk.StateJoined, s.State())

	require.Len(t, rtc.tokens, 1)
	channel, uid, err := issuer.Verify(rtc.tokens[0])
	require.NoError(t, err)
	require.Equal(t, "channel_unit-9", channel)
	require.Equal(t, "operator-1", uid)
}

func TestSelectPeerLeavesPreviousChannel(t *testing.T) {
	rtc := &fakeRTC{}
	s := talk.NewSession(rtc, staticCreds{}, nil)

	require.NoError(t, s.SelectPeer(context.Background(), "unit-1"))
	require.NoError(t, s.SelectPeer(context.Background(), "unit-2"))

	require.Equal(t, "channel_unit-2", s.Channel())
	require.Equal(t, 1, rtc.leaves)
	require.Equal(t, []string{"channel_unit-1", "channel_unit-2"}, rtc.joins)
}

func TestSecondSelectSupersedesInFlightJoin(t *testing.T) {
	rtc := &fakeRTC{joinGate: make(chan struct{})}
	s := talk.NewSession(rtc, staticCreds{}, nil)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.SelectPeer(context.Background(), "unit-1")
	}()

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- s.SelectPeer(context.Background(), "unit-2")
	}()

	// Release both joins; exactly one selection may win and it is the later
	// one. The superseded join's channel is left so no publish leaks.
	close(rtc.joinGate)

	err1 := <-firstDone
	err2 := <-secondDone

	if errors.Is(err1, talk.ErrSuperseded) {
		require.NoError(t, err2)
		require.Equal(t, "channel_unit-2", s.Channel())
	} else {
		// The goroutines raced the other way round: the "second" call ran
		// first and was superseded by the first.
		require.ErrorIs(t, err2, talk.ErrSuperseded)
		require.NoError(t, err1)
		require.Equal(t, "channel_unit-1", s.Channel())
	}
	require.Equal(t, talk.StateJoined, s.State())

	rtc.mu.Lock()
	defer rtc.mu.Unlock()
	// The losing join, if it reached the SDK, was rolled back with a leave.
	require.LessOrEqual(t, len(rtc.joins)-rtc.leaves, 1)
}

func TestTransmitRequiresJoinedChannel(t *testing.T) {
	rtc := &fakeRTC{}
	s := talk.NewSession(rtc, staticCreds{}, nil)

	require.ErrorIs(t, s.PressTransmit(), talk.ErrNotJoined)
	require.Empty(t, rtc.transmit)

	require.NoError(t, s.SelectPeer(context.Background(), "unit-1"))
	require.NoError(t, s.PressTransmit())
	require.True(t, s.Transmitting())
	require.NoError(t, s.ReleaseTransmit())
	require.False(t, s.Transmitting())
	require.Equal(t, []bool{true, false}, rtc.transmit)
}

func TestTransmitDeviceFailureKeepsChannel(t *testing.T) {
	rtc := &fakeRTC{}
	s := talk.NewSession(rtc, staticCreds{}, nil)
	require.NoError(t, s.SelectPeer(context.Background(), "unit-1"))

	rtc.txErr = errors.New("mic unavailable")
	require.Error(t, s.PressTransmit())
	require.Equal(t, talk.StateJoined, s.State())
	require.False(t, s.Transmitting())
}

func TestCredentialFailureStaysIdle(t *testing.T) {
	rtc := &fakeRTC{}
	s := talk.NewSession(rtc, staticCreds{err: errors.New("issuer down")}, nil)

	require.Error(t, s.SelectPeer(context.Background(), "unit-1"))
	require.Equal(t, talk.StateIdle, s.State())
	require.Empty(t, rtc.joins)
}

func TestCloseReleasesChannelAndTransmit(t *testing.T) {
	rtc := &fakeRTC{}
	s := talk.NewSession(rtc, staticCreds{}, nil)
	require.NoError(t, s.SelectPeer(context.Background(), "unit-1"))
	require.NoError(t, s.PressTransmit())

	require.NoError(t, s.Close(context.Background()))
	require.Equal(t, talk.StateIdle, s.State())
	require.Empty(t, s.Channel())
	require.False(t, s.Transmitting())
	require.Equal(t, 1, rtc.leaves)
}

func TestRemoteActivityIndicator(t *testing.T) {
	rtc := &fakeRTC{}
	s := talk.NewSession(rtc, staticCreds{}, nil)
	require.NoError(t, s.SelectPeer(context.Background(), "unit-1"))

	var transitions []bool
	s.OnRemoteActive = func(active bool) { transitions = append(transitions, active) }

	s.HandleRemotePublish("peer-a", true)
	s.HandleRemotePublish("peer-b", true)
	s.HandleRemotePublish("peer-a", false)
	s.HandleRemotePublish("peer-b", false)

	require.True(t, s.RemoteActive() == false)
	// Only emptiness transitions fire, not every publish event.
	require.Equal(t, []bool{true, false}, transitions)
}
