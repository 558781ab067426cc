package talk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State of a talk session.
type State int32

const (
	StateIdle State = iota
	StateJoining
	StateJoined
	StateLeaving
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	default:
		return "idle"
	}
}

// ErrSuperseded is returned from a join that was overtaken by a newer peer
// selection before it completed.
var ErrSuperseded = errors.New("join superseded by a newer peer selection")

// ErrNotJoined is returned when transmit is toggled outside a joined channel.
var ErrNotJoined = errors.New("no joined channel")

// RTC is the contract this session needs from the realtime-audio SDK. The
// SDK itself is an opaque collaborator; Leave must stop and release the
// local track and every subscribed remote track before returning.
type RTC interface {
	Join(ctx context.Context, channel, token string) error
	Leave(ctx context.Context) error
	SetTransmit(enabled bool) error
}

// CredentialSource issues a time-boxed join token for a channel. The signing
// secret lives with the issuer; the session only ever holds tokens.
type CredentialSource interface {
	Token(ctx context.Context, channel string) (string, error)
}

// ChannelForPeer derives the channel name for a peer deterministically, so
// both ends of a push-to-talk pair land in the same channel.
func ChannelForPeer(peerID string) string {
	return "channel_" + peerID
}

// Session manages one push-to-talk audio channel: acquiring a join
// credential, joining and leaving the channel, and toggling local
// transmission. Join/leave sequences are strictly serialized; selecting a new
// peer while a join is still in flight supersedes that join rather than
// allowing two live channels, which would leak an audio publish.
type Session struct {
	rtc    RTC
	creds  CredentialSource
	logger *zap.Logger

	// OnRemoteActive fires when remote audio activity in the joined channel
	// starts or stops. Purely an indicator; it drives no state transition.
	OnRemoteActive func(active bool)

	// opMu serializes whole join/leave sequences.
	opMu sync.Mutex

	mu           sync.Mutex
	state        State
	channel      string
	transmitting bool
	generation   uint64
	remote       map[string]struct{}
}

// NewSession constructs a session.
func NewSession(rtc RTC, creds CredentialSource, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		rtc:    rtc,
		creds:  creds,
		logger: logger,
		remote: make(map[string]struct{}),
	}
}

// State reports the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Channel reports the currently joined channel, empty when idle.
func (s *Session) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// Transmitting reports whether local audio is currently enabled.
func (s *Session) Transmitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transmitting
}

// SelectPeer joins the channel derived from the peer's id, leaving any
// currently joined channel first. A call that arrives while another select
// is still joining supersedes it: the earlier call's channel is left and it
// returns ErrSuperseded.
func (s *Session) SelectPeer(ctx context.Context, peerID string) error {
	if peerID == "" {
		return errors.New("peer id is required")
	}
	myGen := s.bumpGeneration()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.superseded(myGen) {
		return ErrSuperseded
	}
	if err := s.leaveLocked(ctx); err != nil {
		return err
	}

	channel := ChannelForPeer(peerID)
	s.setState(StateJoining, "")

	token, err := s.creds.Token(ctx, channel)
	if err != nil {
		s.setState(StateIdle, "")
		return fmt.Errorf("acquire join token: %w", err)
	}
	if s.superseded(myGen) {
		s.setState(StateIdle, "")
		return ErrSuperseded
	}

	if err := s.rtc.Join(ctx, channel, token); err != nil {
		s.setState(StateIdle, "")
		return fmt.Errorf("join channel %s: %w", channel, err)
	}
	if s.superseded(myGen) {
		// A newer selection won the race while this join was in flight;
		// leave immediately so no stale publish stays live.
		if err := s.rtc.Leave(ctx); err != nil {
			s.logger.Warn("superseded join leave failed", zap.Error(err))
		}
		s.setState(StateIdle, "")
		return ErrSuperseded
	}

	s.setState(StateJoined, channel)
	s.logger.Info("talk channel joined", zap.String("channel", channel))
	return nil
}

// ClearPeer leaves the current channel, if any, and settles in Idle.
func (s *Session) ClearPeer(ctx context.Context) error {
	s.bumpGeneration()
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.leaveLocked(ctx)
}

// Close tears the session down. Safe to call while a join is in flight: the
// join is superseded and the session settles in Idle with no published
// tracks.
func (s *Session) Close(ctx context.Context) error {
	return s.ClearPeer(ctx)
}

// PressTransmit enables the local outbound audio track. No effect outside a
// joined channel. A device failure is reported without leaving the channel.
func (s *Session) PressTransmit() error {
	return s.setTransmit(true)
}

// ReleaseTransmit disables the local outbound audio track.
func (s *Session) ReleaseTransmit() error {
	return s.setTransmit(false)
}

func (s *Session) setTransmit(enabled bool) error {
	s.mu.Lock()
	if s.state != StateJoined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	s.mu.Unlock()

	if err := s.rtc.SetTransmit(enabled); err != nil {
		return fmt.Errorf("set transmit: %w", err)
	}
	s.mu.Lock()
	if s.state == StateJoined {
		s.transmitting = enabled
	}
	s.mu.Unlock()
	return nil
}

// HandleRemotePublish is called by the RTC binding when a remote peer starts
// or stops publishing audio in the joined channel.
func (s *Session) HandleRemotePublish(peerID string, publishing bool) {
	s.mu.Lock()
	wasActive := len(s.remote) > 0
	if publishing {
		s.remote[peerID] = struct{}{}
	} else {
		delete(s.remote, peerID)
	}
	nowActive := len(s.remote) > 0
	callback := s.OnRemoteActive
	s.mu.Unlock()

	if callback != nil && wasActive != nowActive {
		callback(nowActive)
	}
}

// RemoteActive reports whether any remote peer is currently publishing.
func (s *Session) RemoteActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.remote) > 0
}

// leaveLocked drives Joined → Leaving → Idle. Caller holds opMu. The RTC
// Leave contract releases every held audio resource before returning, so
// Idle is only reported once the tracks are gone.
func (s *Session) leaveLocked(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	channel := s.channel
	s.mu.Unlock()
	if state != StateJoined {
		s.setState(StateIdle, "")
		return nil
	}

	s.setState(StateLeaving, channel)
	if err := s.rtc.Leave(ctx); err != nil {
		s.setState(StateIdle, "")
		return fmt.Errorf("leave channel %s: %w", channel, err)
	}
	s.setState(StateIdle, "")
	s.logger.Info("talk channel left", zap.String("channel", channel))
	return nil
}

func (s *Session) setState(state State, channel string) {
	s.mu.Lock()
	s.state = state
	s.channel = channel
	if state != StateJoined {
		s.transmitting = false
	}
	if state == StateIdle {
		s.remote = make(map[string]struct{})
	}
	s.mu.Unlock()
}

func (s *Session) bumpGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *Session) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation != gen
}
