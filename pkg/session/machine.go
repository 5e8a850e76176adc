// Package session reconciles the wallet extension's connection signal with
// what the user sees. The extension reports a disconnect on every client-side
// navigation; the session keeps showing the cached address through those
// gaps, and only a user-initiated disconnect forgets it.
package session

import (
	"time"
)

const (
	DefaultSuppressWindow = 500 * time.Millisecond
	DefaultReconnectGrace = 5 * time.Second
)

// Phase is the connection phase shown to the user.
type Phase int

const (
	// Disconnected is the cold state: nothing cached, render "connect".
	Disconnected Phase = iota
	// Connecting is a connect in flight with nothing cached.
	Connecting
	// Reconnecting is the warm state: the cached address is shown while the
	// extension restores its session.
	Reconnecting
	// Connected has a live address.
	Connected
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Reconnecting:
		return "reconnecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// EventKind identifies an input of the reducer.
type EventKind int

const (
	EvBoot EventKind = iota
	EvNavigated
	EvExtConnecting
	EvExtConnected
	EvExtDisconnected
	EvUserConnect
	EvConnectFailed
	EvUserDisconnect
	EvTick
)

func (k EventKind) String() string {
	switch k {
	case EvBoot:
		return "boot"
	case EvNavigated:
		return "navigated"
	case EvExtConnecting:
		return "ext-connecting"
	case EvExtConnected:
		return "ext-connected"
	case EvExtDisconnected:
		return "ext-disconnected"
	case EvUserConnect:
		return "user-connect"
	case EvConnectFailed:
		return "connect-failed"
	case EvUserDisconnect:
		return "user-disconnect"
	case EvTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Event is an input of the reducer. Address and Wallet are set by EvBoot
// (cached values) and EvExtConnected (live values).
type Event struct {
	Kind    EventKind
	At      time.Time
	Address string
	Wallet  string
}

// Effect is a side effect requested by the reducer.
type Effect int

const (
	// EffectPersist writes the address and wallet name to the backup keys.
	EffectPersist Effect = iota
	// EffectRestoreExtension rewrites the extension's session key from the
	// backup so its silent auto-connect can resume.
	EffectRestoreExtension
	// EffectClear removes the controller's durable session keys.
	EffectClear
	// EffectRecheck asks the attached wallet for its live connection state.
	EffectRecheck
)

func (e Effect) String() string {
	switch e {
	case EffectPersist:
		return "persist"
	case EffectRestoreExtension:
		return "restore-extension"
	case EffectClear:
		return "clear"
	case EffectRecheck:
		return "recheck"
	default:
		return "unknown"
	}
}

// Timing holds the reducer's durations.
type Timing struct {
	// SuppressWindow is how long disconnect signals are dropped after a
	// navigation.
	SuppressWindow time.Duration
	// ReconnectGrace is how long the warm state waits for the extension
	// before falling back to cold.
	ReconnectGrace time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		SuppressWindow: DefaultSuppressWindow,
		ReconnectGrace: DefaultReconnectGrace,
	}
}

// State is the wallet session.
type State struct {
	Phase   Phase
	Address string // live address, or the cached one while reconnecting
	Wallet  string

	SuppressUntil time.Time // zero when no window is open
	ReconnectBy   time.Time // zero unless reconnecting

	// Forgotten is set by a user disconnect; ambient connect signals are
	// ignored until the user connects again.
	Forgotten bool

	// DisconnectPending is set when a disconnect of a live session was
	// dropped inside the window. If no connect follows before the window
	// closes, the session goes warm.
	DisconnectPending bool

	Dropped int // disconnect signals dropped inside a suppression window
	Ignored int // ambient signals ignored after a user disconnect
}

// Suppressing reports whether a suppression window is open at t.
func (s State) Suppressing(t time.Time) bool {
	return !s.SuppressUntil.IsZero() && t.Before(s.SuppressUntil)
}

// NextDeadline returns the earliest pending timer deadline.
func (s State) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, t := range []time.Time{s.SuppressUntil, s.ReconnectBy} {
		if t.IsZero() {
			continue
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}

// Reduce applies ev to s. It never fails: unexpected inputs leave the state
// unchanged.
func Reduce(s State, ev Event, timing Timing) (State, []Effect) {
	switch ev.Kind {
	case EvBoot:
		next := State{Dropped: s.Dropped, Ignored: s.Ignored}
		if ev.Address == "" {
			return next, nil
		}
		next.Phase = Reconnecting
		next.Address = ev.Address
		next.Wallet = ev.Wallet
		next.ReconnectBy = ev.At.Add(timing.ReconnectGrace)
		return next, []Effect{EffectRestoreExtension}

	case EvNavigated:
		until := ev.At.Add(timing.SuppressWindow)
		if until.After(s.SuppressUntil) {
			s.SuppressUntil = until
		}
		return s, nil

	case EvExtConnecting:
		if s.Forgotten {
			s.Ignored++
			return s, nil
		}
		if s.Phase == Disconnected {
			s.Phase = Connecting
		}
		return s, nil

	case EvExtConnected:
		if s.Forgotten {
			s.Ignored++
			return s, nil
		}
		address := ev.Address
		if address == "" {
			address = s.Address
		}
		if address == "" {
			return s, nil
		}

		changed := s.Phase != Connected || s.Address != address ||
			(ev.Wallet != "" && ev.Wallet != s.Wallet)
		s.Phase = Connected
		s.Address = address
		if ev.Wallet != "" {
			s.Wallet = ev.Wallet
		}
		s.ReconnectBy = time.Time{}
		s.DisconnectPending = false
		if !changed {
			return s, nil
		}
		return s, []Effect{EffectPersist}

	case EvExtDisconnected:
		if s.Suppressing(ev.At) {
			s.Dropped++
			if s.Phase == Connected {
				s.DisconnectPending = true
			}
			return s, nil
		}
		s.DisconnectPending = false
		switch {
		case s.Phase == Disconnected:
			return s, nil
		case s.Address == "":
			return toCold(s), nil
		case s.Phase == Reconnecting:
			return s, nil
		default:
			s.Phase = Reconnecting
			if s.ReconnectBy.IsZero() {
				s.ReconnectBy = ev.At.Add(timing.ReconnectGrace)
			}
			return s, []Effect{EffectRestoreExtension}
		}

	case EvUserConnect:
		s.Forgotten = false
		if s.Phase != Connected {
			s.Phase = Connecting
			s.ReconnectBy = time.Time{}
		}
		return s, nil

	case EvConnectFailed:
		if s.Phase != Connecting {
			return s, nil
		}
		return toCold(s), nil

	case EvUserDisconnect:
		return State{
			Phase:         Disconnected,
			SuppressUntil: s.SuppressUntil,
			Forgotten:     true,
			Dropped:       s.Dropped,
			Ignored:       s.Ignored,
		}, []Effect{EffectClear}

	case EvTick:
		var effects []Effect
		if !s.SuppressUntil.IsZero() && !ev.At.Before(s.SuppressUntil) {
			s.SuppressUntil = time.Time{}
			if s.DisconnectPending && s.Phase == Connected {
				s.Phase = Reconnecting
				s.ReconnectBy = ev.At.Add(timing.ReconnectGrace)
				effects = []Effect{EffectRestoreExtension, EffectRecheck}
			}
			s.DisconnectPending = false
		}
		if s.Phase == Reconnecting && !s.ReconnectBy.IsZero() && !ev.At.Before(s.ReconnectBy) {
			return toCold(s), nil
		}
		return s, effects
	}

	return s, nil
}

// toCold drops the in-memory cache. Durable keys are kept; only a user
// disconnect clears them.
func toCold(s State) State {
	s.Phase = Disconnected
	s.Address = ""
	s.Wallet = ""
	s.ReconnectBy = time.Time{}
	s.DisconnectPending = false
	return s
}
