package session

import "ghostswap/pkg/wallet"

// Affordance is the wallet control a host UI renders.
type Affordance string

const (
	AffordanceConnect      Affordance = "connect"
	AffordanceConnecting   Affordance = "connecting"
	AffordanceReconnecting Affordance = "reconnecting"
	AffordanceSession      Affordance = "session"
)

// View is the render model of the session.
type View struct {
	Affordance   Affordance `json:"affordance"`
	Address      string     `json:"address,omitempty"`
	ShortAddress string     `json:"short_address,omitempty"`
	Wallet       string     `json:"wallet,omitempty"`
	ExplorerURL  string     `json:"explorer_url,omitempty"`
	Suppressing  bool       `json:"suppressing"`
}

// Render derives the view of s. explorer is the block explorer base URL.
func Render(s State, explorer string) View {
	v := View{Suppressing: !s.SuppressUntil.IsZero()}

	switch s.Phase {
	case Connecting:
		v.Affordance = AffordanceConnecting
		return v
	case Reconnecting:
		v.Affordance = AffordanceReconnecting
	case Connected:
		v.Affordance = AffordanceSession
		v.ExplorerURL = wallet.ExplorerURL(explorer, s.Address)
	default:
		v.Affordance = AffordanceConnect
		return v
	}

	v.Address = s.Address
	v.ShortAddress = wallet.ShortenAddress(s.Address)
	v.Wallet = s.Wallet
	return v
}
