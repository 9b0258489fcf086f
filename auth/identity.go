package auth

type (
	// Identity is a user record freshly confirmed by the credential store.
	Identity struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}

	State byte

	// Resolution is the outcome of resolving one session token. It is
	// either a confirmed identity or absent, the zero value is absent.
	Resolution struct {
		state      State
		identity   Identity
		theme      string
		clearToken bool
	}
)

const (
	StateNoToken State = iota
	StateRejected
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateNoToken:
		return "no-token"
	case StateRejected:
		return "rejected"
	case StateConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// Valid reports whether i names a user. Presence is decided by the ID,
// never by the struct being non-zero.
func (i Identity) Valid() bool {
	return i.ID != ""
}

// Confirmed builds a resolution for a store confirmed identity. An identity
// without ID produces a rejected resolution.
func Confirmed(id Identity) Resolution {
	if !id.Valid() {
		return Rejected(true)
	}
	return Resolution{state: StateConfirmed, identity: id}
}

func Rejected(clearToken bool) Resolution {
	return Resolution{state: StateRejected, clearToken: clearToken}
}

func (r Resolution) Identity() (Identity, bool) {
	if r.state != StateConfirmed || !r.identity.Valid() {
		return Identity{}, false
	}
	return r.identity, true
}

func (r Resolution) State() State {
	if _, ok := r.Identity(); !ok && r.state == StateConfirmed {
		return StateRejected
	}
	return r.state
}

// ClearToken is set when the client presented a token that must not be
// sent again.
func (r Resolution) ClearToken() bool {
	return r.clearToken
}

// Theme is the display preference carried by the token, it has no meaning
// for access control.
func (r Resolution) Theme() string {
	return r.theme
}
