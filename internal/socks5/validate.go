package socks5

// Blocker reports whether a target may not be proxied.
type Blocker interface {
	Blocked(host string, port uint16) bool
}

// Validate rejects a decoded request whose target is blocked. An empty host
// or port 0 marks an unresolved target and is always rejected; dialing an
// empty host would reach the proxy's own machine.
func Validate(st *State, bl Blocker) error {
	if st.Host == "" || st.Port == 0 {
		return ErrHostBlocked
	}
	if bl != nil && bl.Blocked(st.Host, st.Port) {
		return ErrHostBlocked
	}
	return nil
}
