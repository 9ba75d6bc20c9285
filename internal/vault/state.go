package vault

// State is the lifecycle state of a Vault
type State int

const (
	StateUninitialized State = iota
	StateKeyLoaded
	StateReady
	StateCorrupted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateKeyLoaded:
		return "key_loaded"
	case StateReady:
		return "ready"
	case StateCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}
