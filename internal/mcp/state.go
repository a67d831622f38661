package mcp

// ClientState is a back-end connection's position in the lifecycle from
// spec §4.3: INIT -> CONNECTING -> READY -> (FAILED | CLOSED).
type ClientState string

const (
	StateInit       ClientState = "INIT"
	StateConnecting ClientState = "CONNECTING"
	StateReady      ClientState = "READY"
	StateFailed     ClientState = "FAILED"
	StateClosed     ClientState = "CLOSED"
)
