// Package orchestrator wires the Token Estimator, FC Parser, Session
// Manager, Layered Memory, Multi-Head Compressor, and Sync Queue into a
// single runtime, and owns the host-agent subprocess lifecycle.
package orchestrator

import "time"

// Config tunes the orchestrator's behaviour. It mirrors the enumerated
// configuration surface (contextThreshold, maxContextTokens, autoSummarize)
// plus the subprocess shutdown grace period.
type Config struct {
	// Enabled is the master on/off switch; a disabled orchestrator forwards
	// subprocess bytes untouched and never compresses or syncs.
	Enabled bool
	// AutoSummarize controls whether AddFunctionCall is given a Summariser.
	AutoSummarize bool
	// ContextThreshold is the token count past which usage is considered
	// critical, triggering compression. Must be less than MaxContextTokens.
	ContextThreshold int
	// MaxContextTokens is the host agent's context window size.
	MaxContextTokens int
	// ShutdownGrace is how long the subprocess is given after SIGTERM
	// before SIGKILL.
	ShutdownGrace time.Duration
	// MaxRecentFCs and MaxActiveFiles bound layered memory's L2 tier.
	MaxRecentFCs   int
	MaxActiveFiles int
}

// DefaultConfig returns the house defaults: a 150k token ceiling with a
// 100k critical threshold, auto-summarize on, and a 5 second shutdown
// grace period.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		AutoSummarize:    true,
		ContextThreshold: 100_000,
		MaxContextTokens: 150_000,
		ShutdownGrace:    5 * time.Second,
		MaxRecentFCs:     50,
		MaxActiveFiles:   20,
	}
}
