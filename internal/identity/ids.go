package identity

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Agent id prefixes used by the two guard surfaces.
const (
	ToolAgentPrefix       = "tool_agent"
	MiddlewareAgentPrefix = "agent"
)

// Event id prefixes used by the guard surfaces.
const (
	ToolEventPrefix       = "pst"
	MiddlewareEventPrefix = "psg"
	MCPEventPrefix        = "psm"
	CLIEventPrefix        = "psc"
)

// NewAgentID returns "<prefix>_<unixms>_<rand6>".
func NewAgentID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}

// Sequence generates event ids of the form "<prefix>_<unixms>_<n>".
// The counter is process-wide per Sequence and safe for concurrent use.
type Sequence struct {
	prefix string
	n      atomic.Uint64
}

// NewSequence creates a sequence for prefix.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next returns the next id.
func (s *Sequence) Next() string {
	n := s.n.Add(1)
	return fmt.Sprintf("%s_%d_%d", s.prefix, time.Now().UnixMilli(), n)
}

// Prefix returns the sequence prefix.
func (s *Sequence) Prefix() string {
	return s.prefix
}

var (
	sequencesMu sync.Mutex
	sequences   = map[string]*Sequence{}
)

// SequenceFor returns the process-wide sequence for prefix, creating it
// on first use. Guards that share a prefix share one counter.
func SequenceFor(prefix string) *Sequence {
	sequencesMu.Lock()
	defer sequencesMu.Unlock()
	s, ok := sequences[prefix]
	if !ok {
		s = NewSequence(prefix)
		sequences[prefix] = s
	}
	return s
}

// NextEventID is shorthand for SequenceFor(prefix).Next().
func NextEventID(prefix string) string {
	return SequenceFor(prefix).Next()
}
