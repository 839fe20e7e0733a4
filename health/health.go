// Package health classifies live agents as healthy, stuck, or failed, and
// proposes a recovery action for the WorkflowDriver to apply. It never
// blocks on external I/O: classification is driven entirely off the
// AgentPool's in-memory handles.
package health

import (
	"strings"
	"time"

	"github.com/zen-cli/zen/agentpool"
)

// EventType enumerates the monitor's own event stream, kept separate from
// the scheduler's SchedulerEvent enum.
type EventType int

const (
	AgentStuck EventType = iota
	AgentFailed
	RecoveryTriggered
)

func (t EventType) String() string {
	switch t {
	case AgentStuck:
		return "AgentStuck"
	case AgentFailed:
		return "AgentFailed"
	case RecoveryTriggered:
		return "RecoveryTriggered"
	default:
		return "Unknown"
	}
}

// Event is the single outbound event type for the health monitor.
type Event struct {
	Type     EventType
	AgentID  agentpool.AgentID
	Duration time.Duration
	Err      error
	Action   RecoveryAction
}

// ActionKind tags a RecoveryAction's variant.
type ActionKind int

const (
	Restart ActionKind = iota
	Reassign
	Decompose
	Escalate
	Abort
)

func (k ActionKind) String() string {
	switch k {
	case Restart:
		return "Restart"
	case Reassign:
		return "Reassign"
	case Decompose:
		return "Decompose"
	case Escalate:
		return "Escalate"
	case Abort:
		return "Abort"
	default:
		return "Unknown"
	}
}

// RecoveryAction is the tagged-variant recovery decision from §3/§4.4.
// Only Kind's matching fields are populated: ReassignTo for Reassign,
// IntoTasks for Decompose, Message for Escalate.
type RecoveryAction struct {
	Kind       ActionKind
	ReassignTo agentpool.AgentID
	IntoTasks  []string
	Message    string
}

// Monitor holds the configured thresholds used to classify agent health.
// It is stateless across calls beyond these fixed parameters; per-task
// retry counts are owned by the retry package and passed in explicitly.
type Monitor struct {
	stuckThreshold time.Duration
	maxRetries     int
	stuckPatterns  []string
}

// New creates a Monitor. stuckPatterns are matched case-insensitively as
// substrings of an agent's last output snapshot.
func New(stuckThreshold time.Duration, maxRetries int, stuckPatterns []string) *Monitor {
	lowered := make([]string, len(stuckPatterns))
	for i, p := range stuckPatterns {
		lowered[i] = strings.ToLower(p)
	}
	return &Monitor{
		stuckThreshold: stuckThreshold,
		maxRetries:     maxRetries,
		stuckPatterns:  lowered,
	}
}

// MaxRetries returns the configured retry cap, so callers that also consult
// the RetryTracker (WorkflowDriver) can compare against the same budget the
// monitor itself uses in DetermineRecovery.
func (m *Monitor) MaxRetries() int { return m.maxRetries }

// CheckAgent reports AgentStuck if handle has been idle for at least the
// configured threshold. No other signal classifies an agent as stuck.
func (m *Monitor) CheckAgent(handle agentpool.AgentHandle, now time.Time) (Event, bool) {
	idle := now.Sub(handle.LastActivity)
	if idle >= m.stuckThreshold {
		return Event{Type: AgentStuck, AgentID: handle.ID, Duration: idle}, true
	}
	return Event{}, false
}

// CheckAll maps CheckAgent over every handle currently in pool.
func (m *Monitor) CheckAll(pool *agentpool.Pool, now time.Time) []Event {
	var events []Event
	for _, h := range pool.Iter() {
		if ev, ok := m.CheckAgent(h, now); ok {
			events = append(events, ev)
		}
	}
	return events
}

// DetermineRecovery implements the single place in this codebase that
// matches strings instead of a closed enum, per the explicit exception for
// stuck-pattern classification: if outputSnippet contains any configured
// stuck pattern, recommend Restart. Otherwise Restart while retries remain,
// else Escalate.
func (m *Monitor) DetermineRecovery(handle agentpool.AgentHandle, outputSnippet string, retryCount int) RecoveryAction {
	lowered := strings.ToLower(outputSnippet)
	for _, pattern := range m.stuckPatterns {
		if strings.Contains(lowered, pattern) {
			return RecoveryAction{Kind: Restart}
		}
	}

	if retryCount < m.maxRetries {
		return RecoveryAction{Kind: Restart}
	}

	return RecoveryAction{
		Kind:    Escalate,
		Message: "agent " + handle.ID.String() + " exhausted retries for task " + handle.TaskID.String(),
	}
}
