package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zen-cli/zen/agentpool"
)

func TestCheckAgentStuckAtThreshold(t *testing.T) {
	m := New(5*time.Minute, 3, nil)
	now := time.Now()
	handle := agentpool.AgentHandle{LastActivity: now.Add(-6 * time.Minute)}

	ev, stuck := m.CheckAgent(handle, now)
	assert.True(t, stuck)
	assert.Equal(t, AgentStuck, ev.Type)
}

func TestCheckAgentHealthyBelowThreshold(t *testing.T) {
	m := New(5*time.Minute, 3, nil)
	now := time.Now()
	handle := agentpool.AgentHandle{LastActivity: now.Add(-1 * time.Minute)}

	_, stuck := m.CheckAgent(handle, now)
	assert.False(t, stuck)
}

func TestDetermineRecoveryMatchesStuckPattern(t *testing.T) {
	m := New(time.Minute, 3, []string{"rate limit", "timeout"})
	action := m.DetermineRecovery(agentpool.AgentHandle{}, "hit a Rate Limit error", 5)
	assert.Equal(t, Restart, action.Kind)
}

func TestDetermineRecoveryRestartsWithinRetryBudget(t *testing.T) {
	m := New(time.Minute, 3, []string{"rate limit"})
	action := m.DetermineRecovery(agentpool.AgentHandle{}, "unrelated output", 1)
	assert.Equal(t, Restart, action.Kind)
}

func TestDetermineRecoveryEscalatesWhenRetriesExhausted(t *testing.T) {
	m := New(time.Minute, 3, []string{"rate limit"})
	action := m.DetermineRecovery(agentpool.AgentHandle{}, "unrelated output", 3)
	assert.Equal(t, Escalate, action.Kind)
	assert.NotEmpty(t, action.Message)
}
