package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zen-cli/zen/agentpool"
)

func TestSessionNameAddsPrefixAndStripsDashes(t *testing.T) {
	id := agentpool.AgentID{}
	name := sessionName(id)
	assert.Contains(t, name, sessionPrefix)
	assert.NotContains(t, name, "-")
}

func TestNewRuntimeStartsWithNoSessions(t *testing.T) {
	r := New("claude", true)
	assert.Empty(t, r.sessions)
}

func TestTerminateUnknownAgentIsNoop(t *testing.T) {
	r := New("claude", false)
	err := r.Terminate(context.Background(), agentpool.AgentID{})
	assert.NoError(t, err)
}

func TestOutputSnapshotUnknownAgentErrors(t *testing.T) {
	r := New("claude", false)
	_, err := r.OutputSnapshot(context.Background(), agentpool.AgentID{})
	assert.Error(t, err)
}

func TestHasQuiescedUnknownAgentErrors(t *testing.T) {
	r := New("claude", false)
	_, err := r.HasQuiesced(agentpool.AgentID{})
	assert.Error(t, err)
}
