package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestCapabilitiesSupplied(t *testing.T) {
	t.Parallel()

	assert.False(t, Capabilities{}.Supplied())
	assert.True(t, Capabilities{Tools: []Tool{}}.Supplied())
	assert.True(t, Capabilities{Prompts: []Prompt{{Name: "p"}}}.Supplied())
}
