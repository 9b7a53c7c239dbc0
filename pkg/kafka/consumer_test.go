package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thep200/ghcollector/cfg"
)

func TestNewConsumer_PanicsWithoutBrokers(t *testing.T) {
	defer func() {
		assert.NotNil(t, recover(), "NewConsumer must refuse to construct without a broker list")
	}()
	NewConsumer(&cfg.Config{}, noopLogger{}, "repo-discovered", "ghcollector-intake")
}

func TestConsumer_RegisterHandlerIsDispatchable(t *testing.T) {
	c := NewConsumer(testConfig(), noopLogger{}, "repo-discovered", "ghcollector-intake")

	var got []byte
	c.RegisterHandler("repo_discovered", func(data []byte) error {
		got = data
		return nil
	})

	h, ok := c.handlerFor("repo_discovered")
	require.True(t, ok)
	require.NoError(t, h([]byte(`{"owner":"octocat"}`)))
	assert.Equal(t, `{"owner":"octocat"}`, string(got))

	_, ok = c.handlerFor("nonexistent")
	assert.False(t, ok)
}

func TestConsumer_ReloadSwitchesTopicAndGroup(t *testing.T) {
	c := NewConsumer(testConfig(), noopLogger{}, "repo-discovered", "ghcollector-intake")
	assert.Equal(t, "repo-discovered", c.Topic())

	updated := testConfig()
	require.NoError(t, c.Reload(updated, "repo-discovered-staging", "ghcollector-intake-staging"))
	assert.Equal(t, "repo-discovered-staging", c.Topic())
	assert.Equal(t, "ghcollector-intake-staging", c.groupID)
}
