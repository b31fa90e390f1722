package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
)

func TestKeyspace(t *testing.T) {
	c := &Client{prefix: keyPrefix(" site-a: ")}
	assert.Equal(t, "site-a:dedup", c.DedupPrefix())
	assert.Equal(t, "site-a:notify:queue", c.NotifyQueueKey())
	assert.Equal(t, "wallbox", keyPrefix(""))
}

func TestPoolSizeReservesNotifyWorkers(t *testing.T) {
	assert.Equal(t, 20, poolSize(20, 2, 4))
	assert.Equal(t, 11, poolSize(5, 2, 8))
	assert.Equal(t, 1, poolSize(0, 0, 0))
}

func TestNewClientDisabled(t *testing.T) {
	c, err := NewClient(cfgpkg.RedisConfig{}, 2, "test")
	require.Error(t, err)
	assert.Nil(t, c)
}
