package mqtttest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	assert.True(t, Match("devices/#", "devices/acme/dev-1"))
	assert.True(t, Match("devices/+/telemetry", "devices/dev-1/telemetry"))
	assert.True(t, Match("a/b", "a/b"))
	assert.False(t, Match("devices/+/telemetry", "devices/dev-1/state"))
	assert.False(t, Match("a/b", "a/b/c"))
	assert.False(t, Match("a/b/c", "a/b"))
}
