package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetUserAgent(t *testing.T) {
	uas := NewUserAgentSelector()

	assert.Contains(t, allUserAgents, uas.GetUserAgent(""))
	assert.Contains(t, allUserAgents, uas.GetUserAgent("auto"))
	assert.Contains(t, userAgents[UserAgentChrome], uas.GetUserAgent("Chrome"))
	assert.True(t, strings.Contains(uas.GetUserAgent(" edge "), "Edg/"))
	assert.Equal(t, "custom-agent/2", uas.GetUserAgent("custom-agent/2"))
}

func TestAllUserAgents_CoversEveryFamily(t *testing.T) {
	total := 0
	for _, agents := range userAgents {
		total += len(agents)
	}
	assert.Len(t, allUserAgents, total)
}
