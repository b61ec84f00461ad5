package fetcher

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// DefaultUserAgent is a current desktop Chrome on Windows. Many sites,
// including official-account article pages, serve a stripped page to
// anything that does not look like a browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type UserAgentType string

const (
	UserAgentAuto    UserAgentType = "auto"
	UserAgentChrome  UserAgentType = "chrome"
	UserAgentFirefox UserAgentType = "firefox"
	UserAgentSafari  UserAgentType = "safari"
	UserAgentEdge    UserAgentType = "edge"
)

var userAgents = map[UserAgentType][]string{
	UserAgentChrome: {
		DefaultUserAgent,
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	},
	UserAgentFirefox: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.1; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	},
	UserAgentSafari: {
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_1_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	},
	UserAgentEdge: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	},
}

// allUserAgents is every family flattened in a fixed order.
var allUserAgents = func() []string {
	var all []string
	for _, t := range []UserAgentType{UserAgentChrome, UserAgentFirefox, UserAgentSafari, UserAgentEdge} {
		all = append(all, userAgents[t]...)
	}
	return all
}()

// UserAgentSelector picks browser user agents. It is safe for concurrent use.
type UserAgentSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewUserAgentSelector() *UserAgentSelector {
	return &UserAgentSelector{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetUserAgent returns a random UA of the named family. "auto" or empty
// picks from every family; any other value is returned as a literal UA.
func (uas *UserAgentSelector) GetUserAgent(uaType string) string {
	uaType = strings.ToLower(strings.TrimSpace(uaType))
	if uaType == "" {
		uaType = string(UserAgentAuto)
	}

	switch UserAgentType(uaType) {
	case UserAgentAuto:
		return uas.pick(allUserAgents)
	case UserAgentChrome, UserAgentFirefox, UserAgentSafari, UserAgentEdge:
		return uas.pick(userAgents[UserAgentType(uaType)])
	default:
		return uaType
	}
}

func (uas *UserAgentSelector) pick(agents []string) string {
	if len(agents) == 0 {
		return DefaultUserAgent
	}
	uas.mu.Lock()
	defer uas.mu.Unlock()
	return agents[uas.rng.Intn(len(agents))]
}
