package user_agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unipulse/internal/pkg/user_agent"
)

func TestEmbeddedRulesLoad(t *testing.T) {
	require.NoError(t, user_agent.LoadError())
}

func TestParseUserAgent(t *testing.T) {
	testCases := []struct {
		name            string
		userAgent       string
		expectedBrowser string
		expectedOS      string
		expectedDevice  string
	}{
		{
			name:            "Chrome on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			expectedBrowser: "Chrome",
			expectedOS:      "Windows",
			expectedDevice:  user_agent.DeviceDesktop,
		},
		{
			name:            "Safari on iPhone",
			userAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedOS:      "iOS",
			expectedDevice:  user_agent.DeviceMobile,
		},
		{
			name:            "Chrome on Android",
			userAgent:       "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			expectedBrowser: "Chrome Mobile",
			expectedOS:      "Android",
			expectedDevice:  user_agent.DeviceMobile,
		},
		{
			name:            "Safari on iPad",
			userAgent:       "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedOS:      "iPadOS",
			expectedDevice:  user_agent.DeviceTablet,
		},
		{
			name:            "Edge on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			expectedBrowser: "Microsoft Edge",
			expectedOS:      "Windows",
			expectedDevice:  user_agent.DeviceDesktop,
		},
		{
			name:            "Firefox on Mac",
			userAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
			expectedBrowser: "Firefox",
			expectedOS:      "Mac",
			expectedDevice:  user_agent.DeviceDesktop,
		},
		{
			name:            "Firefox on Android",
			userAgent:       "Mozilla/5.0 (Android 11; Mobile; rv:68.0) Gecko/68.0 Firefox/68.0",
			expectedBrowser: "Firefox Mobile",
			expectedOS:      "Android",
			expectedDevice:  user_agent.DeviceMobile,
		},
		{
			name:            "Chrome on Android tablet",
			userAgent:       "Mozilla/5.0 (Linux; Android 13; SM-X710) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			expectedBrowser: "Chrome",
			expectedOS:      "Android",
			expectedDevice:  user_agent.DeviceTablet,
		},
		{
			name:            "Empty",
			userAgent:       "",
			expectedBrowser: "Unknown",
			expectedOS:      "Unknown",
			expectedDevice:  user_agent.DeviceDesktop,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := user_agent.ParseUserAgent(tc.userAgent)

			assert.Equal(t, tc.expectedBrowser, result.Browser)
			assert.Equal(t, tc.expectedOS, result.OS)
			assert.Equal(t, tc.expectedDevice, result.Device)
			assert.False(t, result.Bot)
			assert.Equal(t, tc.expectedDevice == user_agent.DeviceMobile, result.Mobile)
			assert.Equal(t, tc.expectedDevice == user_agent.DeviceTablet, result.Tablet)
		})
	}
}

func TestParseUserAgentBots(t *testing.T) {
	bots := []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36",
		"curl/8.4.0",
	}

	for _, ua := range bots {
		t.Run(ua, func(t *testing.T) {
			result := user_agent.ParseUserAgent(ua)
			assert.True(t, result.Bot)
			assert.Equal(t, "Bot", result.Device)
		})
	}
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "121", user_agent.Version("Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0"))
	assert.Equal(t, "", user_agent.Version("curl/8.4.0"))
}

func TestNewParserRejectsBadRules(t *testing.T) {
	_, err := user_agent.NewParser([]byte("browsers:\n  - regex: '(unclosed'\n    name: Broken\n"))
	assert.Error(t, err)

	_, err = user_agent.NewParser([]byte("browsers: [\n"))
	assert.Error(t, err)
}
