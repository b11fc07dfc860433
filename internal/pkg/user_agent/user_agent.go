// Package user_agent classifies browser user-agent strings into browser,
// operating system and device class using an embedded rule set.
package user_agent

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device classes reported with a visit.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

const unknown = "Unknown"

type UserAgent struct {
	UserAgent string
	OS        string
	Browser   string
	Device    string
	Mobile    bool
	Tablet    bool
	Desktop   bool
	Bot       bool
}

//go:embed rules.yml
var rulesFile []byte

// Rule maps a pattern onto a name and an optional version template.
type Rule struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ruleSet struct {
	Bots     []Rule `yaml:"bots"`
	Browsers []Rule `yaml:"browsers"`
	OSs      []Rule `yaml:"oss"`
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

type Parser struct {
	rules      ruleSet
	regexCache *RegexCache
}

var (
	parser    *Parser
	parserErr error
	once      sync.Once
)

// NewParser builds a parser from YAML rules.
func NewParser(data []byte) (*Parser, error) {
	p := &Parser{regexCache: newRegexCache()}
	if err := yaml.Unmarshal(data, &p.rules); err != nil {
		return nil, fmt.Errorf("failed to parse user agent rules: %w", err)
	}
	for _, group := range [][]Rule{p.rules.Bots, p.rules.Browsers, p.rules.OSs} {
		for _, rule := range group {
			if _, err := p.regexCache.get(rule.Regex); err != nil {
				return nil, fmt.Errorf("invalid pattern for %s: %w", rule.Name, err)
			}
		}
	}
	return p, nil
}

func getParser() *Parser {
	once.Do(func() {
		parser, parserErr = NewParser(rulesFile)
	})
	return parser
}

// match returns the first rule matching userAgent and its expanded version.
func (p *Parser) match(rules []Rule, userAgent string) (string, string, bool) {
	for _, rule := range rules {
		regex, err := p.regexCache.get(rule.Regex)
		if err != nil {
			continue
		}
		matches := regex.FindStringSubmatch(userAgent)
		if len(matches) == 0 {
			continue
		}
		version := rule.Version
		for i := len(matches) - 1; i >= 1; i-- {
			version = strings.ReplaceAll(version, fmt.Sprintf("$%d", i), matches[i])
		}
		return rule.Name, version, true
	}
	return "", "", false
}

// deviceClass guesses the form factor from well-known tokens.
func deviceClass(userAgent string) string {
	ua := strings.ToLower(userAgent)

	// Tablets often also say "mobile", so check them first.
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") ||
		(strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")) {
		return DeviceTablet
	}

	if strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "ipod") || strings.Contains(ua, "blackberry") ||
		strings.Contains(ua, "windows phone") {
		return DeviceMobile
	}

	return DeviceDesktop
}

// Parse classifies userAgent.
func (p *Parser) Parse(userAgent string) UserAgent {
	result := UserAgent{UserAgent: userAgent, OS: unknown, Browser: unknown}

	if name, _, ok := p.match(p.rules.Bots, userAgent); ok {
		result.Browser = name
		result.Device = "Bot"
		result.Bot = true
		return result
	}

	if name, _, ok := p.match(p.rules.Browsers, userAgent); ok {
		result.Browser = name
	}
	if name, _, ok := p.match(p.rules.OSs, userAgent); ok {
		result.OS = name
	}

	result.Device = deviceClass(userAgent)
	result.Mobile = result.Device == DeviceMobile
	result.Tablet = result.Device == DeviceTablet
	result.Desktop = result.Device == DeviceDesktop
	return result
}

// ParseUserAgent classifies userAgent with the embedded rules. If the rules
// cannot be loaded only the device class is derived.
func ParseUserAgent(userAgent string) UserAgent {
	p := getParser()
	if p == nil {
		return (&Parser{regexCache: newRegexCache()}).Parse(userAgent)
	}
	return p.Parse(userAgent)
}

// Version returns the browser version found by the embedded rules.
func Version(userAgent string) string {
	p := getParser()
	if p == nil {
		return ""
	}
	_, version, _ := p.match(p.rules.Browsers, userAgent)
	return version
}

// LoadError reports why the embedded rules could not be loaded, if they
// could not.
func LoadError() error {
	getParser()
	return parserErr
}
