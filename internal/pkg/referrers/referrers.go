// Package referrers turns referrer sources into display names.
package referrers

import "strings"

// Traffic source classes reported by the analytics backend.
const (
	SourceDirect   = "direct"
	SourceSearch   = "search"
	SourceSocial   = "social"
	SourceReferral = "referral"
)

var sourceNames = map[string]string{
	SourceDirect:   "Direct",
	SourceSearch:   "Search",
	SourceSocial:   "Social",
	SourceReferral: "Referral",
}

// Common referrer hostnames mapped to friendly display names
var knownReferrers = map[string]string{
	// Search engines
	"google.com":     "Google",
	"google.co.uk":   "Google",
	"google.de":      "Google",
	"google.fr":      "Google",
	"google.es":      "Google",
	"bing.com":       "Bing",
	"duckduckgo.com": "DuckDuckGo",
	"yahoo.com":      "Yahoo",
	"baidu.com":      "Baidu",
	"yandex.ru":      "Yandex",
	"ecosia.org":     "Ecosia",

	// Social media
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"facebook.com":    "Facebook",
	"l.facebook.com":  "Facebook",
	"instagram.com":   "Instagram",
	"l.instagram.com": "Instagram",
	"linkedin.com":    "LinkedIn",
	"lnkd.in":         "LinkedIn",
	"tiktok.com":      "TikTok",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"reddit.com":      "Reddit",
	"whatsapp.com":    "WhatsApp",
	"t.me":            "Telegram",

	// Academic and study portals
	"scholar.google.com":        "Google Scholar",
	"researchgate.net":          "ResearchGate",
	"academia.edu":              "Academia.edu",
	"studyportals.com":          "Studyportals",
	"mastersportal.com":         "Mastersportal",
	"bachelorsportal.com":       "Bachelorsportal",
	"topuniversities.com":       "QS Top Universities",
	"timeshighereducation.com":  "Times Higher Education",
	"erasmus-plus.ec.europa.eu": "Erasmus+",
	"wikipedia.org":             "Wikipedia",

	// Email providers (for newsletter clicks)
	"mail.google.com":    "Gmail",
	"outlook.live.com":   "Outlook",
	"outlook.office.com": "Outlook",
	"mail.yahoo.com":     "Yahoo Mail",

	// Link shorteners
	"bit.ly":      "Bitly",
	"tinyurl.com": "TinyURL",
}

// DisplayName renders a referrer source for humans. Backend source classes
// are capitalized, hostnames are resolved with FriendlyName and an empty
// source counts as direct traffic.
func DisplayName(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return sourceNames[SourceDirect]
	}
	if name, ok := sourceNames[strings.ToLower(source)]; ok {
		return name
	}
	return FriendlyName(hostnameOf(source))
}

func hostnameOf(source string) string {
	if i := strings.Index(source, "://"); i >= 0 {
		source = source[i+3:]
	}
	if i := strings.IndexAny(source, "/?#"); i >= 0 {
		source = source[:i]
	}
	return source
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// If the hostname is not in the known list, it returns the hostname
// with common prefixes like "www." removed and first letter capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.ToLower(hostname)

	if name, ok := knownReferrers[hostname]; ok {
		return name
	}

	if strings.HasPrefix(hostname, "www.") {
		withoutWWW := hostname[4:]
		if name, ok := knownReferrers[withoutWWW]; ok {
			return name
		}
		hostname = withoutWWW
	}

	// Subdomains of a known referrer, most specific domain first.
	best := ""
	for domain := range knownReferrers {
		if strings.HasSuffix(hostname, "."+domain) && len(domain) > len(best) {
			best = domain
		}
	}
	if best != "" {
		return knownReferrers[best]
	}

	return capitalizeFirst(hostname)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
