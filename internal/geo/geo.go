// Package geo resolves a coarse visitor location. Every lookup is best
// effort: failures yield no location and are never retried.
package geo

import "context"

// Location is the country and city a visitor appears to be in.
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

// Empty reports whether the location carries no information.
func (l *Location) Empty() bool {
	return l == nil || (l.Country == "" && l.City == "")
}

// Locator resolves the current visitor's location, returning nil when it
// cannot.
type Locator interface {
	Lookup(ctx context.Context) *Location
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) *Location

func (f LocatorFunc) Lookup(ctx context.Context) *Location {
	return f(ctx)
}

// Disabled never resolves a location.
var Disabled Locator = LocatorFunc(func(context.Context) *Location { return nil })

// ClientLocator binds a lookup to one client address. Hosts serving many
// visitors use it to resolve each request's own location.
type ClientLocator interface {
	Locator(ip string) Locator
}
