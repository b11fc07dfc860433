package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"unipulse/internal"
	"unipulse/internal/consent"
	"unipulse/internal/identity"
	"unipulse/internal/visit"
)

const simulateUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ConsentCommand shows or changes the stored geo consent
type ConsentCommand struct{}

func (c *ConsentCommand) Name() string        { return "consent" }
func (c *ConsentCommand) Description() string { return "Shows or sets geo consent: consent [granted|denied|unset]" }

func (c *ConsentCommand) Execute(ctx context.Context, client *internal.Client, args []string) error {
	tracker := client.Tracker
	if len(args) == 0 {
		fmt.Printf("Geo consent: %s\n", tracker.Consent())
		return nil
	}

	state, err := consent.ParseState(args[0])
	if err != nil {
		return usagef("%v", err)
	}

	switch state {
	case consent.Granted:
		err = tracker.GrantGeoConsent(ctx)
	case consent.Denied:
		err = tracker.DenyGeoConsent()
	default:
		err = tracker.ResetGeoConsent()
	}
	if err != nil {
		return fmt.Errorf("failed to store consent: %w", err)
	}

	fmt.Printf("Geo consent: %s\n", tracker.Consent())
	return nil
}

// SimulateCommand plays a scripted browsing session against the ingest API
type SimulateCommand struct{}

func (c *SimulateCommand) Name() string { return "simulate" }
func (c *SimulateCommand) Description() string {
	return "Sends a synthetic visit: simulate [--pages /,/apply] [--dwell 2s]"
}

func (c *SimulateCommand) Execute(ctx context.Context, client *internal.Client, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	pages := fs.String("pages", "/", "comma separated paths; the first one is the landing URL")
	dwell := fs.Duration("dwell", 2*time.Second, "time spent on each page")
	referrer := fs.String("referrer", "", "referrer of the landing page")
	lang := fs.String("lang", "en", "browser language")
	width := fs.Int("width", 1280, "viewport width in pixels")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}

	paths := splitPages(*pages)
	if len(paths) == 0 {
		return usagef("at least one page is required")
	}
	if *dwell < 0 {
		return usagef("dwell cannot be negative")
	}

	tracker := client.Tracker
	tracker.StartIfNeeded(ctx, visit.Landing{
		URL:           paths[0],
		Referrer:      *referrer,
		Language:      *lang,
		ViewportWidth: *width,
		UserAgent:     simulateUserAgent,
	})
	fmt.Printf("Visitor %s started session %s\n", identity.Alias(tracker.VisitorID()), tracker.SessionID())

	for _, path := range paths {
		tracker.Navigate(ctx, visit.Page{Path: path, Title: path})
		fmt.Printf("  %s\n", path)

		select {
		case <-ctx.Done():
			tracker.Unload(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-time.After(*dwell):
		}
	}

	tracker.Unload(ctx)
	fmt.Println("Session ended")
	return nil
}

// splitPages turns "/, /apply ,," into ["/", "/apply"]. Paths missing a
// leading slash get one.
func splitPages(value string) []string {
	var paths []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "/") {
			part = "/" + part
		}
		paths = append(paths, part)
	}
	return paths
}

// GeoIPUpdateCommand downloads the GeoLite2 City database
type GeoIPUpdateCommand struct{}

func (c *GeoIPUpdateCommand) Name() string { return "geoip-update" }
func (c *GeoIPUpdateCommand) Description() string {
	return "Downloads the GeoLite2 database when it is missing or a week old"
}

func (c *GeoIPUpdateCommand) Execute(ctx context.Context, client *internal.Client, args []string) error {
	fs := flag.NewFlagSet("geoip-update", flag.ContinueOnError)
	force := fs.Bool("force", false, "download even when the current file is recent")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}

	updater := client.GeoUpdater
	updated, err := updater.Update(ctx, *force)
	if err != nil {
		return err
	}

	if !updated {
		fmt.Printf("GeoLite2 database is up to date (last update %s)\n",
			updater.LastUpdate().Local().Format(time.RFC1123))
		return nil
	}
	fmt.Printf("GeoLite2 database saved to %s\n", client.Config.GeoDBPath)
	return nil
}
