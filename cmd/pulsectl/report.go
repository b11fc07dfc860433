package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"unipulse/internal"
	"unipulse/internal/dashboard"
	"unipulse/internal/timeframe"
)

// Output formats for the report command
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// ReportCommand loads every dashboard report for a range and prints it
type ReportCommand struct{}

func (c *ReportCommand) Name() string        { return "report" }
func (c *ReportCommand) Description() string { return "Prints the dashboard reports for a time range" }

func (c *ReportCommand) Execute(ctx context.Context, client *internal.Client, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	rangeKey := fs.String("range", string(timeframe.DefaultRange), "time range (today, 7d, 30d, 90d, 1y)")
	compare := fs.Bool("compare", false, "include the change against the previous window")
	format := fs.String("format", formatTable, "output format (table, json, yaml)")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if !validFormat(*format) {
		return usagef("unknown format %q", *format)
	}

	var opts []dashboard.Option
	if *compare {
		opts = append(opts, dashboard.WithComparison())
	}

	report, err := client.Dashboard.LoadReport(ctx, *rangeKey, opts...)
	if err != nil {
		return err
	}
	return renderReport(os.Stdout, report, *format)
}

func validFormat(format string) bool {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return true
	}
	return false
}

func renderReport(w io.Writer, report *dashboard.ReportSet, format string) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	default:
		return renderTable(w, report)
	}
}

func renderTable(out io.Writer, r *dashboard.ReportSet) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "%s (%s)\n\n", r.Label, r.Range)

	if r.Change != nil {
		fmt.Fprintln(w, "METRIC\tVALUE\tVS PREVIOUS")
		fmt.Fprintf(w, "Sessions\t%d\t%s\n", r.Totals.Sessions, dashboard.FormatChange(r.Change.Sessions))
		fmt.Fprintf(w, "Pageviews\t%d\t%s\n", r.Totals.Pageviews, dashboard.FormatChange(r.Change.Pageviews))
	} else {
		fmt.Fprintln(w, "METRIC\tVALUE")
		fmt.Fprintf(w, "Sessions\t%d\n", r.Totals.Sessions)
		fmt.Fprintf(w, "Pageviews\t%d\n", r.Totals.Pageviews)
	}
	fmt.Fprintf(w, "Unique visitors\t%d\n", r.Totals.UniqueVisitors)
	fmt.Fprintf(w, "Avg. time\t%s\n", dashboard.FormatDuration(r.Totals.AvgTimeSec))
	fmt.Fprintf(w, "Bounce rate\t%s\n", dashboard.FormatPercent(r.Totals.BounceRate))
	fmt.Fprintf(w, "Conversions\t%d\n", r.Totals.Conversions)
	fmt.Fprintf(w, "Sessions trend\t%+.2f/day\n", r.SessionsTrend)

	section(w, "TRAFFIC", "DATE\tSESSIONS\tPAGEVIEWS", len(r.Traffic))
	for _, p := range r.Traffic {
		fmt.Fprintf(w, "%s\t%d\t%d\n", p.Date, p.Sessions, p.Pageviews)
	}

	section(w, "TOP PAGES", "PATH\tVIEWS\tVISITORS\tAVG. TIME\tEXIT RATE", len(r.TopPages))
	for _, p := range r.TopPages {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", p.Path, p.Pageviews, p.UniqueVisitors,
			dashboard.FormatDuration(p.AvgTimeSec), dashboard.FormatPercent(p.ExitRate))
	}

	sliceTable(w, "REFERRERS", "SOURCE", r.Referrers)
	sliceTable(w, "TOP COUNTRIES", "COUNTRY", r.TopCountries)
	sliceTable(w, "DEVICES", "DEVICE", r.Devices)
	sliceTable(w, "BROWSERS", "BROWSER", r.Browsers)
	sliceTable(w, "OPERATING SYSTEMS", "OS", r.OS)

	section(w, "CONVERSIONS", "NAME\tCOUNT\tRATE", len(r.Conversions))
	for _, c := range r.Conversions {
		fmt.Fprintf(w, "%s\t%d\t%s\n", c.Name, c.Count, dashboard.FormatPercent(c.Rate))
	}

	section(w, "PERFORMANCE (P75)", "PATH\tTTFB\tFCP\tLCP\tCLS", len(r.Performance))
	for _, p := range r.Performance {
		fmt.Fprintf(w, "%s\t%.0fms\t%.0fms\t%.0fms\t%.3f\n", p.Path, p.TTFBP75MS, p.FCPP75MS, p.LCPP75MS, p.CLSP75)
	}

	return w.Flush()
}

// section writes a table heading, or a placeholder when the table is empty.
func section(w io.Writer, title, header string, rows int) {
	fmt.Fprintf(w, "\n%s\n", title)
	if rows == 0 {
		fmt.Fprintln(w, "No data")
		return
	}
	fmt.Fprintln(w, header)
}

func sliceTable(w io.Writer, title, label string, rows []dashboard.Slice) {
	section(w, title, strings.Join([]string{label, "COUNT"}, "\t"), len(rows))
	for _, s := range rows {
		fmt.Fprintf(w, "%s\t%d\n", s.Name, s.Count)
	}
}

// ExportCommand downloads the top pages CSV for a range
type ExportCommand struct{}

func (c *ExportCommand) Name() string        { return "export" }
func (c *ExportCommand) Description() string { return "Downloads the top pages CSV for a time range" }

func (c *ExportCommand) Execute(ctx context.Context, client *internal.Client, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	rangeKey := fs.String("range", string(timeframe.DefaultRange), "time range (today, 7d, 30d, 90d, 1y)")
	out := fs.String("out", "", "output file, '-' for stdout (default analytics-<range>.csv)")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}

	data, err := client.Dashboard.Export(ctx, *rangeKey)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		key, _ := timeframe.ParseRange(*rangeKey)
		path = exportFileName(key)
	}
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("Saved %s (%d bytes)\n", path, len(data))
	return nil
}

func exportFileName(key timeframe.RangeKey) string {
	return fmt.Sprintf("analytics-%s.csv", key)
}
