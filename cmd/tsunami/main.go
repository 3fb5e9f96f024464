package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"github.com/tsunami-dev/tsunami"
)

type CLI struct {
	Version VersionCmd `cmd:"" help:"Print version information."`
	Routes  RoutesCmd  `cmd:"" help:"Print the route table from a manifest file."`
	Check   CheckCmd   `cmd:"" help:"Validate a manifest file for routing conflicts."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(Version())
	return nil
}

type RoutesCmd struct {
	Manifest string `arg:"" help:"Path to a manifest JSON file (see /__routes)."`
	JSON     bool   `help:"Emit the table as JSON instead of text." short:"j"`
}

func (c *RoutesCmd) Run() error {
	entries, err := loadManifest(c.Manifest)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tMETHOD\tPATH\tDYNAMIC")
	for _, e := range entries {
		dynamic := ""
		if e.Dynamic {
			dynamic = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Key, e.Method, e.Path, dynamic)
	}
	return w.Flush()
}

type CheckCmd struct {
	Manifest string `arg:"" help:"Path to a manifest JSON file (see /__routes)."`
}

func (c *CheckCmd) Run() error {
	entries, err := loadManifest(c.Manifest)
	if err != nil {
		return err
	}

	// Rebuild a registry from the manifest keys. Build reruns the same
	// validation an app would perform at startup: malformed keys,
	// duplicates, and dynamic patterns shadowed by earlier ones.
	b := tsunami.NewRegistry()
	for _, e := range entries {
		if e.Dynamic {
			b.Dynamic(e.Key, tsunami.Spec{})
		} else {
			b.Static(e.Key, tsunami.Spec{})
		}
	}
	if _, err := b.Build(); err != nil {
		return err
	}

	fmt.Printf("ok: %d routes\n", len(entries))
	return nil
}

func loadManifest(path string) ([]tsunami.ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// /__routes wraps the table in {"routes":[...]}; a bare array is
	// accepted too so manifests can be edited or assembled by hand.
	var wrapped struct {
		Routes []tsunami.ManifestEntry `json:"routes"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Routes != nil {
		return wrapped.Routes, nil
	}
	var entries []tsunami.ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("tsunami"),
		kong.Description("Tsunami CLI for inspecting and validating endpoint route tables."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
