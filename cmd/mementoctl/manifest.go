package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"rebind/memento"
)

type manifestRow struct {
	memento.ManifestEntry
	Digest string `json:"digest,omitempty"`
}

func runManifest(ctx context.Context, e *env, args []string) error {
	fs := e.flagSet("manifest")
	location := fs.String("location", "", "location spec (default: persistence.location)")
	container := fs.String("container", "", "container (default: persistence.container)")
	asJSON := fs.Bool("json", false, "print entries as JSON")
	if done, err := e.parse(fs, args); done || err != nil {
		return err
	}
	if *location == "" {
		*location = e.cfg.Persistence.Location
	}
	if *container == "" {
		*container = e.cfg.Persistence.Container
	}

	m, err := e.newManagement()
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	state, err := e.loadState(ctx, m, *location, *container)
	if err != nil {
		return err
	}

	var rows []manifestRow
	for _, t := range memento.Types() {
		for _, id := range state.manifest.IDs(t) {
			entry, _ := state.manifest.Entry(t, id)
			row := manifestRow{ManifestEntry: entry}
			if !entry.Digest.IsZero() {
				row.Digest = entry.Digest.Short()
			}
			rows = append(rows, row)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		if rows == nil {
			rows = []manifestRow{}
		}
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tID\tKIND\tCATALOG ITEM\tPARENT\tDIGEST")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Type, r.ID, r.Kind, r.CatalogItemID, r.Parent, r.Digest)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "\n%d objects in %s\n", len(rows), state.store)
	if !state.record.IsEmpty() {
		fmt.Fprintf(e.stdout, "master node: %s (%d nodes recorded)\n", state.record.MasterNodeID, len(state.record.Nodes))
	}
	return nil
}
