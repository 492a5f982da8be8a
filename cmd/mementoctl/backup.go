package main

import (
	"context"
	"fmt"

	"rebind/errors"
	"rebind/ha"
	"rebind/objectstore"
	"rebind/persistence"
	"rebind/stores"
)

func runBackup(ctx context.Context, e *env, args []string) error {
	fs := e.flagSet("backup")
	modeName := fs.String("mode", "custom", "backup mode: promotion, demotion or custom")
	sourceName := fs.String("source", "remote", "state source: auto, local or remote")
	location := fs.String("location", "", "backup location spec (default: backups.location)")
	container := fs.String("container", "", "parent container for backups (default: backups.container)")
	if done, err := e.parse(fs, args); done || err != nil {
		return err
	}
	mode, err := persistence.ParseBackupMode(*modeName)
	if err != nil {
		return err
	}
	source, err := ha.ParseMementoCopyMode(*sourceName)
	if err != nil {
		return err
	}
	if !e.cfg.BackupEnabled(mode.String()) {
		fmt.Fprintf(e.stdout, "backups on %s are disabled by configuration\n", mode)
		return nil
	}
	if *location == "" {
		*location = e.cfg.Backups.Location
	}
	if *container == "" {
		*container = e.cfg.Backups.Container
	}

	m, err := e.newManagement()
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	if _, err := e.loadState(ctx, m, e.cfg.Persistence.Location, e.cfg.Persistence.Container); err != nil {
		return err
	}

	// 备份使用自己的压缩设置
	if e.cfg.Backups.Compression != objectstore.CompressionNone {
		opts := e.cfg.StoreOptions(m.Paths())
		opts.Compression = e.cfg.Backups.Compression
		m.LocationRegistry().SetResolver(stores.NewResolver(opts))
	}

	res := persistence.CreateBackup(ctx, m, mode, source,
		persistence.WithBackupLocation(*location),
		persistence.WithBackupContainer(*container))
	if !res.Success {
		return errors.WrapError(res.Cause, errors.ErrCodeStorage, "backup failed")
	}
	note := ""
	if res.Fallback {
		note = " (fallback)"
	}
	fmt.Fprintf(e.stdout, "%s backup of %d objects written to %s %s%s\n", mode, res.Objects, res.Location, res.Path, note)
	return nil
}
