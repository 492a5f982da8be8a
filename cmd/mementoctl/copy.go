package main

import (
	"context"
	"fmt"

	"rebind/errors"
	"rebind/ha"
	"rebind/persistence"
)

func runCopy(ctx context.Context, e *env, args []string) error {
	fs := e.flagSet("copy")
	from := fs.String("from", "", "source location spec (default: persistence.location)")
	fromContainer := fs.String("from-container", "", "source container (default: persistence.container)")
	to := fs.String("to", "", "target location spec")
	toContainer := fs.String("to-container", "", "target container (default: source container)")
	if done, err := e.parse(fs, args); done || err != nil {
		return err
	}
	if *to == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "--to is required")
	}
	if *from == "" {
		*from = e.cfg.Persistence.Location
	}
	if *fromContainer == "" {
		*fromContainer = e.cfg.Persistence.Container
	}
	if *toContainer == "" {
		*toContainer = *fromContainer
	}
	if *from == *to && *fromContainer == *toContainer {
		return errors.NewError(errors.ErrCodeInvalidInput, "source and target are the same store")
	}

	m, err := e.newManagement()
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	state, err := e.loadState(ctx, m, *from, *fromContainer)
	if err != nil {
		return err
	}

	target, err := persistence.NewPersistenceObjectStore(ctx, m, *to, *toContainer, ha.PersistAuto, ha.HADisabled)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()
	if err := persistence.WriteMementoFrom(ctx, m, target, ha.CopyRemote); err != nil {
		return err
	}
	if !state.record.IsEmpty() {
		if err := persistence.WriteManagerMemento(ctx, m, state.record, target); err != nil {
			return err
		}
	}
	fmt.Fprintf(e.stdout, "copied %d objects from %s to %s\n", state.raw.Size(), state.store, target.SummaryName())
	return nil
}
