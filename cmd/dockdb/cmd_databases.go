// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/lifecycle"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/runspec"
	"github.com/AleutianAI/dockdb/pkg/ux"
)

// bulkLimit caps concurrent engine calls of start/stop --all.
const bulkLimit = 4

func runList(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		rs, err := a.orch.List(cmd.Context())
		if err != nil {
			if apperr.TypeOf(err) == apperr.TypePersistence {
				return err
			}
			printerFor(cmd).Warning("Engine unavailable, showing the last known state: " + err.Error())
		}
		return printRecords(cmd, rs)
	})
}

func runCreate(cmd *cobra.Command, args []string) error {
	cfg, maxConns, err := createOpts.createConfig(cmd.Flags(), args[0])
	if err != nil {
		return err
	}
	req, err := lifecycle.RequestFromConfig("", cfg, maxConns)
	if err != nil {
		return err
	}

	return withApp(cmd.Context(), func(a *app) error {
		var rec records.Record
		err := spin(cmd, fmt.Sprintf("Creating %s %s...", cfg.Kind, cfg.Name), func() error {
			var err error
			rec, err = a.orch.Create(cmd.Context(), req)
			return err
		})
		if err != nil {
			return err
		}
		if err := printRecord(cmd, "Created", rec); err != nil {
			return err
		}
		if !jsonOutput {
			if uri, err := a.orch.ConnectionURI(rec.ID, "localhost"); err == nil {
				printerFor(cmd).Info(uri)
			}
		}
		return nil
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		rec, err := a.orch.Find(args[0])
		if err != nil {
			return err
		}
		req, err := updateRequest(cmd.Flags(), updateOpts, rec, renameTo)
		if err != nil {
			return err
		}

		var updated records.Record
		err = spin(cmd, fmt.Sprintf("Updating %s...", rec.Name), func() error {
			var err error
			updated, err = a.orch.Update(cmd.Context(), rec.ID, req)
			return err
		})
		if err != nil {
			return err
		}
		return printRecord(cmd, "Updated", updated)
	})
}

// updateRequest starts from the stored record and applies the changed
// flags. Kind settings are not stored, so they restart from the kind's
// defaults before the flags are applied.
func updateRequest(fs *pflag.FlagSet, opts *dbFlags, rec records.Record, newName string) (lifecycle.Request, error) {
	cfg := runspec.ConfigFromRecord(rec)
	setKindDefaults(&cfg)
	if fs.Changed("name") {
		cfg.Name = newName
	}
	maxConns, err := opts.apply(fs, &cfg)
	if err != nil {
		return lifecycle.Request{}, err
	}
	if maxConns == nil {
		n := rec.MaxConnections
		maxConns = &n
	}
	return lifecycle.RequestFromConfig(rec.ID, cfg, maxConns)
}

func runStart(cmd *cobra.Command, args []string) error {
	return runSetRunning(cmd, args, startAll, true)
}

func runStop(cmd *cobra.Command, args []string) error {
	return runSetRunning(cmd, args, stopAll, false)
}

// runSetRunning starts or stops the named databases, or with all every
// database not already in the wanted state. Each target is attempted; the
// failures are joined.
func runSetRunning(cmd *cobra.Command, args []string, all, running bool) error {
	if all == (len(args) > 0) {
		return apperr.Configuration("Name databases or pass --all, not both")
	}

	return withApp(cmd.Context(), func(a *app) error {
		targets, err := resolveTargets(cmd.Context(), a.orch, args, all, running)
		if err != nil {
			return err
		}

		results := make([]records.Record, len(targets))
		errs := make([]error, len(targets))
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(bulkLimit)
		for i, t := range targets {
			g.Go(func() error {
				var err error
				if running {
					results[i], err = a.orch.Start(ctx, t.ID)
				} else {
					results[i], err = a.orch.Stop(ctx, t.ID)
				}
				if err != nil {
					errs[i] = fmt.Errorf("%s: %w", t.Name, err)
				}
				return nil
			})
		}
		_ = g.Wait()

		verb := "Stopped"
		if running {
			verb = "Started"
		}
		var failed []error
		for i := range targets {
			if errs[i] != nil {
				failed = append(failed, errs[i])
				continue
			}
			if err := printRecord(cmd, verb, results[i]); err != nil {
				return err
			}
		}
		return joinFailures(failed)
	})
}

// resolveTargets turns references into records. With all, the records not
// already running (or stopped) are selected.
func resolveTargets(ctx context.Context, orch *lifecycle.Orchestrator, refs []string, all, running bool) ([]records.Record, error) {
	if !all {
		out := make([]records.Record, 0, len(refs))
		for _, ref := range refs {
			r, err := orch.Find(ref)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}

	rs, err := orch.List(ctx)
	if err != nil {
		return nil, err
	}
	want := records.StatusStopped
	if running {
		want = records.StatusRunning
	}
	var out []records.Record
	for _, r := range rs {
		if r.Status != want && r.HasContainer() {
			out = append(out, r)
		}
	}
	return out, nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		var failed []error
		for _, ref := range args {
			rec, err := a.orch.Find(ref)
			if err != nil {
				failed = append(failed, err)
				continue
			}
			if err := a.orch.Remove(cmd.Context(), rec.ID); err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", rec.Name, err))
				continue
			}
			if !jsonOutput {
				printerFor(cmd).Success("Removed " + rec.Name)
			}
		}
		return joinFailures(failed)
	})
}

func runLogs(cmd *cobra.Command, args []string) error {
	tail := logTail
	if tail <= 0 {
		tail = engine.DefaultLogTail
	}
	return withApp(cmd.Context(), func(a *app) error {
		rec, err := a.orch.Find(args[0])
		if err != nil {
			return err
		}
		out, err := a.orch.Logs(cmd.Context(), rec.ID, tail)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"logs": out})
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	})
}

func runExec(cmd *cobra.Command, args []string) error {
	command := strings.Join(args[1:], " ")
	columns := execCols
	if columns <= 0 {
		columns = engine.DefaultColumns
	}
	return withApp(cmd.Context(), func(a *app) error {
		rec, err := a.orch.Find(args[0])
		if err != nil {
			return err
		}
		res, err := a.orch.Exec(cmd.Context(), rec.ID, command, columns)
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
		}
		if res.ExitCode != 0 {
			return &ExitError{Command: command, ExitCode: res.ExitCode}
		}
		return nil
	})
}

func runSync(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		res, err := a.orch.Sync(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"changed": len(res.Changes),
				"skipped": res.Skipped,
				"changes": res.Changes,
			})
		}
		p := printerFor(cmd)
		for _, c := range res.Changes {
			p.Info(fmt.Sprintf("%s: %s -> %s", c.Name, c.FromStatus, c.ToStatus))
		}
		p.Success(fmt.Sprintf("Synchronized %d databases, %d changed, %d busy", len(res.Records), len(res.Changes), res.Skipped))
		return nil
	})
}

func runURI(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		rec, err := a.orch.Find(args[0])
		if err != nil {
			return err
		}
		uri, err := a.orch.ConnectionURI(rec.ID, uriHost)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"uri": uri})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), uri)
		return err
	})
}

// spin runs fn behind a spinner on stderr when progress is shown.
func spin(cmd *cobra.Command, message string, fn func() error) error {
	if !ux.ShouldShowProgress() {
		return fn()
	}
	return ux.WithSpinner(cmd.ErrOrStderr(), message, fn)
}

// joinFailures keeps a single failure as is so its classification drives
// the exit code.
func joinFailures(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
