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
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/pkg/ux"
)

func printerFor(cmd *cobra.Command) *ux.Printer {
	return &ux.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// recordView is the --json shape of a record. The password is left out.
type recordView struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Kind           records.Kind   `json:"db_type"`
	Version        string         `json:"version"`
	Status         records.Status `json:"status"`
	Port           int            `json:"port"`
	CreatedAt      string         `json:"created_at"`
	MaxConnections int            `json:"max_connections"`
	ContainerID    string         `json:"container_id,omitempty"`
	Username       string         `json:"username,omitempty"`
	DatabaseName   string         `json:"database_name,omitempty"`
	PersistData    bool           `json:"persist_data"`
	EnableAuth     bool           `json:"enable_auth"`
}

func viewOf(r records.Record) recordView {
	return recordView{
		ID:             r.ID,
		Name:           r.Name,
		Kind:           r.Kind,
		Version:        r.Version,
		Status:         r.Status,
		Port:           r.Port,
		CreatedAt:      r.CreatedAt,
		MaxConnections: r.MaxConnections,
		ContainerID:    r.ContainerIDString(),
		Username:       records.Deref(r.Username),
		DatabaseName:   records.Deref(r.DatabaseName),
		PersistData:    r.PersistData,
		EnableAuth:     r.EnableAuth,
	}
}

var recordHeaders = []string{"NAME", "ID", "TYPE", "VERSION", "STATUS", "PORT", "CREATED"}

func recordRows(rs []records.Record) [][]string {
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, []string{
			r.Name,
			shortID(r.ID),
			string(r.Kind),
			r.Version,
			ux.StatusCell(string(r.Status)),
			strconv.Itoa(r.Port),
			r.CreatedAt,
		})
	}
	return rows
}

// printRecords writes rs as JSON or as a table.
func printRecords(cmd *cobra.Command, rs []records.Record) error {
	if jsonOutput {
		views := make([]recordView, 0, len(rs))
		for _, r := range rs {
			views = append(views, viewOf(r))
		}
		return writeJSON(cmd.OutOrStdout(), views)
	}
	p := printerFor(cmd)
	if len(rs) == 0 {
		p.Info("No databases yet. Create one with \"dockdb create\".")
		return nil
	}
	p.Table(recordHeaders, recordRows(rs))
	return nil
}

// printRecord writes a single record after a successful operation.
func printRecord(cmd *cobra.Command, verb string, r records.Record) error {
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), viewOf(r))
	}
	printerFor(cmd).Success(fmt.Sprintf("%s %s (%s, port %d, %s)", verb, r.Name, r.Kind, r.Port, r.Status))
	return nil
}

func printEngineStatus(cmd *cobra.Command, s engine.EngineStatus) error {
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), s)
	}
	p := printerFor(cmd)
	if s.Status != engine.StatusRunning {
		p.Warning(s.Error)
		return nil
	}
	p.Box("Engine", fmt.Sprintf("version  %s\nhost     %s\nrunning  %d of %d containers",
		s.Version, s.Host, s.Containers.Running, s.Containers.Total))
	return nil
}

// shortID abbreviates a UUID the way container ids are shown.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
