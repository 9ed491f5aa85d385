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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/dockdb/cmd/dockdb/config"
	"github.com/AleutianAI/dockdb/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath   string
	jsonOutput   bool
	outputLevel  string // rich/minimal/machine
	verbose      bool
	loadedConfig config.DockdbConfig

	createOpts = newDBFlags()
	updateOpts = newDBFlags()

	renameTo    string
	startAll    bool
	stopAll     bool
	logTail     int
	execCols    int
	uriHost     string
	serveAddr   string
	noReconcile bool

	rootCmd = &cobra.Command{
		Use:   "dockdb",
		Short: "Run local development databases in containers",
		Long: `dockdb creates, updates and removes PostgreSQL, MySQL, Redis and
MongoDB containers, and keeps a record of every database it manages.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}

	// --- Databases ---
	listCmd = &cobra.Command{
		Use:     "ls",
		Short:   "List databases, refreshed from the engine",
		Aliases: []string{"list"},
		Args:    cobra.NoArgs,
		RunE:    runList,
	}
	createCmd = &cobra.Command{
		Use:   "create NAME",
		Short: "Create and start a database",
		Example: `  dockdb create shop --type postgres --version 16 --persist
  dockdb create cache --type redis --port 6380 --auth`,
		Args: cobra.ExactArgs(1),
		RunE: runCreate,
	}
	updateCmd = &cobra.Command{
		Use:   "update REF",
		Short: "Change a database; recreates the container when needed",
		Long: `Changes the name, port or persistence of a database, or its
maximum connections. A name, port or persistence change recreates the
container; a rename of a persistent database copies its data to the new
volume first.`,
		Args: cobra.ExactArgs(1),
		RunE: runUpdate,
	}
	startCmd = &cobra.Command{
		Use:   "start [REF...]",
		Short: "Start databases",
		RunE:  runStart,
	}
	stopCmd = &cobra.Command{
		Use:   "stop [REF...]",
		Short: "Stop databases",
		RunE:  runStop,
	}
	removeCmd = &cobra.Command{
		Use:     "rm REF...",
		Short:   "Remove databases with their containers and volumes",
		Aliases: []string{"remove", "delete"},
		Args:    cobra.MinimumNArgs(1),
		RunE:    runRemove,
	}
	logsCmd = &cobra.Command{
		Use:   "logs REF",
		Short: "Print a database's container logs",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
	execCmd = &cobra.Command{
		Use:   "exec REF -- COMMAND...",
		Short: "Run a shell command inside a database container",
		Example: `  dockdb exec shop -- psql -U postgres -c 'select 1'`,
		Args: cobra.MinimumNArgs(2),
		RunE: runExec,
	}
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the records with the engine",
		Args:  cobra.NoArgs,
		RunE:  runSync,
	}
	uriCmd = &cobra.Command{
		Use:     "url REF",
		Short:   "Print a client connection URL",
		Aliases: []string{"uri"},
		Args:    cobra.ExactArgs(1),
		RunE:    runURI,
	}

	// --- Engine ---
	engineCmd = &cobra.Command{
		Use:   "engine",
		Short: "Inspect the container engine",
	}
	engineStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report whether the engine is running",
		Args:  cobra.NoArgs,
		RunE:  runEngineStatus,
	}

	// --- Config ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and reconcile in the background",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to dockdb.yaml (default ~/.dockdb/dockdb.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().StringVar(&outputLevel, "output", "",
		"Output style: rich, minimal or machine (default: detect)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	createOpts.register(createCmd.Flags(), "postgres")
	updateOpts.register(updateCmd.Flags(), "")
	updateCmd.Flags().StringVar(&renameTo, "name", "", "New name")

	startCmd.Flags().BoolVar(&startAll, "all", false, "Start every stopped database")
	stopCmd.Flags().BoolVar(&stopAll, "all", false, "Stop every running database")
	logsCmd.Flags().IntVar(&logTail, "tail", 0, "Number of lines (default 500)")
	execCmd.Flags().IntVar(&execCols, "columns", 0, "Terminal width for the command (default 80)")
	uriCmd.Flags().StringVar(&uriHost, "host", "localhost", "Host the database is reached on")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().BoolVar(&noReconcile, "no-reconcile", false, "Disable background reconciliation")

	engineCmd.AddCommand(engineStatusCmd)
	rootCmd.AddCommand(listCmd, createCmd, updateCmd, startCmd, stopCmd, removeCmd,
		logsCmd, execCmd, syncCmd, uriCmd, engineCmd, configCmd, serveCmd)
}

// loadConfig runs before every command: output personality first, so that
// config errors are rendered in the right style.
func loadConfig(cmd *cobra.Command, args []string) error {
	switch {
	case jsonOutput:
		ux.SetPersonality(ux.PersonalityMachine)
	case outputLevel != "":
		ux.SetPersonality(ux.ParsePersonalityLevel(outputLevel))
	default:
		ux.InitPersonality()
	}

	c, err := config.Load(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	loadedConfig = c
	return nil
}
