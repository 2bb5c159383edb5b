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
	"strings"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	verbose    bool
	outputMode string

	theApp *app

	configureFlags configureOptions
	punchFlags     punchOptions
	historyDay     string
	noteCategory   string
	justifyFlags   justifyOptions
	reportFlags    reportOptions
	resetConfirmed bool

	rootCmd = &cobra.Command{
		Use:           "punchledger",
		Short:         "Offline-first attendance punch ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			theApp = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if theApp != nil {
				theApp.close(context.Background())
			}
		},
	}

	// --- Device ---
	configureCmd = &cobra.Command{
		Use:   "configure",
		Short: "Bind this device to an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd.Context(), theApp, cmd.OutOrStdout(), configureFlags, cmd.Flags().Changed)
		},
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the device, today's punches and the suggested next punch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), theApp, cmd.OutOrStdout())
		},
	}
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "DANGER: Erase the local ledger and the device configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), theApp, cmd.OutOrStdout(), resetConfirmed)
		},
	}

	// --- Punches ---
	punchCmd = &cobra.Command{
		Use:       "punch [entry|exit|occasional]",
		Short:     "Record a punch at the supplied location",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"entry", "exit", "occasional"},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := punchFlags
			opts.hasFix = cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng")
			return runPunch(cmd.Context(), theApp, cmd.OutOrStdout(), args[0], opts)
		},
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List the punches of a day (default today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), theApp, cmd.OutOrStdout(), historyDay)
		},
	}

	// --- Sync ---
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local ledger with the remote ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), theApp, cmd.OutOrStdout())
		},
	}
	agentCmd = &cobra.Command{
		Use:   "agent",
		Short: "Sync periodically and serve Prometheus metrics until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), theApp)
		},
	}

	// --- Badges and notes ---
	badgesCmd = &cobra.Command{
		Use:   "badges",
		Short: "List the badge catalog and the badges earned",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBadges(cmd.Context(), theApp, cmd.OutOrStdout())
		},
	}
	noteCmd = &cobra.Command{
		Use:   "note [text]",
		Short: "Record a note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNote(cmd.Context(), theApp, cmd.OutOrStdout(), noteCategory, strings.Join(args, " "))
		},
	}
	justifyCmd = &cobra.Command{
		Use:   "justify [text]",
		Short: "Record a late-arrival justification",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJustify(cmd.Context(), theApp, cmd.OutOrStdout(), strings.Join(args, " "), justifyFlags)
		},
	}

	// --- Reports ---
	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Export punches as CSV or XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), theApp, cmd.OutOrStdout(), reportFlags)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.punchledger/punchledger.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "auto", "output style: auto, full, minimal or machine")

	f := configureCmd.Flags()
	f.StringVar(&configureFlags.Code, "code", "", "employee code")
	f.StringVar(&configureFlags.Name, "name", "", "employee full name")
	f.StringVar(&configureFlags.Position, "position", "", "position")
	f.StringVar(&configureFlags.Phone, "phone", "", "assigned phone number")
	f.StringVar(&configureFlags.Manager, "manager", "", "immediate manager")
	f.Float64Var(&configureFlags.OfficeLat, "office-lat", 0, "office latitude")
	f.Float64Var(&configureFlags.OfficeLng, "office-lng", 0, "office longitude")
	f.BoolVar(&configureFlags.Prefill, "prefill", false, "fill missing fields from the employee master")

	f = punchCmd.Flags()
	f.Float64Var(&punchFlags.Lat, "lat", 0, "latitude of the current fix")
	f.Float64Var(&punchFlags.Lng, "lng", 0, "longitude of the current fix")
	f.Float64Var(&punchFlags.Accuracy, "accuracy", 0, "accuracy of the fix in meters")
	f.StringVar(&punchFlags.Comments, "comments", "", "free-text comments")
	f.StringVar(&punchFlags.Reason, "reason", "", "occasional exit reason")
	f.StringVar(&punchFlags.AuthorizedBy, "authorized-by", "", "who authorized the occasional exit")
	f.StringVar(&punchFlags.Mood, "mood", "", "mood on exit: happy, neutral, tired, stressed, excited")
	f.StringVar(&punchFlags.Device, "device", "desktop", "device type: mobile or desktop")

	historyCmd.Flags().StringVar(&historyDay, "day", "", "day as YYYY-MM-DD")

	noteCmd.Flags().StringVar(&noteCategory, "category", "Nota", "Nota, Comentario, Sugerencia, Queja or Varios")
	justifyCmd.Flags().BoolVar(&justifyFlags.Photo, "photo", false, "a photo is attached")
	justifyCmd.Flags().BoolVar(&justifyFlags.Audio, "audio", false, "an audio recording is attached")

	f = reportCmd.Flags()
	f.StringVar(&reportFlags.From, "from", "", "first day YYYY-MM-DD (default first of this month)")
	f.StringVar(&reportFlags.To, "to", "", "last day YYYY-MM-DD (default last of this month)")
	f.StringVar(&reportFlags.Format, "format", "csv", "csv or xlsx")
	f.StringVar(&reportFlags.Out, "out", "", "output file, - for stdout (default reporte_{from}_{to}.{format})")

	resetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "confirm erasing all local data")

	rootCmd.AddCommand(configureCmd, statusCmd, resetCmd)
	rootCmd.AddCommand(punchCmd, historyCmd)
	rootCmd.AddCommand(syncCmd, agentCmd)
	rootCmd.AddCommand(badgesCmd, noteCmd, justifyCmd)
	rootCmd.AddCommand(reportCmd)
}
