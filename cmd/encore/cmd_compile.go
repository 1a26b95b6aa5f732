/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/encore/internal/concerts"
	"github.com/friendsincode/encore/internal/db"
	"github.com/friendsincode/encore/internal/server"
)

var compileCmd = &cobra.Command{
	Use:   "compile <concert-id>",
	Short: "Compile a concert setlist without broadcasting it",
	Long:  "Resolve and transcode a concert's setlist into the PCM file a broadcast would play, then print its location",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Export upcoming concerts as iCal",
	RunE:  runCalendar,
}

var (
	compileCleanup bool
	calendarOut    string
	calendarDays   int
)

func init() {
	compileCmd.Flags().BoolVar(&compileCleanup, "cleanup", false, "delete the compiled file after reporting it")
	calendarCmd.Flags().StringVarP(&calendarOut, "output", "o", "", "write to file instead of stdout")
	calendarCmd.Flags().IntVar(&calendarDays, "days", 30, "number of days to export")

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(calendarCmd)
}

func openStore() (*concerts.Store, func(), error) {
	if err := loadConfig(); err != nil {
		return nil, nil, err
	}
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return concerts.NewStore(database, logger), func() { _ = db.Close(database) }, nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	concertID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid concert id %q", args[0])
	}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	locations, err := store.Playlist(ctx, concertID)
	if err != nil {
		return err
	}
	compiler, err := server.NewCompiler(ctx, cfg, logger)
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := compiler.Compile(ctx, locations)
	if err != nil {
		return fmt.Errorf("compile concert %d: %w", concertID, err)
	}
	if compileCleanup {
		defer res.Remove()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\t%d songs\t%s\n",
		res.Path, res.Size, len(locations), time.Since(started).Round(time.Millisecond))
	return nil
}

func runCalendar(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	from := time.Now().UTC()
	export, err := store.ExportICal(context.Background(), from, from.AddDate(0, 0, calendarDays))
	if err != nil {
		return err
	}

	if calendarOut == "" {
		_, err = cmd.OutOrStdout().Write(export.Data)
		return err
	}
	if err := os.WriteFile(calendarOut, export.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", calendarOut, err)
	}
	logger.Info().Str("file", calendarOut).Msg("calendar exported")
	return nil
}
