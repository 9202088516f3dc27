package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mitch000001/hrv-sync/pkg/runalyze"
	"github.com/mitch000001/hrv-sync/pkg/store"
)

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "extract",
			Short: "Extract the exported archive into the raw data directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(a *app) error {
					return a.extract()
				})
			},
		},
		&cobra.Command{
			Use:   "ingest",
			Short: "Compute metrics for raw data files not processed yet",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(a *app) error {
					return a.ingest(cmd.Context())
				})
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Upload every metric Runalyze has not accepted yet",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(a *app) error {
					return a.sync(cmd.Context())
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List processed records and their delivery state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(a *app) error {
					return printStatus(cmd.OutOrStdout(), a.store)
				})
			},
		},
	)
}

var (
	sentColor    = color.New(color.FgGreen)
	pendingColor = color.New(color.FgYellow)
)

func printStatus(w io.Writer, s *store.Store) error {
	var delivered, pending int
	for _, id := range s.Identities() {
		r, _ := s.Get(id)
		if _, err := fmt.Fprintf(w, "%s", id); err != nil {
			return err
		}
		for _, kind := range runalyze.Kinds {
			_, sent, err := r.Body(kind)
			if err != nil {
				return err
			}
			label := pendingColor.Sprint("pending")
			if sent {
				label = sentColor.Sprint("sent")
				delivered++
			} else {
				pending++
			}
			fmt.Fprintf(w, "  %s: %s", kind, label)
		}
		fmt.Fprintln(w)
	}
	_, err := fmt.Fprintf(w, "%d records, %d payloads delivered, %d pending\n", s.Len(), delivered, pending)
	return err
}
