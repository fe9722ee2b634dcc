package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezoningwatch/rezoningwatch/internal/snapshot"
	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

func newListCmd(opts *cliOptions) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every project in the snapshot database",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := snapshot.Open(opts.cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			var records []types.Record
			if err := store.ForEach(func(r types.Record) error {
				records = append(records, r)
				return nil
			}); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(opts.stdout, records)
			}
			return printRecords(opts.stdout, records)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}

func newTokenCmd(opts *cliOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Show the stored API token expiration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if refresh {
				a, err := newApp(opts.cfg, runFlags{}, opts.logger)
				if err != nil {
					return err
				}
				defer a.Close()
				ctx, cancel := context.WithTimeout(cmd.Context(), 2*opts.cfg.Upstream.Timeout)
				defer cancel()
				tok, err := a.provider.Token(ctx, false)
				if err != nil {
					return err
				}
				return printToken(opts.stdout, tok, true, time.Now(), opts.cfg.Token.ExpirySkew)
			}

			store, err := snapshot.Open(opts.cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			tok, found, err := store.GetToken()
			if err != nil {
				return err
			}
			if err := printToken(opts.stdout, tok, found, time.Now(), opts.cfg.Token.ExpirySkew); err != nil {
				return err
			}
			if !found {
				return exitSilent(2)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "obtain a token now if the stored one is not fresh")
	return cmd
}

func writeJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printRecords(w io.Writer, records []types.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tNAME\tURL")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Attributes.State, r.Attributes.Name, r.Links.Self)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d records\n", len(records))
	return err
}

func printToken(w io.Writer, tok types.Token, found bool, now time.Time, skew time.Duration) error {
	if !found {
		_, err := fmt.Fprintln(w, "no token stored")
		return err
	}
	status := "fresh"
	if !tok.FreshAt(now, skew) {
		status = "stale"
	}
	_, err := fmt.Fprintf(w, "expires %s (%s)\n", tok.Expiration.UTC().Format(time.RFC3339), status)
	return err
}
