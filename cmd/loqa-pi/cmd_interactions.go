/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/storage"
	"github.com/spf13/cobra"
)

func newInteractionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactions",
		Short: "Browse recorded chat and object interactions",
	}

	var (
		mode      string
		limit     int
		failed    bool
		asJSON    bool
		orderBy   string
		audioHash string
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent interactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options := storage.ListOptions{Limit: limit, SortBy: orderBy, SortOrder: "DESC"}
			if mode != "" {
				m, err := events.ParseMode(mode)
				if err != nil {
					return err
				}
				options.Mode = m
			}
			if failed {
				success := false
				options.Success = &success
			}

			db, err := storage.NewDatabase(storage.DatabaseConfig{Path: c.cfg.Storage.DBPath})
			if err != nil {
				return err
			}
			defer db.Close()

			store := storage.NewInteractionsStore(db)
			var rows []*events.Interaction
			if audioHash != "" {
				// repeated recordings of the same clip share a hash
				rows, err = store.GetByAudioHash(cmd.Context(), audioHash)
			} else {
				rows, err = store.List(cmd.Context(), options)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tMODE\tROUTE\tOK\tINPUT\tRESPONSE")
			for _, in := range rows {
				input := in.Transcript
				if in.Mode == events.ModeObject {
					input = strings.Join(in.Labels, ", ")
				}
				response := in.ResponseText
				if !in.Success {
					response = "error: " + in.ErrorMessage
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
					in.Timestamp.Local().Format("2006-01-02 15:04:05"),
					in.Mode, in.Route, in.Success, shorten(input, 40), shorten(response, 60))
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&mode, "mode", "", "only chat or object interactions")
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	list.Flags().BoolVar(&failed, "failed", false, "only failed interactions")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	list.Flags().StringVar(&orderBy, "sort", "timestamp", "sort column")
	list.Flags().StringVar(&audioHash, "audio-hash", "", "only interactions whose recording has this SHA-256; other filters are ignored")

	cmd.AddCommand(list)
	return cmd
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
