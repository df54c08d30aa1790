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
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-pi/internal/llm"
	"github.com/loqalabs/loqa-pi/internal/memory"
	"github.com/loqalabs/loqa-pi/internal/storage"
	"github.com/spf13/cobra"
)

func newMemoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Query the chat memory used for retrieval",
	}

	var k int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank stored exchanges against a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.NewDatabase(storage.DatabaseConfig{Path: c.cfg.Storage.DBPath})
			if err != nil {
				return err
			}
			defer db.Close()

			store := memory.NewStore(db.DB(), llm.NewOllamaClient(c.cfg.LLM))
			entries, err := store.Search(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No memories stored yet.")
				return nil
			}
			for i, e := range entries {
				fmt.Fprintf(out, "%d. [%.3f] %s\n", i+1, e.Score, strings.ReplaceAll(e.Document, "\n", " | "))
			}
			return nil
		},
	}
	search.Flags().IntVarP(&k, "top", "k", 3, "number of results")

	cmd.AddCommand(search)
	return cmd
}
