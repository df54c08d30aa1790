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
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	var keyboard bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the assistant: buttons, display, chat and object pipelines, dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("keyboard") {
				c.cfg.Buttons.Keyboard = keyboard
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(c.cfg, c.configPath)
			if err != nil {
				logging.LogError(err, "Failed to start loqa-pi")
				return err
			}
			defer a.Close()

			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&keyboard, "keyboard", false, "read button presses from stdin (1, 2, 3, 3d, 3u)")
	return cmd
}

