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
	"strconv"

	"github.com/loqalabs/loqa-captions/internal/session"
	"github.com/spf13/cobra"
)

func newStatusCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether captions are active",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.client().status(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, status)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Active", "Recognition"},
				[][]string{{formatBool(status.Active), formatSupported(status.Supported)}},
				nil,
			))
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newToggleCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Turn captions on or off",
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := opts.client().toggle(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, map[string]bool{"active": active})
			}
			if active {
				fmt.Fprintln(cmd.OutOrStdout(), "Subtitles activated")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Subtitles deactivated")
			}
			return nil
		},
	}
}

func newSettingsCommand(opts *cliOptions) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change caption settings",
	}

	settingsCmd.AddCommand(newSettingsShowCommand(opts))
	settingsCmd.AddCommand(newSettingsSetCommand(opts))

	return settingsCmd
}

func newSettingsShowCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.client().settings(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, settings)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSettings(settings))
			return nil
		},
	}
}

func newSettingsSetCommand(opts *cliOptions) *cobra.Command {
	var (
		translation bool
		language    string
		fontSize    string
		textColor   string
		opacity     int
		position    string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		Example: `  captions-cli settings set --language es
  captions-cli settings set --font-size 24px --position top`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch session.Patch
			flags := cmd.Flags()
			if flags.Changed("translation") {
				patch.TranslationEnabled = &translation
			}
			if flags.Changed("language") {
				patch.TargetLanguage = &language
			}
			if flags.Changed("font-size") {
				patch.FontSize = &fontSize
			}
			if flags.Changed("text-color") {
				patch.TextColor = &textColor
			}
			if flags.Changed("opacity") {
				patch.BackgroundOpacity = &opacity
			}
			if flags.Changed("position") {
				p := session.Position(position)
				patch.Position = &p
			}
			if patch.IsEmpty() {
				return fmt.Errorf("no settings given; see --help")
			}

			if err := opts.client().updateSettings(cmd.Context(), patch); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, map[string]string{"status": "updated"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Settings updated")
			return nil
		},
	}

	cmd.Flags().BoolVar(&translation, "translation", true, "Translate final phrases")
	cmd.Flags().StringVar(&language, "language", "", "Target language (BCP 47 tag or \"auto\")")
	cmd.Flags().StringVar(&fontSize, "font-size", "", "Caption font size, e.g. 18px")
	cmd.Flags().StringVar(&textColor, "text-color", "", "Caption text color, e.g. #ffffff")
	cmd.Flags().IntVar(&opacity, "opacity", 0, "Background opacity 0-100")
	cmd.Flags().StringVar(&position, "position", "", "Caption position: bottom or top")

	return cmd
}

func renderSettings(s session.Settings) string {
	rows := [][]string{
		{"Translation", formatBool(s.TranslationEnabled)},
		{"Target language", s.TargetLanguage},
		{"Font size", s.FontSize},
		{"Text color", s.TextColor},
		{"Background opacity", strconv.Itoa(s.BackgroundOpacity) + "%"},
		{"Position", string(s.Position)},
	}
	return renderTable([]string{"Setting", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatSupported(b bool) string {
	if b {
		return "supported"
	}
	return "unavailable"
}
