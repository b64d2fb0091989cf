// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	keygenOut  string

	rootCmd = &cobra.Command{
		Use:   "voltcord",
		Short: "Consent-based device control core for chat platforms",
		Long: `Voltcord is the backend core behind a chat-platform device-control bot.
It stores registrations, consent grants, preferences, reminders, and
message triggers, and sends rate-limited commands to the device API.
The chat platform itself is handled by a separate collaborator that
talks to this service over HTTP.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the voltcord API server",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "Generate an age identity for the credential store",
		RunE:  runKeygen, // Defined in cmd_keygen.go
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML or JSON)")
	keygenCmd.Flags().StringVarP(&keygenOut, "output", "o", "", "write the identity to a file instead of stdout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
}
