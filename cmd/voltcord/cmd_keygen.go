// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voltcord/voltcord/services/core/credential"
)

// runKeygen generates an age identity for encrypting stored device tokens.
// The secret line goes to the output file or stdout; the public recipient is
// printed to stderr so redirecting stdout captures only the secret.
func runKeygen(cmd *cobra.Command, args []string) error {
	identity, err := credential.GenerateIdentity()
	if err != nil {
		return err
	}

	secret := identity.String() + "\n"
	if keygenOut != "" {
		if err := os.WriteFile(keygenOut, []byte(secret), 0o600); err != nil {
			return fmt.Errorf("write identity file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "identity written to %s\n", keygenOut)
	} else {
		fmt.Print(secret)
	}

	fmt.Fprintf(os.Stderr, "public recipient: %s\n", identity.Recipient().String())
	return nil
}
