// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package credential manages per-principal device API tokens.
//
// Tokens are encrypted with age (x25519) before they touch the store and only
// exist in plaintext inside memguard locked buffers while an outbound request
// is being built. Nothing in this package ever logs or returns a raw token
// string to a caller that does not immediately destroy it.
//
// The service identity lives in a file containing a single
// AGE-SECRET-KEY-1... line. The keygen subcommand produces one.
package credential

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/awnumar/memguard"

	"github.com/voltcord/voltcord/services/core/store"
)

// Store encrypts, persists, and decrypts device API tokens.
//
// Thread Safety: Safe for concurrent use after creation.
type Store struct {
	backend   *store.Store
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// New creates a credential store from an identity loaded with LoadIdentity
// or GenerateIdentity.
func New(backend *store.Store, identity *age.X25519Identity) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend store is required")
	}
	if identity == nil {
		return nil, fmt.Errorf("identity is required")
	}
	return &Store{
		backend:   backend,
		identity:  identity,
		recipient: identity.Recipient(),
	}, nil
}

// LoadIdentity reads an age x25519 identity from a key file. The file must
// contain exactly one AGE-SECRET-KEY-1... line; comment lines starting with
// '#' are ignored.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	defer wipe(data)

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse identity: %w", err)
		}
		return identity, nil
	}
	return nil, fmt.Errorf("identity file %s contains no key", path)
}

// GenerateIdentity creates a fresh age x25519 identity.
func GenerateIdentity() (*age.X25519Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	return identity, nil
}

// Put encrypts a token and stores it for the principal, replacing any
// previous token. The plaintext argument is wiped before return.
func (s *Store) Put(ctx context.Context, guild, principal string, token []byte) error {
	defer wipe(token)

	if len(token) == 0 {
		return fmt.Errorf("token must not be empty")
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, s.recipient)
	if err != nil {
		return fmt.Errorf("create encryptor: %w", err)
	}
	if _, err := writer.Write(token); err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize encryption: %w", err)
	}

	return s.backend.PutCredential(ctx, guild, principal, ciphertext.Bytes())
}

// Open decrypts the principal's token into a memguard locked buffer. The
// caller must Destroy() the buffer as soon as the token has been copied into
// the outbound request header.
//
// Returns store.ErrNotFound (wrapped) when no token is stored.
func (s *Store) Open(ctx context.Context, guild, principal string) (*memguard.LockedBuffer, error) {
	ciphertext, err := s.backend.GetCredential(ctx, guild, principal)
	if err != nil {
		return nil, err
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt token: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read decrypted token: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("stored token is empty")
	}

	// NewBufferFromBytes wipes the source slice.
	return memguard.NewBufferFromBytes(plaintext), nil
}

// Delete removes the principal's stored token.
func (s *Store) Delete(ctx context.Context, guild, principal string) error {
	return s.backend.DeleteCredential(ctx, guild, principal)
}

// Has reports whether the principal has a stored token, without decrypting.
func (s *Store) Has(ctx context.Context, guild, principal string) (bool, error) {
	_, err := s.backend.GetCredential(ctx, guild, principal)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Recipient returns the public key tokens are encrypted to, safe to display.
func (s *Store) Recipient() string {
	return s.recipient.String()
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
