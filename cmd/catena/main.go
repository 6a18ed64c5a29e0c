// Package main provides the CLI entry point for the catena messenger.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/config"
	"github.com/catena-chat/catena/directory"
	"github.com/catena-chat/catena/keystore"
	"github.com/catena-chat/catena/ledger"
	"github.com/catena-chat/catena/messenger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "catena",
		Short:   "catena - peer-to-peer end-to-end encrypted messaging over an append-only ledger",
		Version: versioninfo.Short(),
	}

	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(publishKeyCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(muxCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal("catena exited with an error", "err", err)
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new messenger secret key and print it base64-encoded",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := channel.GenerateSecret()
			if err != nil {
				return fmt.Errorf("generate secret: %w", err)
			}
			public, err := channel.PublicFromSecret(secret)
			if err != nil {
				return fmt.Errorf("derive public key: %w", err)
			}
			fmt.Printf("CATENA_SECRET_KEY=%s\n", base64Of(secret[:]))
			fmt.Printf("public key: %s\n", base64Of(public[:]))
			return nil
		},
	}
}

func publishKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-key",
		Short: "Publish this account's public key to the key registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, _, err := buildMessenger(ctx)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.PublishSelfKey(ctx); err != nil {
				return fmt.Errorf("publish key: %w", err)
			}
			public := m.PublicKey()
			fmt.Println("published public key:", base64Of(public[:]))
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <account>",
		Short: "Open an interactive two-party conversation with an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			m, cfg, err := buildMessenger(ctx)
			if err != nil {
				return err
			}
			defer m.Close()
			return runChatREPL(ctx, m, cfg, args[0])
		},
	}
}

func muxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mux <accounts...>",
		Short: "Interleave incoming messages from several accounts in timestamp order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			m, _, err := buildMessenger(ctx)
			if err != nil {
				return err
			}
			defer m.Close()
			return runMuxREPL(ctx, m, args)
		},
	}
}

func buildMessenger(ctx context.Context) (*messenger.Messenger, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	// Two independent keys (spec.md §6): messenger_secret_key is the X25519
	// DH scalar Channel math runs on; key_file_path is the ledger
	// transaction signing key. Neither substitutes for the other.
	secretKey, err := keystore.FromBase64(cfg.SecretKeyBase64)
	if err != nil {
		return nil, nil, fmt.Errorf("load messenger secret key: %w", err)
	}
	defer secretKey.Destroy()

	signingKey, err := keystore.LoadSigningKey(cfg.KeyFilePath, keystore.PromptPassphrase("ledger signing key passphrase: "))
	if err != nil {
		return nil, nil, fmt.Errorf("load ledger signing key: %w", err)
	}
	defer signingKey.Destroy()

	var secret [32]byte
	copy(secret[:], secretKey.Bytes())

	client := ledger.NewClient(cfg.Endpoint(), cfg.KeyRegistryAccount, cfg.RepositoryAccount, signingKey)

	var repo ledger.Repository = client
	if cfg.LocalRepositoryPath != "" {
		local, err := ledger.OpenLocalRepository(cfg.LocalRepositoryPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open local repository: %w", err)
		}
		repo = local
	}

	if cfg.MetricsEnabled {
		metrics := ledger.NewMetrics(defaultRegisterer())
		repo = ledger.Instrument(repo, metrics)
	}

	m, err := messenger.New(secret, client, repo)
	if err != nil {
		return nil, nil, fmt.Errorf("construct messenger: %w", err)
	}

	if cfg.DirectoryDSN != "" {
		cache, err := directory.OpenAliasCache(ctx, cfg.DirectoryDSN)
		if err != nil {
			log.Warn("directory alias cache unavailable", "err", err)
		} else {
			m.SetAliasCache(cache)
		}
	}

	return m, cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func base64Of(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func defaultRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}
