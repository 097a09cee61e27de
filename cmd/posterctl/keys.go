package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"posterd/internal/infra"
	"posterd/internal/infra/credentials"
)

var keysSetOpts struct {
	provider string
	key      string
	label    string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage stored language-model API keys",
}

var keysSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store or replace the API key for a provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel, cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := credentials.NewStore(infra.NewSQLRunner(pool, *logger))
		var props map[string]any
		if keysSetOpts.label != "" {
			props = map[string]any{"label": keysSetOpts.label}
		}
		if err := store.SetAPIKey(ctx, keysSetOpts.provider, keysSetOpts.key, props); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s key\n", keysSetOpts.provider)
		return nil
	},
}

func init() {
	f := keysSetCmd.Flags()
	f.StringVar(&keysSetOpts.provider, "provider", credentials.ProviderOpenAI, "Provider: openai or azure")
	f.StringVar(&keysSetOpts.key, "key", "", "API key")
	f.StringVar(&keysSetOpts.label, "label", "", "Optional note stored with the key")
	_ = keysSetCmd.MarkFlagRequired("key")
}
