package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tastythames/dmon-worker/internal/seal"
)

func newDecryptCmd(opts *rootOptions) *cobra.Command {
	var (
		ivB64      string
		legacySeed string
	)
	cmd := &cobra.Command{
		Use:   "decrypt <payload-hex>",
		Short: "Decrypt a captured push payload with the configured pre-shared key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			var iv [seal.IVSize]byte
			switch {
			case ivB64 != "":
				if iv, err = seal.DecodeIV(ivB64); err != nil {
					return err
				}
			case legacySeed != "":
				iv = seal.StaticIV(legacySeed) //nolint:staticcheck // payloads from old workers
			default:
				return errors.New("one of --iv or --legacy-seed is required")
			}

			plain, err := seal.Decrypt(strings.TrimSpace(args[0]), seal.DeriveKey(cfg.PreSharedKey), iv)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plain)
			return nil
		},
	}
	cmd.Flags().StringVar(&ivB64, "iv", "", "base64 IV sent alongside the payload")
	cmd.Flags().StringVar(&legacySeed, "legacy-seed", "", "seed of the static IV used by older workers")
	cmd.MarkFlagsMutuallyExclusive("iv", "legacy-seed")
	return cmd
}
