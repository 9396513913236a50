package main

import (
	"fmt"

	"github.com/danmuck/spilink/internal/bridge"
	"github.com/danmuck/spilink/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "spilinkd",
		Short:         "Framed SPI link to a network/Bluetooth co-processor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newEncodeCmd(), newDecodeCmd(), newConfigCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var bridgePath, overridePath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bind the link and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServiceConfig(bridgePath, overridePath)
			if err != nil {
				return err
			}
			return bridge.NewService(cfg).Run()
		},
	}
	cmd.Flags().StringVarP(&bridgePath, "config", "c", "", "bridge config file (defaults when empty)")
	cmd.Flags().StringVar(&overridePath, "override", "", "host-local override file")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate bridge config files",
	}

	var kind string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", kind, args[0])
			return nil
		},
	}
	initCmd.Flags().StringVar(&kind, "kind", config.PlatformSpidev, "template kind: spidev|loopback")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Parse and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
