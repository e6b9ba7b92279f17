package main

import (
	"fmt"

	"github.com/danmuck/cwpctl/internal/config"
	"github.com/spf13/cobra"
)

func configCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate a cwpctl config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config template (stdout when no path is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprint(cmd.OutOrStdout(), config.Template())
				return nil
			}
			if err := config.WriteTemplate(args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the --config file and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.configPath == "" {
				return fmt.Errorf("validate: --config is required")
			}
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok host=%s port=%d unit_width=%v freq=%d\n",
				cfg.Server.Host, cfg.Server.Port, cfg.Server.UnitWidth, cfg.Frequency)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
