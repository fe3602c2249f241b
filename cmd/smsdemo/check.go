package main

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/smsdemo/internal/config"
	"github.com/mattjoyce/smsdemo/internal/doctor"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var (
		configPath string
		jsonOut    bool
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and report deployment warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(configPath, config.Overrides{})
			if err != nil {
				return err
			}

			result := doctor.New(cfg).Validate()
			out := cmd.OutOrStdout()
			if jsonOut {
				data, err := doctor.FormatJSON(result)
				if err != nil {
					return fmt.Errorf("failed to render report: %w", err)
				}
				fmt.Fprintln(out, data)
			} else {
				fmt.Fprint(out, doctor.FormatHuman(result))
			}

			if !result.Valid {
				return errors.New("configuration invalid")
			}
			if strict && len(result.Warnings) > 0 {
				return errors.New("configuration has warnings")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	f.BoolVar(&jsonOut, "json", false, "Output the report as JSON")
	f.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}
