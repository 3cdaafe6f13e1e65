package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := sessionFrom(cmd)
			if s == nil {
				return fmt.Errorf("command context is not initialized")
			}
			if output != "" {
				if err := s.config.SaveToFile(output); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", output)
				return err
			}
			data, err := s.config.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the YAML to this file instead of stdout")
	return cmd
}
