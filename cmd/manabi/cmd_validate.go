package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manabi-dev/manabi/internal/validation"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a .manabi.yaml file against the configuration schema",
		Args:  cobra.ExactArgs(1),
		RunE:  validateCommandE,
	}
}

func validateCommandE(cmd *cobra.Command, args []string) error {
	path := args[0]

	errs, err := validation.ValidateConfigFile(path)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		fmt.Printf("%s: %d problem(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("%s failed schema validation", path)
	}

	fmt.Printf("%s is valid\n", path)
	return nil
}
