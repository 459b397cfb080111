package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auditflow/automation-engine/common/validation"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the embedded document schemas",
}

var schemaShowCmd = &cobra.Command{
	Use:       "show <plan|workflow>",
	Short:     "Print a schema source",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"plan", "workflow"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return showSchema(args[0])
	},
}

func registerSchemaCommand(root *cobra.Command) {
	root.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaShowCmd)
}

func showSchema(kind string) error {
	// Compile first so a broken embedded schema is reported rather than
	// printed as if it were usable.
	if _, err := validation.NewSchemaValidator(); err != nil {
		return fmt.Errorf("schema does not compile: %w", err)
	}

	src, err := validation.SchemaSource(kind)
	if err != nil {
		return err
	}

	fmt.Print(string(src))
	return nil
}
