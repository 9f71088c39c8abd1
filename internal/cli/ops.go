package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harun/docmcp/pkg/operation"
	"github.com/harun/docmcp/pkg/ops"
	"github.com/spf13/cobra"
)

var opsVerbose bool

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List registered operations",
	Long:  `List every registered operation with its access mode, output kind and parameters.`,
	Args:  cobra.NoArgs,
	RunE:  runOps,
}

func init() {
	opsCmd.Flags().BoolVarP(&opsVerbose, "verbose", "v", false, "show parameters")
	rootCmd.AddCommand(opsCmd)
}

func runOps(cmd *cobra.Command, args []string) error {
	registry, err := operation.NewRegistry(ops.Catalog())
	if err != nil {
		return fmt.Errorf("failed to build operation registry: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tACCESS\tOUTPUT\tDESCRIPTION")
	for _, desc := range registry.Descriptors() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", desc.Name, desc.Traits.Access, desc.Traits.Output, desc.Traits.Description)
		if !opsVerbose {
			continue
		}
		if desc.Traits.NeedsDocument {
			fmt.Fprintf(w, "\t--path\tstring\trequired\n")
		}
		for _, p := range desc.Traits.Parameters {
			fmt.Fprintf(w, "\t%s\t%s\t%s\n", p.Name, p.Type, describeParameter(p))
		}
	}
	return w.Flush()
}

func describeParameter(p operation.ParameterSpec) string {
	parts := []string{}
	if p.Required {
		parts = append(parts, "required")
	}
	if p.Default != nil {
		parts = append(parts, fmt.Sprintf("default %v", p.Default))
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	return strings.Join(parts, ", ")
}
