package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/brandlab/internal/app/itemtype"
	"github.com/PabloGalante/brandlab/internal/domain"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the item kinds that can be explored",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Listing needs no store or model.
		registry, err := itemtype.NewDefaultRegistry(itemtype.Deps{})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tLABEL\tFIELDS\tRESEARCH WEIGHTS")
		for _, c := range registry.Kinds() {
			var fields []string
			for _, f := range itemtype.Fields(c) {
				fields = append(fields, f.Key)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Kind(), c.Label(), strings.Join(fields, ","), formatWeights(registry.Weights(c.Kind())))
		}
		return w.Flush()
	},
}

func formatWeights(w domain.MethodWeights) string {
	parts := make([]string, 0, len(w))
	for _, m := range domain.ResearchMethods {
		if v, ok := w[m]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.2f", m, v))
		}
	}
	return strings.Join(parts, " ")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of brandlab",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "brandlab %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd, versionCmd)
}
