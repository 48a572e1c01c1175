package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parity-labs/parity-cli/internal/model"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Inspect and publish the schema taxonomy",
}

var taxonomyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configured taxonomy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		taxonomy, err := model.LoadTaxonomy(cfg.Taxonomy.Path)
		if err != nil {
			return err
		}
		formatTaxonomy(os.Stdout, taxonomy)
		return nil
	},
}

// taxonomy push writes the configured taxonomy into the store so other
// tooling sharing the database sees the same field definitions the scorer
// uses.
var taxonomyPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Publish the taxonomy to the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		taxonomy, err := model.LoadTaxonomy(cfg.Taxonomy.Path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.SaveTaxonomy(ctx, taxonomy); err != nil {
			return err
		}

		zap.L().Info("taxonomy published",
			zap.String("taxonomy", taxonomy.Name),
			zap.Int("fields", len(taxonomy.Fields)),
		)
		return nil
	},
}

func formatTaxonomy(w io.Writer, t *model.SchemaTaxonomy) {
	fmt.Fprintf(w, "Taxonomy %q (%d fields, %d required):\n", t.Name, len(t.Fields), len(t.Required()))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tCLASS\tREQUIRED")
	for _, f := range t.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", f.Name, f.Type, f.Class, f.Required)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	taxonomyCmd.AddCommand(taxonomyShowCmd, taxonomyPushCmd)
	rootCmd.AddCommand(taxonomyCmd)
}
