package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusesearch/internal/index"
	"github.com/Aman-CERP/fusesearch/pkg/version"
)

// versionDoc is the --json shape: build metadata plus the on-disk index
// format this binary reads, so a rebuild need can be told from a version.
type versionDoc struct {
	version.BuildInfo
	IndexFormat int `json:"index_format"`
}

func newVersionCmd() *cobra.Command {
	var jsonOutput, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit, build date and Go version, and the index
format this binary reads. 'fusesearch doctor' flags an index written in
another format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch {
			case short:
				_, err := fmt.Fprintln(out, version.Short())
				return err
			case jsonOutput:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(versionDoc{BuildInfo: version.GetInfo(), IndexFormat: index.MetaVersion})
			}
			_, err := fmt.Fprintf(out, "%s\nindex format %d\n", version.String(), index.MetaVersion)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")

	return cmd
}
