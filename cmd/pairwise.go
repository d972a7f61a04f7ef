package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RobBa/alphabet-generator/internal/transform"
)

var pairwiseCmd = &cobra.Command{
	Use:   "pairwise [flags] <file|glob>...",
	Short: "Encode flows per host and peer",
	Long: `Read the whole input, group records by source host and destination
peer, and window every pair on its own so that no window mixes peers.

With FilterByDestination in the schema every host/peer pair becomes its own
block. Otherwise each host gets one block whose symbols are renumbered
densely. When the schema names a SourceAddress only that host is written, to
--output; otherwise every host is written to
"<output>_host_<hash>.txt", where hash is the xxhash64 of the address.

Examples:
  alphagen pairwise -s features.ini -o hosts.txt flows.txt
  alphagen pairwise -s features.ini --window-size 4 --window-stride 2 flows.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPairwise,
}

func init() {
	rootCmd.AddCommand(pairwiseCmd)
}

func runPairwise(cmd *cobra.Command, args []string) error {
	return runConversion(cmd, conversion{kind: transform.KindPairwise, inputs: args})
}
