package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RobBa/alphabet-generator/internal/transform"
)

var streamCmd = &cobra.Command{
	Use:   "stream [flags] <file>",
	Short: "Encode a growing flow file in batches",
	Long: `Watch a flow file that another process is still writing, similar to
'tail -f', and encode its records as they arrive. Records are collected into
batches of BatchSize (from the schema). With FilterByDestination each batch
is split per destination address and every destination gets its own
sequence.

The output starts with "0 0". On SIGINT or SIGTERM the pending partial batch
is written and the command exits cleanly.

Examples:
  alphagen stream -s features.ini /var/log/netflow.txt
  alphagen stream -s features.ini -o live.txt --flush-every 10 flows.txt
  alphagen stream -s features.ini --from-end --follow-rotate /var/log/netflow.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
	return runConversion(cmd, conversion{kind: transform.KindStreaming, follow: true, inputs: args})
}
