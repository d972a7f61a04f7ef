package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RobBa/alphabet-generator/internal/transform"
)

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <file|glob>...",
	Short: "Encode flow files into windows of symbols",
	Long: `Encode flow records into fixed, overlapping windows and write one
Abbadingo sequence per window. The output starts with a
"<sequenceCount> <maxSymbol>" header.

Several files and glob patterns are read one after the other as a single
input. With --follow a single file is followed while it grows: the header is
"0 0", sequences are written as they are produced and the command runs until
interrupted.

Examples:
  alphagen convert -s features.ini flows.txt
  alphagen convert -s features.ini -o traces.txt 'capture/*.txt'
  alphagen convert -s features.ini --window-size 3 --on-error skip flows.txt
  alphagen convert -s features.ini --follow --follow-rotate /var/log/netflow.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().Bool("follow", false, "follow a single growing file until interrupted")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	return runConversion(cmd, conversion{kind: transform.KindBatch, follow: follow, inputs: args})
}
