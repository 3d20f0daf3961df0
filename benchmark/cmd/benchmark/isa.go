package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-ml-bench/inference/isa"
)

var isaCmd = &cobra.Command{
	Use:   "isa",
	Short: "Print the dispatch ceiling, the host tier and the effective tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		effective := isa.Effective()
		fmt.Fprintf(w, "%s=%q\n", isa.EnvVar, os.Getenv(isa.EnvVar))
		fmt.Fprintf(w, "ceiling:   %s\n", isa.Ceiling())
		fmt.Fprintf(w, "detected:  %s\n", isa.Detect())
		fmt.Fprintf(w, "effective: %s\n", effective)
		fmt.Fprintf(w, "native bf16: %t  native int8 (vnni): %t  amx: %t\n",
			effective.SupportsBF16(), effective.SupportsVNNI(), effective.SupportsAMX())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(isaCmd)
}
