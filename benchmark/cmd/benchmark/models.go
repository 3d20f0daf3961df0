package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-ml-bench/models"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the registered models",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-12s %-22s %-14s %10s", "ID", "TASK", "INPUT", "PARAMS")))
		for _, id := range models.IDs() {
			net, err := models.NewModel(id, viper.GetString("weights_dir"))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%-12s %-22s %-14s %10d\n", net.ID, net.Task, inputShape(net), net.ParamCount())
		}
		return nil
	},
}

func init() {
	modelsCmd.Flags().String("weights", "", "Directory of pretrained .npy weights")
	rootCmd.AddCommand(modelsCmd)
}

// inputShape renders the batched input shape, e.g. [N,3,32,32].
func inputShape(net *models.Network) string {
	parts := []string{"N"}
	for _, d := range net.Input.Shape {
		parts = append(parts, fmt.Sprint(d))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
