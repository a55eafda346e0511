package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/invariantlabs-ai/invariant-go/internal/ui"
)

var exploreTraceFile string

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Browse a trace interactively",
	Long: `Explore opens a terminal browser over the events of a trace:
messages, tool calls and tool outputs, with their payloads, addresses
and dataflow relations.`,
	RunE: runExplore,
}

func init() {
	exploreCmd.Flags().StringVarP(&exploreTraceFile, "trace", "t", "", "trace file (JSON)")
	_ = exploreCmd.MarkFlagRequired("trace")
}

func runExplore(cmd *cobra.Command, _ []string) error {
	tr, err := loadTrace(exploreTraceFile)
	if err != nil {
		return err
	}

	program := tea.NewProgram(
		ui.NewExplorer(tr),
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)
	_, err = program.Run()
	return err
}
