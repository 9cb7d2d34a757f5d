package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// statusCmd shows the state of every tier at a glance
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show working state, checkpoints, and recent dispatches",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println(statusTitleStyle.Render("ariadne status"))
	fmt.Println(strings.Repeat("─", 50))

	if !initialized {
		fmt.Println("Not initialized. Run: ariadne init")
		return nil
	}

	a := newApp()
	defer a.Close()

	state := a.ambient.Read()
	if state.IsZero() {
		fmt.Println("Working state: empty")
	} else {
		for _, line := range state.Render() {
			fmt.Println(line)
		}
	}
	fmt.Println()

	ids, err := a.checkpoints.List()
	switch {
	case err != nil:
		fmt.Printf("Checkpoints: unavailable (%v)\n", err)
	case len(ids) == 0:
		fmt.Println("Checkpoints: none")
	default:
		fmt.Printf("Checkpoints: %d, latest %s\n", len(ids), ids[0])
	}

	if a.graph.Enabled() {
		fmt.Println("Knowledge graph: enabled")
	} else {
		fmt.Println("Knowledge graph: disabled")
	}

	if a.journal != nil {
		rows, err := a.journal.RecentDispatches(5)
		if err == nil && len(rows) > 0 {
			fmt.Println()
			fmt.Println("Recent dispatches:")
			for _, d := range rows {
				fmt.Printf("  %s  %-15s %-8s %s\n",
					statusMutedStyle.Render(d.CreatedAt.Local().Format("2006-01-02 15:04")),
					d.EventType, d.Outcome, d.Detail)
			}
		}
	}
	return nil
}
