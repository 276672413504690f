package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/inkwell-labs/loom/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and maintain the vector store",
}

var storeStatsCmd = &cobra.Command{
	Use:   "stats [project file]",
	Short: "Show record counts for a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreStats,
}

var storeWipeCmd = &cobra.Command{
	Use:   "wipe [project file]",
	Short: "Delete every indexed record for a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreWipe,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeWipeCmd)
}

func runStoreStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#BD93F9"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	project, pipeline, err := setupPipeline(ctx, args[0], 0)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	stats, err := pipeline.Store().Stats(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	fmt.Printf("%s %s\n", labelStyle.Render("Project:"), valueStyle.Render(project.ID))
	fmt.Printf("%s %s\n", labelStyle.Render("Backend:"), valueStyle.Render(stats.Backend))
	fmt.Printf("%s %s\n", labelStyle.Render("Chunks:"), valueStyle.Render(fmt.Sprintf("%d", stats.Chunks)))
	fmt.Printf("%s %s\n", labelStyle.Render("Summaries:"), valueStyle.Render(fmt.Sprintf("%d", stats.Summaries)))
	return nil
}

func runStoreWipe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))

	project, pipeline, err := setupPipeline(ctx, args[0], 0)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	removed, err := pipeline.Store().Delete(ctx, project.ID, store.Everything())
	if err != nil {
		return fmt.Errorf("wipe failed: %w", err)
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Removed %d records for project %s", removed, project.ID)))
	return nil
}
