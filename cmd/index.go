package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/inkwell-labs/loom/internal/orchestrator"
)

var (
	forceReindex bool
	batchSize    int
)

var indexCmd = &cobra.Command{
	Use:   "index [project file]",
	Short: "Index written chapters into the vector store",
	Long: `Embed and index the project's written chapters: chapter text split
into passage chunks plus one summary record per chapter. Unchanged records
are skipped, so indexing after writing one chapter only embeds that chapter.

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for embeddings

Examples:
  loom index project.json
  loom index project.json --force`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&forceReindex, "force", false, "Re-embed chapters whose content is unchanged")
	indexCmd.Flags().IntVar(&batchSize, "batch-size", 10, "Texts embedded per API call")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	warningStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))

	project, pipeline, err := setupPipeline(ctx, args[0], 0)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	report, err := pipeline.IndexChapters(ctx, project, orchestrator.IndexOptions{
		BatchSize:    batchSize,
		ForceReindex: forceReindex,
	})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Indexed %d chapters: %d inserted, %d replaced",
		len(project.Chapters), report.Inserted, report.Replaced)))
	if report.Failed > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf("! %d records failed and were skipped", report.Failed)))
	}
	return nil
}
