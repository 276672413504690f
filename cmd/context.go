package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/inkwell-labs/loom/internal/config"
	"github.com/inkwell-labs/loom/internal/logging"
	"github.com/inkwell-labs/loom/internal/orchestrator"
	"github.com/inkwell-labs/loom/internal/story"
)

var (
	chapterFlag int
	maxTokens   int
	jsonOutput  bool
	verbose     bool
)

var contextCmd = &cobra.Command{
	Use:   "context [project file]",
	Short: "Build the generation context for the next chapter",
	Long: `Build a token-budgeted generation context from a project file.

This command:
1. Derives a multi-query retrieval set from the chapter task
2. Retrieves relevant passages and summaries from the vector store
3. Re-ranks them by recency against the target chapter
4. Assembles and compresses story state under the token budget

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for query embeddings (optional;
                       without it the context is built from story state only)

Examples:
  loom context project.json
  loom context project.json --chapter 12 --max-tokens 3000
  loom context project.json --json > context.json`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.Flags().IntVar(&chapterFlag, "chapter", 0, "Target chapter (default: the project's task chapter)")
	contextCmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Token budget for the context (default: configured value)")
	contextCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the full result as JSON")
	contextCmd.Flags().BoolVar(&verbose, "verbose", false, "Show retrieval details")
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Styling
	var (
		headerColor  = lipgloss.Color("#F780FF") // Bright pink
		bodyColor    = lipgloss.Color("#E9E9F4") // Light purple/white
		detailColor  = lipgloss.Color("#6272A4") // Muted purple
		warningColor = lipgloss.Color("#FFB86C") // Orange
	)

	headerStyle := lipgloss.NewStyle().
		Foreground(headerColor).
		Bold(true)

	bodyStyle := lipgloss.NewStyle().
		Foreground(bodyColor)

	detailStyle := lipgloss.NewStyle().
		Foreground(detailColor).
		Italic(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(warningColor)

	project, pipeline, err := setupPipeline(ctx, args[0], maxTokens)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	task, err := resolveTask(project, chapterFlag)
	if err != nil {
		return err
	}

	result, err := pipeline.BuildChapterContext(ctx, project, task)
	if err != nil {
		return fmt.Errorf("context build failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Retrieval.Reason != "" {
		fmt.Println(warningStyle.Render("! " + result.Retrieval.Reason))
	}
	if verbose {
		fmt.Println(detailStyle.Render(fmt.Sprintf("→ %d queries, %d passages, %d summaries, ~%d tokens",
			len(result.Query.AllQueries()),
			len(result.Retrieval.Chunks),
			len(result.Retrieval.Summaries),
			result.Tokens)))
	}

	fmt.Println()
	fmt.Println(headerStyle.Render(fmt.Sprintf("Context for chapter %d:", task.Chapter)))
	fmt.Println()
	fmt.Println(bodyStyle.Render(result.Text))
	fmt.Println()

	return nil
}

// setupPipeline loads the project file, the configuration and the wired
// pipeline shared by every subcommand. A positive maxContextTokens overrides
// the configured token budget.
func setupPipeline(ctx context.Context, projectPath string, maxContextTokens int) (*story.Project, *orchestrator.Pipeline, error) {
	project, err := story.LoadProject(projectPath)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if maxContextTokens > 0 {
		cfg.Context.MaxContextTokens = maxContextTokens
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return nil, nil, err
	}

	pipeline, err := orchestrator.NewPipeline(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return project, pipeline, nil
}

// resolveTask returns the writing task for the requested chapter, falling
// back to the task recorded in the project file.
func resolveTask(project *story.Project, chapter int) (story.WritingTask, error) {
	if chapter > 0 {
		if project.Task != nil && project.Task.Chapter == chapter {
			return *project.Task, nil
		}
		return story.WritingTask{Chapter: chapter}, nil
	}
	if project.Task == nil {
		return story.WritingTask{}, story.ErrMissingTask
	}
	return *project.Task, nil
}
