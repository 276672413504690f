package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Loom - Retrieval and context assembly for long-form fiction",
	Long: `Loom indexes written chapters into a vector store and assembles a
token-budgeted generation context for the next chapter.

It retrieves relevant passages and chapter summaries, re-ranks them by
recency against the target chapter, and compresses story state into a
three-tier prompt context that never exceeds the token budget.`,
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
