package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	workspace string
	provider  string
	timeout   time.Duration
)

// Output styles shared by the commands.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "cortex - cognitive request-routing engine",
	Long: `cortex routes natural-language requests about a codebase through a
chain of cooperating brains: a Conductor plans the retrieval, a
ContextFetcher pulls indexed code context, specialists answer in
parallel lanes, and a Judge merges and scores the result.

The workspace is indexed incrementally: file summaries and code chunks
live in a local sqlite vector store and survive restarts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real env vars win either way.
		_ = godotenv.Load()
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			workspace = wd
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "LLM provider: openai, claude, gemini, ollama, or default")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "per-request deadline")

	rootCmd.AddCommand(askCmd, indexCmd, watchCmd, statsCmd, budgetCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
