package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cortex/internal/core"
	"cortex/internal/system"
)

var (
	askUser         string
	askConversation string
)

// askCmd runs one question through the brain chain
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the workspace",
	Long: `Indexes the workspace if needed, then routes the question through the
brain chain and prints the merged answer.

Examples:
  cortex ask "how does CacheManager evict entries"
  cortex ask --provider claude "why does UserService throw on startup"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "", "user id for quotas and memory")
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "conversation id (default: per-minute session)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	sys, err := system.Boot(ctx, workspace)
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := sys.EnsureIndexed(ctx); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	resp, err := sys.Scheduler.Handle(ctx, core.Request{
		Provider:       provider,
		Message:        strings.Join(args, " "),
		UserID:         askUser,
		ConversationID: askConversation,
	})
	if err != nil {
		return err
	}

	if resp.Text != "" {
		fmt.Println(resp.Text)
	} else {
		fmt.Println(labelStyle.Render("(no answer produced)"))
	}
	fmt.Println()

	footer := fmt.Sprintf("provider=%s quality=%.2f tokens=%d elapsed=%dms",
		resp.Provider, resp.Quality, resp.TokensUsed, resp.ElapsedMs)
	if len(resp.ToolsUsed) > 0 {
		footer += " tools=" + strings.Join(resp.ToolsUsed, ",")
	}
	if resp.Partial {
		footer += " [partial: " + resp.PartialReason + "]"
	}
	fmt.Println(labelStyle.Render(footer))
	return nil
}
