package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/affinity/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Assemble a user's memories for a reply prompt",
		Long:  "Score memories by recency, importance and recall frequency, then greedily pack them into a token budget.",
		Run:   runContext,
	}

	cmd.Flags().IntP("budget", "b", 1000, "Max tokens in output")
	cmd.Flags().Bool("sensitive", false, "Include memories marked sensitive")

	memoryCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	user := requireUser()
	budget, _ := cmd.Flags().GetInt("budget")
	sensitive, _ := cmd.Flags().GetBool("sensitive")

	e, done := openEngine()
	defer done()

	printResponse(e.GetMemoryContext(cmd.Context(), memory.ContextParams{
		UserID:           user,
		Budget:           budget,
		IncludeSensitive: sensitive,
	}))
}
