package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory and contradiction counts for a user",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	user := requireUser()
	e, done := openEngine()
	defer done()
	printResponse(e.GetUserStats(cmd.Context(), user))
}
