package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every live record held for a user as JSON",
		Long:  "Export memories, relationship, personality and contradictions for one user. Forgotten memories are left out.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	user := requireUser()
	e, done := openEngine()
	defer done()
	printResponse(e.ExportUserData(cmd.Context(), user))
}
