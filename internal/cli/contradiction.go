package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/affinity/internal/contradiction"
)

func init() {
	group := &cobra.Command{
		Use:   "contradiction",
		Short: "Record and resolve contradicting statements",
	}

	record := &cobra.Command{
		Use:   "record <original> <contradicting>",
		Short: "Record a contradiction",
		Args:  cobra.ExactArgs(2),
		Run:   runContradictionRecord,
	}
	record.Flags().String("type", contradiction.DefaultType, "Contradiction type")
	record.Flags().StringSliceP("memory", "m", nil, "Related memory ids, in order")

	resolve := &cobra.Command{
		Use:   "resolve <id> <resolution>",
		Short: "Resolve a contradiction; resolving again overwrites the text",
		Args:  cobra.ExactArgs(2),
		Run:   runContradictionResolve,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List unresolved contradictions, newest first",
		Run:   runContradictionList,
	}

	group.AddCommand(record, resolve, list)
	RootCmd.AddCommand(group)
}

func runContradictionRecord(cmd *cobra.Command, args []string) {
	user := requireUser()
	typ, _ := cmd.Flags().GetString("type")
	memories, _ := cmd.Flags().GetStringSlice("memory")

	e, done := openEngine()
	defer done()
	printResponse(e.RecordContradiction(cmd.Context(), contradiction.RecordParams{
		UserID:                 user,
		Type:                   typ,
		OriginalStatement:      args[0],
		ContradictingStatement: args[1],
		RelatedMemoryIDs:       memories,
	}))
}

func runContradictionResolve(cmd *cobra.Command, args []string) {
	e, done := openEngine()
	defer done()
	printResponse(e.ResolveContradiction(cmd.Context(), args[0], args[1]))
}

func runContradictionList(cmd *cobra.Command, args []string) {
	user := requireUser()
	e, done := openEngine()
	defer done()
	printResponse(e.GetUnresolvedContradictions(cmd.Context(), user))
}
