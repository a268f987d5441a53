package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "enhance <action> <base-json>",
		Short: "Run the interaction enhancer on a base result",
		Long:  `Run the enhancer, e.g. enhance reaction '{"message":"Gracias"}'. The interaction is recorded. Output is always a superset of the base result.`,
		Args:  cobra.ExactArgs(2),
		Run:   runEnhance,
	}
	cmd.Flags().String("hints", "", `JSON object of hints, e.g. '{"message_length":42}'`)

	RootCmd.AddCommand(cmd)
}

func runEnhance(cmd *cobra.Command, args []string) {
	user := requireUser()
	hintsStr, _ := cmd.Flags().GetString("hints")

	var base, hints map[string]interface{}
	if err := json.Unmarshal([]byte(args[1]), &base); err != nil {
		exitErr("enhance", fmt.Errorf("base must be a JSON object: %w", err))
	}
	if hintsStr != "" {
		if err := json.Unmarshal([]byte(hintsStr), &hints); err != nil {
			exitErr("enhance", fmt.Errorf("--hints: %w", err))
		}
	}

	e, done := openEngine()
	defer done()
	printJSON(e.EnhanceInteraction(cmd.Context(), user, args[0], base, hints))
}
