package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	group := &cobra.Command{
		Use:   "personality",
		Short: "Inspect and adapt a user's personality profile",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the personality profile",
		Run:   runPersonalityShow,
	}

	update := &cobra.Command{
		Use:   "update [patch-json]",
		Short: "Apply a JSON patch to the profile",
		Long:  `Apply a JSON patch such as '{"warmth":0.8}'. The patch can be a positional arg or piped via stdin. Unknown keys are ignored.`,
		Run:   runPersonalityUpdate,
	}
	update.Flags().StringP("reason", "r", "", "Adaptation reason (keeps the previous one when empty)")

	group.AddCommand(show, update)
	RootCmd.AddCommand(group)
}

func runPersonalityShow(cmd *cobra.Command, args []string) {
	user := requireUser()
	e, done := openEngine()
	defer done()
	printResponse(e.GetPersonalityAdaptation(cmd.Context(), user))
}

func runPersonalityUpdate(cmd *cobra.Command, args []string) {
	user := requireUser()
	reason, _ := cmd.Flags().GetString("reason")

	var raw string
	if len(args) > 0 {
		raw = strings.Join(args, " ")
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		raw = string(b)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		exitErr("personality update", fmt.Errorf("patch must be a JSON object: %w", err))
	}

	e, done := openEngine()
	defer done()
	printResponse(e.UpdatePersonalityAdaptation(cmd.Context(), user, patch, reason))
}
