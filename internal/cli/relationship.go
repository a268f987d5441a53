package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/relationship"
)

func init() {
	group := &cobra.Command{
		Use:   "relationship",
		Short: "Inspect and adjust a user's relationship state",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the relationship state",
		Run:   runRelationshipShow,
	}

	setStatus := &cobra.Command{
		Use:   "set-status <status>",
		Short: "Override the status; always logs a milestone",
		Args:  cobra.ExactArgs(1),
		Run:   runRelationshipSetStatus,
	}
	setStatus.Flags().StringP("reason", "r", "", "Reason recorded in the milestone log")

	record := &cobra.Command{
		Use:   "record",
		Short: "Record one interaction",
		Run:   runRelationshipRecord,
	}
	record.Flags().Float64("length", -1, "Message length hint in characters")
	record.Flags().Float64("response-time", -1, "Response time hint in seconds")
	record.Flags().StringP("kind", "k", "greeting", "Interaction kind")
	record.Flags().StringP("emotion", "e", "joy", "Emotion")
	record.Flags().StringP("intensity", "i", "medium", "Intensity")

	group.AddCommand(show, setStatus, record)
	RootCmd.AddCommand(group)
}

func runRelationshipShow(cmd *cobra.Command, args []string) {
	user := requireUser()
	e, done := openEngine()
	defer done()
	printResponse(e.GetRelationshipState(cmd.Context(), user))
}

func runRelationshipSetStatus(cmd *cobra.Command, args []string) {
	user := requireUser()
	reason, _ := cmd.Flags().GetString("reason")

	e, done := openEngine()
	defer done()
	printResponse(e.UpdateRelationshipStatus(cmd.Context(), user, args[0], reason))
}

func runRelationshipRecord(cmd *cobra.Command, args []string) {
	user := requireUser()
	length, _ := cmd.Flags().GetFloat64("length")
	responseTime, _ := cmd.Flags().GetFloat64("response-time")
	kindStr, _ := cmd.Flags().GetString("kind")
	emotionStr, _ := cmd.Flags().GetString("emotion")
	intensityStr, _ := cmd.Flags().GetString("intensity")

	kind, err := model.ParseKind(kindStr)
	if err != nil {
		exitErr("relationship record", err)
	}
	emotion, err := model.ParseEmotion(emotionStr)
	if err != nil {
		exitErr("relationship record", err)
	}
	intensity, err := model.ParseIntensity(intensityStr)
	if err != nil {
		exitErr("relationship record", err)
	}

	p := relationship.InteractionParams{Event: relationship.Event{Kind: kind, Emotion: emotion, Intensity: intensity}}
	if cmd.Flags().Changed("length") {
		p.MessageLength = &length
	}
	if cmd.Flags().Changed("response-time") {
		p.ResponseTime = &responseTime
	}

	e, done := openEngine()
	defer done()
	printResponse(e.RecordInteraction(cmd.Context(), user, p))
}
