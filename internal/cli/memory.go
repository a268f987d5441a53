package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/affinity/internal/memory"
	"github.com/rcliao/affinity/internal/model"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Store, recall and forget emotional memories",
}

func init() {
	store := &cobra.Command{
		Use:   "store [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin. Storing counts as an interaction.",
		Run:   runMemoryStore,
	}
	store.Flags().StringP("kind", "k", "storytelling", "Interaction kind, e.g. greeting, personal-share, conflict")
	store.Flags().StringP("emotion", "e", "neutral", "Primary emotion")
	store.Flags().String("secondary", "", "Secondary emotion")
	store.Flags().StringP("intensity", "i", "medium", "Intensity: 1-5 or very-low..very-high")
	store.Flags().StringP("summary", "s", "", "One-line summary (required)")
	store.Flags().Float64("importance", model.DefaultImportance, "Importance (>= 0)")
	store.Flags().Float64("decay", model.DefaultDecayRate, "Decay rate in [0,1]")
	store.Flags().StringP("tags", "t", "", "Comma-separated tags")
	store.Flags().Bool("sensitive", false, "Mark the memory as sensitive")
	store.Flags().String("parent", "", "Parent memory id")
	store.Flags().String("context", "", "JSON object with extra context")
	store.MarkFlagRequired("summary")

	recent := &cobra.Command{
		Use:   "recent",
		Short: "List the newest memories",
		Run:   runMemoryRecent,
	}

	emotion := &cobra.Command{
		Use:   "emotion <emotion>",
		Short: "List memories by primary emotion",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryEmotion,
	}

	important := &cobra.Command{
		Use:   "important",
		Short: "List memories at or above an importance floor",
		Run:   runMemoryImportant,
	}
	important.Flags().Float64("min", 0.5, "Minimum importance")

	tags := &cobra.Command{
		Use:   "tags <tag>...",
		Short: "List memories by tag, in tag order",
		Args:  cobra.MinimumNArgs(1),
		Run:   runMemoryTags,
	}

	forget := &cobra.Command{
		Use:   "forget <memory-id>",
		Short: "Forget one memory",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryForget,
	}

	forgetAll := &cobra.Command{
		Use:   "forget-all",
		Short: "Forget every memory of a user",
		Run:   runMemoryForgetAll,
	}

	for _, c := range []*cobra.Command{recent, emotion, important, tags} {
		c.Flags().IntP("limit", "l", memory.DefaultLimit, "Max results")
	}
	memoryCmd.AddCommand(store, recent, emotion, important, tags, forget, forgetAll)
	RootCmd.AddCommand(memoryCmd)
}

func runMemoryStore(cmd *cobra.Command, args []string) {
	user := requireUser()
	kindStr, _ := cmd.Flags().GetString("kind")
	emotionStr, _ := cmd.Flags().GetString("emotion")
	secondaryStr, _ := cmd.Flags().GetString("secondary")
	intensityStr, _ := cmd.Flags().GetString("intensity")
	summary, _ := cmd.Flags().GetString("summary")
	importance, _ := cmd.Flags().GetFloat64("importance")
	decay, _ := cmd.Flags().GetFloat64("decay")
	tagsStr, _ := cmd.Flags().GetString("tags")
	sensitive, _ := cmd.Flags().GetBool("sensitive")
	parent, _ := cmd.Flags().GetString("parent")
	contextStr, _ := cmd.Flags().GetString("context")

	// Get content: positional arg first, then check stdin
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}

	kind, err := model.ParseKind(kindStr)
	if err != nil {
		exitErr("memory store", err)
	}
	emotion, err := model.ParseEmotion(emotionStr)
	if err != nil {
		exitErr("memory store", err)
	}
	var secondary model.Emotion
	if secondaryStr != "" {
		if secondary, err = model.ParseEmotion(secondaryStr); err != nil {
			exitErr("memory store", err)
		}
	}
	intensity, err := model.ParseIntensity(intensityStr)
	if err != nil {
		exitErr("memory store", err)
	}
	var extra map[string]interface{}
	if contextStr != "" {
		if err := json.Unmarshal([]byte(contextStr), &extra); err != nil {
			exitErr("memory store", fmt.Errorf("--context: %w", err))
		}
	}

	e, done := openEngine()
	defer done()

	printResponse(e.StoreMemory(cmd.Context(), memory.StoreParams{
		UserID:           user,
		Kind:             kind,
		Summary:          summary,
		Content:          strings.TrimSpace(content),
		PrimaryEmotion:   emotion,
		SecondaryEmotion: secondary,
		Intensity:        intensity,
		Context:          extra,
		Importance:       &importance,
		DecayRate:        &decay,
		Tags:             splitTags(tagsStr),
		Sensitive:        sensitive,
		ParentID:         parent,
	}))
}

func runMemoryRecent(cmd *cobra.Command, args []string) {
	user := requireUser()
	limit, _ := cmd.Flags().GetInt("limit")

	e, done := openEngine()
	defer done()
	printResponse(e.GetRecentMemories(cmd.Context(), user, limit))
}

func runMemoryEmotion(cmd *cobra.Command, args []string) {
	user := requireUser()
	limit, _ := cmd.Flags().GetInt("limit")

	e, done := openEngine()
	defer done()
	printResponse(e.GetMemoriesByEmotion(cmd.Context(), user, args[0], limit))
}

func runMemoryImportant(cmd *cobra.Command, args []string) {
	user := requireUser()
	limit, _ := cmd.Flags().GetInt("limit")
	floor, _ := cmd.Flags().GetFloat64("min")

	e, done := openEngine()
	defer done()
	printResponse(e.GetImportantMemories(cmd.Context(), user, floor, limit))
}

func runMemoryTags(cmd *cobra.Command, args []string) {
	user := requireUser()
	limit, _ := cmd.Flags().GetInt("limit")

	e, done := openEngine()
	defer done()
	printResponse(e.GetMemoriesByTags(cmd.Context(), user, splitTags(strings.Join(args, ",")), limit))
}

func runMemoryForget(cmd *cobra.Command, args []string) {
	e, done := openEngine()
	defer done()
	printResponse(e.ForgetMemory(cmd.Context(), args[0]))
}

func runMemoryForgetAll(cmd *cobra.Command, args []string) {
	user := requireUser()

	e, done := openEngine()
	defer done()
	printResponse(e.ForgetAllUserMemories(cmd.Context(), user))
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
