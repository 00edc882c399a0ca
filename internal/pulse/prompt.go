package pulse

import (
	"fmt"
	"strings"
	"time"

	"github.com/Enntity/pulse/internal/models"
)

// PromptInput carries everything the wake prompt is assembled from.
type PromptInput struct {
	Entity        *models.Entity
	WakeType      models.WakeType
	ChainDepth    int
	MaxChainDepth int

	// TaskContext is the effective carried note, already resolved by
	// priority (explicit, then persisted, then crash-recovered).
	TaskContext string

	// LastWakeAt is when the entity last settled a wake; nil if never.
	LastWakeAt *time.Time

	// Compass is the entity's longer-term narrative summary, if any.
	Compass string

	// Recovered marks that the task context was salvaged from a crashed
	// predecessor and the agent should be told so.
	Recovered bool

	// Now defaults to time.Now when zero.
	Now time.Time
}

// BuildWakePrompt assembles the natural-language prompt for one wake attempt.
// Deterministic given its inputs; every optional section may be absent and
// the prompt degrades to header, elapsed time and footer.
func BuildWakePrompt(input PromptInput) string {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder

	if input.WakeType == models.WakeTypeContinue {
		fmt.Fprintf(&b, "You are waking again, continuing your previous train of thought. This is cycle %d of up to %d in this chain.\n",
			input.ChainDepth+1, input.MaxChainDepth)
	} else {
		fmt.Fprintf(&b, "You are waking on your own. It is %s.\n", now.Format("3:04 PM, Jan 2"))
	}

	fmt.Fprintf(&b, "Time since your last wake: %s.\n", elapsedPhrase(input.LastWakeAt, now))

	if input.Recovered {
		b.WriteString("\nYour previous wake was interrupted before it could finish. The note below was recovered from it; pick up where you left off if it still matters.\n")
	}

	if input.Entity != nil && input.Entity.WorkspaceURL != "" {
		fmt.Fprintf(&b, "\nYour workspace: %s\n", input.Entity.WorkspaceURL)
	}

	if input.Compass != "" {
		fmt.Fprintf(&b, "\nInternal Compass:\n%s\n", input.Compass)
	}

	if input.TaskContext != "" {
		fmt.Fprintf(&b, "\nYou left yourself a note: %s\n", input.TaskContext)
	}

	b.WriteString("\nThis time is yours. Reflect, explore, or act on whatever feels most alive. When you are done, end your wake by calling the rest tool so your pulse can settle cleanly.")

	return b.String()
}

// elapsedPhrase renders the gap since the last wake as a human phrase.
func elapsedPhrase(last *time.Time, now time.Time) string {
	if last == nil || last.IsZero() {
		return "unknown"
	}

	elapsed := now.Sub(*last)
	if elapsed < 0 {
		elapsed = 0
	}

	minutes := int(elapsed.Minutes())
	switch {
	case minutes < 1:
		return "less than a minute"
	case minutes == 1:
		return "1 minute"
	case minutes < 60:
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours := minutes / 60
	remainder := minutes % 60
	hourWord := "hours"
	if hours == 1 {
		hourWord = "hour"
	}
	if remainder == 0 {
		return fmt.Sprintf("%d %s", hours, hourWord)
	}
	minuteWord := "minutes"
	if remainder == 1 {
		minuteWord = "minute"
	}
	return fmt.Sprintf("%d %s and %d %s", hours, hourWord, remainder, minuteWord)
}
