// ABOUTME: Default agent seeding for new users
// ABOUTME: Creates Eforos and Safine with their tool sets and subscriptions

package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tommyyliu/everlight-agents/internal/store"
)

var commonTools = []string{
	"send_message_tool",
	"create_note",
	"search_notes",
	"get_note_titles",
	"search_raw_entries",
	"get_recent_raw_entries",
	"schedule_message",
}

var safineExtraTools = []string{
	"get_current_time",
	"get_hourly_weather",
	"read_slate",
	"update_slate",
}

// defaultPrompt is the fallback when no prompt override is provided.
func defaultPrompt(name string) string {
	return fmt.Sprintf("You are the agent known as %s.", name)
}

// CreateDefaultAgents creates the default agents for a new user: Eforos
// the information guardian, subscribed to raw data entries, and Safine
// the focus curator, subscribed to her own channel. Prompts may be
// overridden via the prompts map keyed by lower-cased agent name.
func CreateDefaultAgents(ctx context.Context, st store.Store, user *store.User, prompts map[string]string) error {
	logger := slog.Default().With("component", "seed")
	logger.Info("creating default agents", "user", user.Email, "user_id", user.ID)

	prompt := func(name string) string {
		if p, ok := prompts[strings.ToLower(name)]; ok && p != "" {
			return p
		}
		return defaultPrompt(name)
	}

	eforos := &store.Agent{
		UserID: user.ID,
		Name:   "Eforos",
		Prompt: prompt("Eforos"),
		Tools:  append([]string{}, commonTools...),
	}
	if err := st.CreateAgent(ctx, eforos); err != nil {
		return fmt.Errorf("creating Eforos: %w", err)
	}

	safine := &store.Agent{
		UserID: user.ID,
		Name:   "Safine",
		Prompt: prompt("Safine"),
		Tools:  append(append([]string{}, commonTools...), safineExtraTools...),
	}
	if err := st.CreateAgent(ctx, safine); err != nil {
		return fmt.Errorf("creating Safine: %w", err)
	}

	// Eforos watches raw data; Safine listens on her own channel for
	// insights handed over by Eforos.
	if err := st.CreateSubscription(ctx, &store.AgentSubscription{
		AgentID: eforos.ID,
		Channel: "raw_data_entries",
	}); err != nil {
		return fmt.Errorf("subscribing Eforos: %w", err)
	}
	if err := st.CreateSubscription(ctx, &store.AgentSubscription{
		AgentID: safine.ID,
		Channel: "safine",
	}); err != nil {
		return fmt.Errorf("subscribing Safine: %w", err)
	}

	logger.Info("default agents created", "user", user.Email)
	return nil
}
