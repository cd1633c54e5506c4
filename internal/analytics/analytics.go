package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"guild-chatter/internal/storage"
)

// DailyStats summarises the answered prompts of one day.
type DailyStats struct {
	Date           string                `json:"date"`
	TotalReplies   int                   `json:"total_replies"`
	UniqueUsers    int                   `json:"unique_users"`
	TotalTokens    int                   `json:"total_tokens"`
	RepliesByGuild map[string]int        `json:"replies_by_guild"`
	ProviderStats  map[string]UsageStats `json:"provider_stats"`
	RepliesByModel map[string]int        `json:"replies_by_model"`
}

// UsageStats aggregates replies for one provider.
type UsageStats struct {
	Replies int `json:"replies"`
	Tokens  int `json:"tokens"`
}

// AnalyzeDailyLogs aggregates events whose timestamp falls on targetDate in
// targetDate's location.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:           startOfDay.Format("2006-01-02"),
		RepliesByGuild: make(map[string]int),
		ProviderStats:  make(map[string]UsageStats),
		RepliesByModel: make(map[string]int),
	}
	users := make(map[string]struct{})

	for _, ev := range events {
		if ev.Timestamp.Before(startOfDay) || !ev.Timestamp.Before(endOfDay) {
			continue
		}
		if ev.AssistantResponse == "" {
			continue
		}
		stats.TotalReplies++
		stats.TotalTokens += ev.TotalTokens
		users[ev.UserID] = struct{}{}
		stats.RepliesByGuild[ev.GuildID]++
		stats.RepliesByModel[ev.Model]++

		p := stats.ProviderStats[ev.Provider]
		p.Replies++
		p.Tokens += ev.TotalTokens
		stats.ProviderStats[ev.Provider] = p
	}

	stats.UniqueUsers = len(users)
	return stats
}

// Summary renders the stats as a short plain-text report.
func (ds *DailyStats) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage for %s: %d replies to %d users in %d guilds, %d tokens\n",
		ds.Date, ds.TotalReplies, ds.UniqueUsers, len(ds.RepliesByGuild), ds.TotalTokens)

	for _, name := range sortedKeys(ds.ProviderStats) {
		p := ds.ProviderStats[name]
		fmt.Fprintf(&sb, "- %s: %d replies, %d tokens\n", name, p.Replies, p.Tokens)
	}
	for _, model := range sortedKeys(ds.RepliesByModel) {
		fmt.Fprintf(&sb, "- model %s: %d replies\n", model, ds.RepliesByModel[model])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
