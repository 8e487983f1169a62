package engine

import (
	"github.com/adamavenir/vliz/internal/db"
)

// SyncState is the per-session bookkeeping carried between poll ticks.
type SyncState struct {
	LastProcessedCount   int
	PreviousSupportCount int
	PreviousPublicCount  int
	SentMessages         map[string]struct{}
	MaintenanceProcessed bool
}

// LoadSyncState hydrates the state persisted by earlier sessions. Channel
// counts always start at zero so the first poll never notifies.
func LoadSyncState(store db.Store) (SyncState, error) {
	state := SyncState{SentMessages: map[string]struct{}{}}
	count, err := db.LoadLastMessageCount(store)
	if err != nil {
		return state, err
	}
	sent, err := db.LoadSentMessages(store)
	if err != nil {
		return state, err
	}
	state.LastProcessedCount = count
	state.SentMessages = sent
	return state, nil
}

func (s SyncState) clone() SyncState {
	sent := make(map[string]struct{}, len(s.SentMessages))
	for key := range s.SentMessages {
		sent[key] = struct{}{}
	}
	s.SentMessages = sent
	return s
}

// ShouldNotify decides whether a channel's growth warrants a notification:
// the channel is visible, it grew, it was not empty before (first load), and
// sound is enabled.
func ShouldNotify(active bool, newCount, previousCount int, soundEnabled bool) bool {
	return active && newCount > previousCount && previousCount > 0 && soundEnabled
}
