package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
)

// recorder collects published events for assertions.
type recorder struct {
	events []shared.Event
}

func (r *recorder) Publish(event shared.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) ofType(t shared.EventType) []shared.Event {
	var out []shared.Event
	for _, e := range r.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE QUESTS JOB
// ══════════════════════════════════════════════════════════════════════════════

type fakeQuestStore struct {
	overdue   []*gamification.Quest
	expired   []string
	failQuest string
}

func (s *fakeQuestStore) ListOverdueActiveQuests(_ context.Context, _ time.Time, limit int) ([]*gamification.Quest, error) {
	if limit < len(s.overdue) {
		return s.overdue[:limit], nil
	}
	return s.overdue, nil
}

func (s *fakeQuestStore) ExpireQuest(_ context.Context, _ int64, questID string) (*gamification.Quest, error) {
	if questID == s.failQuest {
		return nil, errors.New("boom")
	}
	s.expired = append(s.expired, questID)
	return &gamification.Quest{QuestID: questID, Status: gamification.QuestExpired}, nil
}

func TestExpireQuestsJob_ExpiresOverdue(t *testing.T) {
	store := &fakeQuestStore{
		overdue: []*gamification.Quest{
			{UserID: 1, QuestID: "wind_down_week"},
			{UserID: 2, QuestID: "diary_habit"},
		},
	}
	bus := &recorder{}

	job := NewExpireQuestsJob(store, bus, nil, DefaultExpireQuestsConfig())
	err := job.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"wind_down_week", "diary_habit"}, store.expired)
	assert.Len(t, bus.ofType(shared.EventQuestExpired), 2)
}

func TestExpireQuestsJob_NothingOverdue(t *testing.T) {
	store := &fakeQuestStore{}
	bus := &recorder{}

	job := NewExpireQuestsJob(store, bus, nil, DefaultExpireQuestsConfig())
	err := job.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, bus.events)
}

func TestExpireQuestsJob_ContinuesPastFailures(t *testing.T) {
	store := &fakeQuestStore{
		overdue: []*gamification.Quest{
			{UserID: 1, QuestID: "broken"},
			{UserID: 2, QuestID: "fine"},
		},
		failQuest: "broken",
	}
	bus := &recorder{}

	job := NewExpireQuestsJob(store, bus, nil, DefaultExpireQuestsConfig())
	err := job.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"fine"}, store.expired)
	assert.Len(t, bus.ofType(shared.EventQuestExpired), 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK DECAY JOB
// ══════════════════════════════════════════════════════════════════════════════

type fakeStreakStore struct {
	lapsed   []*gamification.Streak
	settings map[int64]*gamification.Settings

	resets     []gamification.StreakType
	softResets []bool
	unfrozen   []int64
}

func (s *fakeStreakStore) ListLapsedStreaks(_ context.Context, _ time.Time, _ int) ([]*gamification.Streak, error) {
	return s.lapsed, nil
}

func (s *fakeStreakStore) GetSettings(_ context.Context, userID int64) (*gamification.Settings, error) {
	if st, ok := s.settings[userID]; ok {
		return st, nil
	}
	return gamification.DefaultSettings(userID), nil
}

func (s *fakeStreakStore) ResetStreak(_ context.Context, userID int64, streakType gamification.StreakType, soft bool) (*gamification.Streak, error) {
	s.resets = append(s.resets, streakType)
	s.softResets = append(s.softResets, soft)

	count := 0
	if soft {
		for _, st := range s.lapsed {
			if st.UserID == userID && st.Type == streakType {
				count = st.CurrentCount / 2
			}
		}
	}
	return &gamification.Streak{UserID: userID, Type: streakType, CurrentCount: count}, nil
}

func (s *fakeStreakStore) UnfreezeStreak(_ context.Context, userID int64, streakType gamification.StreakType) (*gamification.Streak, error) {
	s.unfrozen = append(s.unfrozen, userID)
	return &gamification.Streak{UserID: userID, Type: streakType}, nil
}

func TestStreakDecayJob_BreaksLapsedStreak(t *testing.T) {
	store := &fakeStreakStore{
		lapsed: []*gamification.Streak{
			{UserID: 1, Type: gamification.StreakDailyLogin, CurrentCount: 10},
		},
		settings: map[int64]*gamification.Settings{
			1: {UserID: 1, CompassionEnabled: false, SoftResetEnabled: false},
		},
	}
	bus := &recorder{}

	job := NewStreakDecayJob(store, bus, nil, 100)
	err := job.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, store.resets, 1)
	assert.False(t, store.softResets[0])

	events := bus.ofType(shared.EventStreakBroken)
	require.Len(t, events, 1)
	payload := events[0].Payload()
	assert.Equal(t, 10, payload["previous_count"])
	assert.Equal(t, 0, payload["new_count"])
	assert.Equal(t, false, payload["soft_reset"])
}

func TestStreakDecayJob_SoftResetWithCompassion(t *testing.T) {
	store := &fakeStreakStore{
		lapsed: []*gamification.Streak{
			{UserID: 7, Type: gamification.StreakSleepLog, CurrentCount: 20},
		},
		settings: map[int64]*gamification.Settings{
			7: {UserID: 7, CompassionEnabled: true, SoftResetEnabled: true, PreservePercentage: 0.5},
		},
	}
	bus := &recorder{}

	job := NewStreakDecayJob(store, bus, nil, 100)
	err := job.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, store.softResets, 1)
	assert.True(t, store.softResets[0])

	events := bus.ofType(shared.EventStreakBroken)
	require.Len(t, events, 1)
	payload := events[0].Payload()
	assert.Equal(t, 20, payload["previous_count"])
	assert.Equal(t, 10, payload["new_count"])
	assert.Equal(t, true, payload["soft_reset"])
}

func TestStreakDecayJob_SkipsActiveFreeze(t *testing.T) {
	until := time.Now().UTC().Add(48 * time.Hour)
	store := &fakeStreakStore{
		lapsed: []*gamification.Streak{
			{UserID: 3, Type: gamification.StreakDailyLogin, CurrentCount: 5, Frozen: true, FrozenUntil: &until},
		},
	}
	bus := &recorder{}

	job := NewStreakDecayJob(store, bus, nil, 100)
	err := job.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, store.resets)
	assert.Empty(t, bus.events)
}

func TestStreakDecayJob_LapsedFreezeDecays(t *testing.T) {
	until := time.Now().UTC().Add(-1 * time.Hour)
	store := &fakeStreakStore{
		lapsed: []*gamification.Streak{
			{UserID: 4, Type: gamification.StreakDailyLogin, CurrentCount: 8, Frozen: true, FrozenUntil: &until},
		},
	}
	bus := &recorder{}

	job := NewStreakDecayJob(store, bus, nil, 100)
	err := job.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{4}, store.unfrozen)
	require.Len(t, store.resets, 1)
	assert.Len(t, bus.ofType(shared.EventStreakBroken), 1)
}
