package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/rules"
	"github.com/noctua-health/noctua/internal/domain/shared"
)

// ──────────────────────────────────────────────────────────────────────────────
// Test doubles
// ──────────────────────────────────────────────────────────────────────────────

// recorder captures published events in order.
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

// fakeCache is an in-memory ProfileCacheStore.
type fakeCache struct {
	entries     map[int64][]byte
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[int64][]byte)}
}

func (c *fakeCache) Get(_ context.Context, userID int64, dest interface{}) error {
	raw, ok := c.entries[userID]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(_ context.Context, userID int64, view interface{}) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return err
	}
	c.entries[userID] = raw
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID int64) error {
	delete(c.entries, userID)
	c.invalidated++
	return nil
}

// fakeRepo is an in-memory gamification.Repository with per-operation
// failure injection.
type fakeRepo struct {
	states       map[int64]*gamification.State
	ledger       []*gamification.XPTransaction
	streaks      map[string]*gamification.Streak
	quests       map[string]*gamification.Quest
	achievements map[string]*gamification.Achievement
	inventory    map[string]*gamification.InventoryItem
	equipped     map[int64]*gamification.EquippedItems
	settings     map[int64]*gamification.Settings
	sessions     map[int64]*gamification.Session

	failures map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		states:       make(map[int64]*gamification.State),
		streaks:      make(map[string]*gamification.Streak),
		quests:       make(map[string]*gamification.Quest),
		achievements: make(map[string]*gamification.Achievement),
		inventory:    make(map[string]*gamification.InventoryItem),
		equipped:     make(map[int64]*gamification.EquippedItems),
		settings:     make(map[int64]*gamification.Settings),
		sessions:     make(map[int64]*gamification.Session),
		failures:     make(map[string]error),
	}
}

func (f *fakeRepo) failOn(op string, err error) { f.failures[op] = err }

func (f *fakeRepo) fail(op string) error { return f.failures[op] }

func streakKey(userID int64, t gamification.StreakType) string {
	return fmt.Sprintf("%d:%s", userID, t)
}

func key(userID int64, id string) string { return fmt.Sprintf("%d:%s", userID, id) }

func (f *fakeRepo) ensureState(userID int64) *gamification.State {
	if s, ok := f.states[userID]; ok {
		return s
	}
	s := gamification.NewState(userID)
	f.states[userID] = s
	return s
}

func (f *fakeRepo) GetState(_ context.Context, userID int64) (*gamification.State, error) {
	if err := f.fail("GetState"); err != nil {
		return nil, err
	}
	s, ok := f.states[userID]
	if !ok || s.DeletedAt != nil {
		return nil, shared.ErrStateNotFound
	}
	return s, nil
}

func (f *fakeRepo) SaveState(_ context.Context, state *gamification.State) error {
	f.states[state.UserID] = state
	return nil
}

func (f *fakeRepo) addXP(userID int64, amount gamification.XP, source gamification.XPSource, metadata map[string]interface{}) *gamification.XPResult {
	s := f.ensureState(userID)
	prev := s.CurrentLevel
	s.TotalXP += amount
	s.CurrentLevel = rules.LevelForXP(s.TotalXP)
	s.EngagementLevel = rules.EngagementFor(s.CurrentLevel)
	tx := &gamification.XPTransaction{
		ID:         fmt.Sprintf("tx-%d", len(f.ledger)+1),
		UserID:     userID,
		Amount:     amount,
		Source:     source,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}
	f.ledger = append(f.ledger, tx)
	return &gamification.XPResult{
		NewTotalXP:    s.TotalXP,
		PreviousLevel: prev,
		NewLevel:      s.CurrentLevel,
		LeveledUp:     s.CurrentLevel > prev,
		Transaction:   tx,
	}
}

func (f *fakeRepo) AddXP(_ context.Context, userID int64, amount gamification.XP, source gamification.XPSource, metadata map[string]interface{}) (*gamification.XPResult, error) {
	if err := f.fail("AddXP"); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, shared.ErrNonPositiveXP
	}
	return f.addXP(userID, amount, source, metadata), nil
}

func (f *fakeRepo) GetXPTransactions(_ context.Context, userID int64, _ int) ([]*gamification.XPTransaction, error) {
	var out []*gamification.XPTransaction
	for _, tx := range f.ledger {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAchievement(_ context.Context, userID int64, id string) (*gamification.Achievement, error) {
	a, ok := f.achievements[key(userID, id)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) GetAchievements(_ context.Context, userID int64) ([]*gamification.Achievement, error) {
	if err := f.fail("GetAchievements"); err != nil {
		return nil, err
	}
	var out []*gamification.Achievement
	for _, a := range f.achievements {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) unlock(userID int64, id string) *gamification.Achievement {
	k := key(userID, id)
	if a, ok := f.achievements[k]; ok && a.UnlockedAt != nil {
		return a
	}
	now := time.Now().UTC()
	a := &gamification.Achievement{UserID: userID, AchievementID: id, Progress: 100, UnlockedAt: &now}
	f.achievements[k] = a
	return a
}

func (f *fakeRepo) UnlockAchievement(_ context.Context, userID int64, id string) (*gamification.Achievement, error) {
	if err := f.fail("UnlockAchievement"); err != nil {
		return nil, err
	}
	return f.unlock(userID, id), nil
}

func (f *fakeRepo) UpdateAchievementProgress(_ context.Context, userID int64, id string, progress int) (*gamification.Achievement, error) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	k := key(userID, id)
	a, ok := f.achievements[k]
	if !ok {
		a = &gamification.Achievement{UserID: userID, AchievementID: id}
		f.achievements[k] = a
	}
	a.Progress = progress
	// An unlock already on the row is never cleared, matching the store's
	// COALESCE on unlocked_at.
	if progress >= 100 && a.UnlockedAt == nil {
		now := time.Now().UTC()
		a.UnlockedAt = &now
	}
	return a, nil
}

func (f *fakeRepo) MarkAchievementNotified(_ context.Context, userID int64, id string) error {
	if a, ok := f.achievements[key(userID, id)]; ok {
		a.Notified = true
	}
	return nil
}

func (f *fakeRepo) GetUnnotifiedAchievements(_ context.Context, userID int64) ([]*gamification.Achievement, error) {
	var out []*gamification.Achievement
	for _, a := range f.achievements {
		if a.UserID == userID && a.UnlockedAt != nil && !a.Notified {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetStreak(_ context.Context, userID int64, t gamification.StreakType) (*gamification.Streak, error) {
	if s, ok := f.streaks[streakKey(userID, t)]; ok {
		return s, nil
	}
	return gamification.NewStreak(userID, t), nil
}

func (f *fakeRepo) GetStreaks(_ context.Context, userID int64) ([]*gamification.Streak, error) {
	if err := f.fail("GetStreaks"); err != nil {
		return nil, err
	}
	var out []*gamification.Streak
	for _, s := range f.streaks {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) IncrementStreak(_ context.Context, userID int64, t gamification.StreakType, activeDate time.Time) (*gamification.Streak, error) {
	if err := f.fail("IncrementStreak"); err != nil {
		return nil, err
	}
	k := streakKey(userID, t)
	s, ok := f.streaks[k]
	if !ok {
		s = gamification.NewStreak(userID, t)
		f.streaks[k] = s
	}
	rules.Increment(s)
	day := activeDate.UTC().Truncate(24 * time.Hour)
	s.LastActiveDate = &day
	return s, nil
}

func (f *fakeRepo) ResetStreak(_ context.Context, userID int64, t gamification.StreakType, soft bool) (*gamification.Streak, error) {
	s, ok := f.streaks[streakKey(userID, t)]
	if !ok {
		return gamification.NewStreak(userID, t), nil
	}
	preserve := 0.5
	if cfg, ok := f.settings[userID]; ok {
		preserve = cfg.PreservePercentage
	}
	rules.Reset(s, soft, preserve)
	return s, nil
}

func (f *fakeRepo) FreezeStreak(_ context.Context, userID int64, t gamification.StreakType, until time.Time) (*gamification.Streak, error) {
	s, _ := f.GetStreak(context.Background(), userID, t)
	s.Frozen = true
	s.FrozenUntil = &until
	f.streaks[streakKey(userID, t)] = s
	return s, nil
}

func (f *fakeRepo) UnfreezeStreak(_ context.Context, userID int64, t gamification.StreakType) (*gamification.Streak, error) {
	s, _ := f.GetStreak(context.Background(), userID, t)
	s.Frozen = false
	s.FrozenUntil = nil
	f.streaks[streakKey(userID, t)] = s
	return s, nil
}

func (f *fakeRepo) StartQuest(_ context.Context, userID int64, questID string, targetValue int) (*gamification.Quest, error) {
	if err := f.fail("StartQuest"); err != nil {
		return nil, err
	}
	k := key(userID, questID)
	if _, ok := f.quests[k]; ok {
		return nil, shared.ErrQuestAlreadyStarted
	}
	active := 0
	for _, q := range f.quests {
		if q.UserID == userID && q.Status == gamification.QuestActive {
			active++
		}
	}
	if active >= gamification.MaxActiveQuests {
		return nil, shared.ErrQuestCapacity
	}
	q := &gamification.Quest{
		UserID:    userID,
		QuestID:   questID,
		Status:    gamification.QuestActive,
		StartedAt: time.Now().UTC(),
		Progress:  gamification.QuestProgress{TargetValue: targetValue},
	}
	f.quests[k] = q
	return q, nil
}

func (f *fakeRepo) UpdateQuestProgress(_ context.Context, userID int64, questID string, progress gamification.QuestProgress) (*gamification.Quest, error) {
	q, ok := f.quests[key(userID, questID)]
	if !ok {
		return nil, shared.ErrQuestNotFound
	}
	q.Progress = progress
	return q, nil
}

func (f *fakeRepo) CompleteQuest(_ context.Context, userID int64, questID string) (*gamification.Quest, error) {
	q, ok := f.quests[key(userID, questID)]
	if !ok {
		return nil, shared.ErrQuestNotFound
	}
	if !q.Terminal() {
		now := time.Now().UTC()
		q.Status = gamification.QuestCompleted
		q.CompletedAt = &now
	}
	return q, nil
}

func (f *fakeRepo) ExpireQuest(_ context.Context, userID int64, questID string) (*gamification.Quest, error) {
	q, ok := f.quests[key(userID, questID)]
	if !ok {
		return nil, shared.ErrQuestNotFound
	}
	if !q.Terminal() {
		q.Status = gamification.QuestExpired
	}
	return q, nil
}

func (f *fakeRepo) GetQuest(_ context.Context, userID int64, questID string) (*gamification.Quest, error) {
	q, ok := f.quests[key(userID, questID)]
	if !ok {
		return nil, shared.ErrQuestNotFound
	}
	return q, nil
}

func (f *fakeRepo) GetActiveQuests(_ context.Context, userID int64) ([]*gamification.Quest, error) {
	var out []*gamification.Quest
	for _, q := range f.quests {
		if q.UserID == userID && q.Status == gamification.QuestActive {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetCompletedQuestCount(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, q := range f.quests {
		if q.UserID == userID && q.Status == gamification.QuestCompleted {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) AddInventoryItem(_ context.Context, userID int64, rewardID string, quantity int) (*gamification.InventoryItem, error) {
	k := key(userID, rewardID)
	item, ok := f.inventory[k]
	if !ok {
		item = &gamification.InventoryItem{UserID: userID, RewardID: rewardID}
		f.inventory[k] = item
	}
	item.Quantity += quantity
	return item, nil
}

func (f *fakeRepo) ConsumeInventoryItem(_ context.Context, userID int64, rewardID string, quantity int) error {
	k := key(userID, rewardID)
	item, ok := f.inventory[k]
	if !ok || item.Quantity < quantity {
		return shared.ErrInvalidQuantity
	}
	item.Quantity -= quantity
	if item.Quantity == 0 {
		delete(f.inventory, k)
	}
	return nil
}

func (f *fakeRepo) GetInventory(_ context.Context, userID int64) ([]*gamification.InventoryItem, error) {
	var out []*gamification.InventoryItem
	for _, item := range f.inventory {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetEquippedItems(_ context.Context, userID int64) (*gamification.EquippedItems, error) {
	if err := f.fail("GetEquippedItems"); err != nil {
		return nil, err
	}
	if eq, ok := f.equipped[userID]; ok {
		return eq, nil
	}
	return &gamification.EquippedItems{UserID: userID}, nil
}

func (f *fakeRepo) EquipBadge(_ context.Context, userID int64, badgeID string) (*gamification.EquippedItems, error) {
	a, ok := f.achievements[key(userID, badgeID)]
	if !ok || a.UnlockedAt == nil {
		return nil, shared.ErrItemNotOwned
	}
	eq, _ := f.GetEquippedItems(context.Background(), userID)
	eq.EquippedBadge = &badgeID
	f.equipped[userID] = eq
	return eq, nil
}

func (f *fakeRepo) EquipTitle(_ context.Context, userID int64, titleID string) (*gamification.EquippedItems, error) {
	if _, ok := f.inventory[key(userID, titleID)]; !ok {
		return nil, shared.ErrItemNotOwned
	}
	eq, _ := f.GetEquippedItems(context.Background(), userID)
	eq.EquippedTitle = &titleID
	f.equipped[userID] = eq
	return eq, nil
}

func (f *fakeRepo) GetSettings(_ context.Context, userID int64) (*gamification.Settings, error) {
	if s, ok := f.settings[userID]; ok {
		return s, nil
	}
	return gamification.DefaultSettings(userID), nil
}

func (f *fakeRepo) SaveSettings(_ context.Context, settings *gamification.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	f.settings[settings.UserID] = settings
	return nil
}

func (f *fakeRepo) StartSession(_ context.Context, userID int64, startedAt time.Time) (*gamification.Session, error) {
	if s, ok := f.sessions[userID]; ok && s.Open() {
		return nil, shared.ErrSessionAlreadyOpen
	}
	s := &gamification.Session{ID: fmt.Sprintf("s-%d", userID), UserID: userID, SessionStart: startedAt}
	f.sessions[userID] = s
	return s, nil
}

func (f *fakeRepo) EndSession(_ context.Context, userID int64, endedAt time.Time) (*gamification.Session, error) {
	s, ok := f.sessions[userID]
	if !ok || !s.Open() {
		return nil, shared.ErrNoOpenSession
	}
	s.SessionEnd = &endedAt
	return s, nil
}

func (f *fakeRepo) RecordBreak(_ context.Context, userID int64) (*gamification.Session, error) {
	s, ok := f.sessions[userID]
	if !ok || !s.Open() {
		return nil, shared.ErrNoOpenSession
	}
	s.BreaksTaken++
	return s, nil
}

func (f *fakeRepo) GetCurrentSession(_ context.Context, userID int64) (*gamification.Session, error) {
	s, ok := f.sessions[userID]
	if !ok || !s.Open() {
		return nil, shared.ErrNoOpenSession
	}
	return s, nil
}

func (f *fakeRepo) AwardQuestCompletion(_ context.Context, userID int64, questID string, xpAmount gamification.XP, badgeID string) (*gamification.QuestCompletionResult, error) {
	if err := f.fail("AwardQuestCompletion"); err != nil {
		return nil, err
	}
	q, ok := f.quests[key(userID, questID)]
	if !ok {
		return nil, shared.ErrQuestNotFound
	}
	if q.Terminal() {
		return &gamification.QuestCompletionResult{Quest: q}, nil
	}
	// The real operation is one transaction: a failing sub-step rolls
	// everything back, so injected sub-step failures must leave the fake
	// untouched too.
	if err := f.fail("AddXP"); err != nil {
		return nil, err
	}
	if badgeID != "" {
		if err := f.fail("UnlockAchievement"); err != nil {
			return nil, err
		}
	}
	now := time.Now().UTC()
	q.Status = gamification.QuestCompleted
	q.CompletedAt = &now
	xp := f.addXP(userID, xpAmount, gamification.SourceQuestReward, map[string]interface{}{"quest_id": questID})
	result := &gamification.QuestCompletionResult{
		Quest:         q,
		XPTransaction: xp.Transaction,
		NewTotalXP:    xp.NewTotalXP,
		LeveledUp:     xp.LeveledUp,
		NewLevel:      xp.NewLevel,
	}
	if badgeID != "" {
		result.Badge = f.unlock(userID, badgeID)
	}
	return result, nil
}

func (f *fakeRepo) RecordDailyCheckIn(_ context.Context, userID int64, baseXP gamification.XP, evaluate gamification.BadgeEvaluator) (*gamification.CheckInResult, error) {
	if err := f.fail("RecordDailyCheckIn"); err != nil {
		return nil, err
	}
	state := f.ensureState(userID)
	k := streakKey(userID, gamification.StreakDailyLogin)
	streak, ok := f.streaks[k]
	if !ok {
		streak = gamification.NewStreak(userID, gamification.StreakDailyLogin)
		f.streaks[k] = streak
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if streak.LastActiveDate != nil && streak.LastActiveDate.Equal(today) {
		return &gamification.CheckInResult{
			Streak:           streak,
			TotalXP:          state.TotalXP,
			NewLevel:         state.CurrentLevel,
			AlreadyCheckedIn: true,
		}, nil
	}
	rules.Increment(streak)
	streak.LastActiveDate = &today
	state.TotalDaysActive++
	earned := gamification.XP(float64(baseXP) * streak.Multiplier)
	xp := f.addXP(userID, earned, gamification.SourceDailyCheckIn, nil)

	result := &gamification.CheckInResult{
		Streak:    streak,
		XPEarned:  earned,
		TotalXP:   xp.NewTotalXP,
		LeveledUp: xp.LeveledUp,
		NewLevel:  xp.NewLevel,
	}
	if evaluate != nil {
		unlocked := make(map[string]bool)
		for _, a := range f.achievements {
			if a.UserID == userID && a.UnlockedAt != nil {
				unlocked[a.AchievementID] = true
			}
		}
		profile := gamification.Profile{
			UserID:          userID,
			TotalXP:         state.TotalXP,
			CurrentLevel:    state.CurrentLevel,
			TotalDaysActive: state.TotalDaysActive,
			StreakCounts:    map[gamification.StreakType]int{gamification.StreakDailyLogin: streak.CurrentCount},
			Unlocked:        unlocked,
		}
		for _, badgeID := range evaluate(profile) {
			result.AwardedBadges = append(result.AwardedBadges, f.unlock(userID, badgeID))
		}
	}
	return result, nil
}

func (f *fakeRepo) ExportUserData(_ context.Context, userID int64) (*gamification.Export, error) {
	ctx := context.Background()
	state := f.states[userID]
	txs, _ := f.GetXPTransactions(ctx, userID, 0)
	achievements, _ := f.GetAchievements(ctx, userID)
	streaks, _ := f.GetStreaks(ctx, userID)
	inventory, _ := f.GetInventory(ctx, userID)

	var quests []*gamification.Quest
	for _, q := range f.quests {
		if q.UserID == userID {
			quests = append(quests, q)
		}
	}
	var sessions []*gamification.Session
	if s, ok := f.sessions[userID]; ok {
		sessions = append(sessions, s)
	}

	export := &gamification.Export{
		ExportID:     "export-1",
		UserID:       userID,
		GeneratedAt:  time.Now().UTC(),
		State:        state,
		Transactions: txs,
		Achievements: achievements,
		Streaks:      streaks,
		Quests:       quests,
		Inventory:    inventory,
		Sessions:     sessions,
	}
	// The export shows what is stored: no settings row means null, never
	// the defaults GetSettings substitutes.
	if s, ok := f.settings[userID]; ok {
		export.Settings = s
	}
	if eq, ok := f.equipped[userID]; ok {
		export.Equipped = eq
	}
	return export, nil
}

func (f *fakeRepo) DeleteUserData(_ context.Context, userID int64) error {
	if err := f.fail("DeleteUserData"); err != nil {
		return err
	}
	delete(f.states, userID)
	delete(f.settings, userID)
	delete(f.sessions, userID)
	delete(f.equipped, userID)
	for k, a := range f.achievements {
		if a.UserID == userID {
			delete(f.achievements, k)
		}
	}
	for k, q := range f.quests {
		if q.UserID == userID {
			delete(f.quests, k)
		}
	}
	for k, s := range f.streaks {
		if s.UserID == userID {
			delete(f.streaks, k)
		}
	}
	for k, item := range f.inventory {
		if item.UserID == userID {
			delete(f.inventory, k)
		}
	}
	kept := f.ledger[:0]
	for _, tx := range f.ledger {
		if tx.UserID != userID {
			kept = append(kept, tx)
		}
	}
	f.ledger = kept
	return nil
}

func (f *fakeRepo) AnonymizeUserData(_ context.Context, userID int64) error {
	if s, ok := f.states[userID]; ok && s.DeletedAt == nil {
		now := time.Now().UTC()
		s.DeletedAt = &now
	}
	delete(f.sessions, userID)
	return nil
}

func newTestEngine(repo *fakeRepo) (*Engine, *recorder, *fakeCache) {
	bus := &recorder{}
	cache := newFakeCache()
	return NewEngine(repo, bus, cache, nil), bus, cache
}

// ──────────────────────────────────────────────────────────────────────────────
// RecordAction
// ──────────────────────────────────────────────────────────────────────────────

func TestRecordAction_UnknownAction(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeRepo())

	_, err := engine.RecordAction(context.Background(), 1, Action("nap"))
	assert.Error(t, err)
}

func TestRecordAction_InvalidUser(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeRepo())

	_, err := engine.RecordAction(context.Background(), 0, ActionDiaryEntry)
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestRecordAction_DiaryEntryAwardsXP(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	result, err := engine.RecordAction(context.Background(), 1, ActionDiaryEntry)
	require.NoError(t, err)

	assert.Equal(t, gamification.XP(25), result.XPEarned)
	assert.Equal(t, gamification.XP(25), result.TotalXP)
	assert.Nil(t, result.Streak)
	assert.Len(t, bus.ofType(shared.EventXPEarned), 1)
	assert.Empty(t, bus.ofType(shared.EventStreakUpdated))
}

func TestRecordAction_FirstActionCreatesState(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(repo)

	// A brand-new user has no state row; the first XP-earning action of
	// any kind must create it rather than fail with NotFound.
	_, err := repo.GetState(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)

	result, err := engine.RecordAction(context.Background(), 42, ActionDiaryEntry)
	require.NoError(t, err)
	assert.Equal(t, gamification.XP(25), result.TotalXP)

	state, err := repo.GetState(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, gamification.XP(25), state.TotalXP)
}

func TestRecordAction_SleepLogAdvancesStreak(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	result, err := engine.RecordAction(context.Background(), 1, ActionSleepLog)
	require.NoError(t, err)

	require.NotNil(t, result.Streak)
	assert.Equal(t, gamification.StreakSleepLog, result.Streak.Type)
	assert.Equal(t, 1, result.Streak.CurrentCount)
	assert.Len(t, bus.ofType(shared.EventStreakUpdated), 1)
}

// ──────────────────────────────────────────────────────────────────────────────
// AddXP
// ──────────────────────────────────────────────────────────────────────────────

func TestAddXP_RejectsNonPositive(t *testing.T) {
	engine, bus, _ := newTestEngine(newFakeRepo())

	_, err := engine.AddXP(context.Background(), 1, 0, gamification.SourceDiaryEntry, nil)
	assert.ErrorIs(t, err, shared.ErrNonPositiveXP)
	assert.Empty(t, bus.events)
}

func TestAddXP_PublishesLevelUpOnThreshold(t *testing.T) {
	engine, bus, _ := newTestEngine(newFakeRepo())

	result, err := engine.AddXP(context.Background(), 1, 100, gamification.SourceRelaxSession, nil)
	require.NoError(t, err)

	assert.True(t, result.LeveledUp)
	assert.Equal(t, gamification.Level(2), result.NewLevel)
	assert.Len(t, bus.ofType(shared.EventXPEarned), 1)
	assert.Len(t, bus.ofType(shared.EventLevelUp), 1)
}

func TestAddXP_InvalidatesProfileCache(t *testing.T) {
	engine, _, cache := newTestEngine(newFakeRepo())

	_, err := engine.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, cache.entries, int64(1))

	_, err = engine.AddXP(context.Background(), 1, 10, gamification.SourceDiaryEntry, nil)
	require.NoError(t, err)
	assert.NotContains(t, cache.entries, int64(1))
}

// ──────────────────────────────────────────────────────────────────────────────
// Daily check-in
// ──────────────────────────────────────────────────────────────────────────────

func TestRecordDailyCheckIn_FirstCheckIn(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	result, err := engine.RecordDailyCheckIn(context.Background(), 1)
	require.NoError(t, err)

	assert.False(t, result.AlreadyCheckedIn)
	assert.Equal(t, 1, result.Streak.CurrentCount)
	assert.Equal(t, CheckInBaseXP, result.XPEarned)
	assert.Len(t, bus.ofType(shared.EventStreakUpdated), 1)
	assert.Len(t, bus.ofType(shared.EventXPEarned), 1)

	// Day one unlocks the first-check-in badge.
	var badgeIDs []string
	for _, b := range result.AwardedBadges {
		badgeIDs = append(badgeIDs, b.AchievementID)
	}
	assert.Contains(t, badgeIDs, rules.BadgeFirstCheckIn)
	assert.NotEmpty(t, bus.ofType(shared.EventAchievementUnlocked))
}

func TestRecordDailyCheckIn_SameDayIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	first, err := engine.RecordDailyCheckIn(context.Background(), 1)
	require.NoError(t, err)
	published := len(bus.events)

	second, err := engine.RecordDailyCheckIn(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, second.AlreadyCheckedIn)
	assert.Zero(t, second.XPEarned)
	assert.Equal(t, first.Streak.CurrentCount, second.Streak.CurrentCount)
	assert.Equal(t, first.TotalXP, second.TotalXP)
	assert.Len(t, bus.events, published, "a same-day repeat must publish nothing")
}

func TestRecordDailyCheckIn_EvolutionStageChange(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	// Six days in, the next check-in crosses into young_owl.
	state := repo.ensureState(1)
	state.TotalDaysActive = 6

	_, err := engine.RecordDailyCheckIn(context.Background(), 1)
	require.NoError(t, err)

	events := bus.ofType(shared.EventEvolutionStageChanged)
	require.Len(t, events, 1)
	payload := events[0].Payload()
	assert.Equal(t, "owlet", payload["previous_stage"])
	assert.Equal(t, "young_owl", payload["new_stage"])
}

func TestRecordDailyCheckIn_RepoFailureSurfaces(t *testing.T) {
	repo := newFakeRepo()
	repo.failOn("RecordDailyCheckIn", errors.New("deadlock"))
	engine, bus, _ := newTestEngine(repo)

	_, err := engine.RecordDailyCheckIn(context.Background(), 1)
	assert.Error(t, err)
	assert.Empty(t, bus.events)
}

// ──────────────────────────────────────────────────────────────────────────────
// Quests
// ──────────────────────────────────────────────────────────────────────────────

func TestStartQuest_PublishesEvent(t *testing.T) {
	engine, bus, _ := newTestEngine(newFakeRepo())

	quest, err := engine.StartQuest(context.Background(), 1, "sleep-hygiene-week", 7)
	require.NoError(t, err)

	assert.Equal(t, gamification.QuestActive, quest.Status)
	assert.Len(t, bus.ofType(shared.EventQuestStarted), 1)
}

func TestStartQuest_CapacityErrorPublishesNothing(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	for i := 0; i < gamification.MaxActiveQuests; i++ {
		_, err := engine.StartQuest(context.Background(), 1, fmt.Sprintf("quest-%d", i), 1)
		require.NoError(t, err)
	}
	published := len(bus.events)

	_, err := engine.StartQuest(context.Background(), 1, "one-too-many", 1)
	assert.ErrorIs(t, err, shared.ErrCapacityExceeded)
	assert.Len(t, bus.events, published)
}

func TestAwardQuestCompletion_FullFlow(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	_, err := engine.StartQuest(context.Background(), 1, "wind-down-3", 3)
	require.NoError(t, err)

	result, err := engine.AwardQuestCompletion(context.Background(), 1, "wind-down-3", 150, "badge_wind_down")
	require.NoError(t, err)

	assert.Equal(t, gamification.QuestCompleted, result.Quest.Status)
	require.NotNil(t, result.XPTransaction)
	require.NotNil(t, result.Badge)
	assert.Len(t, bus.ofType(shared.EventQuestCompleted), 1)
	assert.Len(t, bus.ofType(shared.EventAchievementUnlocked), 1)
	assert.Len(t, bus.ofType(shared.EventLevelUp), 1)
}

func TestAwardQuestCompletion_AlreadyTerminalPublishesNothing(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	_, err := engine.StartQuest(context.Background(), 1, "q1", 1)
	require.NoError(t, err)
	_, err = engine.AwardQuestCompletion(context.Background(), 1, "q1", 100, "")
	require.NoError(t, err)
	published := len(bus.events)

	result, err := engine.AwardQuestCompletion(context.Background(), 1, "q1", 100, "")
	require.NoError(t, err)

	assert.Nil(t, result.XPTransaction)
	assert.Len(t, bus.events, published, "re-completing must not double-award")
}

func TestAwardQuestCompletion_SubStepFailureLeavesQuestActive(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	_, err := engine.StartQuest(context.Background(), 1, "q1", 3)
	require.NoError(t, err)
	started := len(bus.events)

	repo.failOn("UnlockAchievement", errors.New("deadlock"))

	_, err = engine.AwardQuestCompletion(context.Background(), 1, "q1", 150, "badge_wind_down")
	require.Error(t, err)

	// One transaction: a failing badge step must roll back the quest
	// completion and the XP award with it.
	quest, err := repo.GetQuest(context.Background(), 1, "q1")
	require.NoError(t, err)
	assert.Equal(t, gamification.QuestActive, quest.Status)

	_, err = repo.GetState(context.Background(), 1)
	assert.ErrorIs(t, err, shared.ErrNotFound, "no XP may land when the award fails")
	assert.Len(t, bus.events, started, "a failed award publishes nothing")
}

func TestAchievementUnlockIsMonotonic(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()

	first, err := repo.UnlockAchievement(ctx, 1, "streak_7_days")
	require.NoError(t, err)
	require.NotNil(t, first.UnlockedAt)

	// Later, lower progress values update the counter but never clear
	// the unlock.
	after, err := repo.UpdateAchievementProgress(ctx, 1, "streak_7_days", 40)
	require.NoError(t, err)
	assert.Equal(t, 40, after.Progress)
	require.NotNil(t, after.UnlockedAt)
	assert.Equal(t, *first.UnlockedAt, *after.UnlockedAt)

	// And reaching 100 by progress alone unlocks exactly once.
	a, err := repo.UpdateAchievementProgress(ctx, 1, "quests_10", 100)
	require.NoError(t, err)
	require.NotNil(t, a.UnlockedAt)
	unlockedAt := *a.UnlockedAt

	a, err = repo.UpdateAchievementProgress(ctx, 1, "quests_10", 100)
	require.NoError(t, err)
	assert.Equal(t, unlockedAt, *a.UnlockedAt)
}

// ──────────────────────────────────────────────────────────────────────────────
// Profile
// ──────────────────────────────────────────────────────────────────────────────

func TestGetProfile_NewUser(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeRepo())

	view, err := engine.GetProfile(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, view.CurrentLevel)
	assert.Zero(t, view.TotalXP)
	assert.Equal(t, "owlet", view.Stage)
	assert.Contains(t, view.Abilities, "daily_check_in")
	require.NotNil(t, view.NextStage)
	assert.Equal(t, "young_owl", view.NextStage.Stage)
	assert.Equal(t, 7, view.NextStage.DaysRemaining)
}

func TestGetProfile_ServedFromCache(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(repo)

	_, err := engine.GetProfile(context.Background(), 1)
	require.NoError(t, err)

	// A repo failure is invisible while the cached copy is fresh.
	repo.failOn("GetState", errors.New("db down"))
	view, err := engine.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.UserID)
}

func TestGetProfile_WithoutCache(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo, nil, nil, nil)

	view, err := engine.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.CurrentLevel)
}

// ──────────────────────────────────────────────────────────────────────────────
// Settings and sessions
// ──────────────────────────────────────────────────────────────────────────────

func TestUpdateSettings_ClampsPreservePercentage(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(repo)

	settings := gamification.DefaultSettings(1)
	settings.PreservePercentage = 1.5
	require.NoError(t, engine.UpdateSettings(context.Background(), settings))

	stored, err := engine.GetSettings(context.Background(), 1)
	require.NoError(t, err)
	// Validate and the settings table both require the value below 1,
	// so the clamp must land inside [0, 1) to actually save.
	assert.Equal(t, maxPreservePercentage, stored.PreservePercentage)
	assert.NoError(t, stored.Validate())

	settings = gamification.DefaultSettings(1)
	settings.PreservePercentage = -0.2
	require.NoError(t, engine.UpdateSettings(context.Background(), settings))

	stored, err = engine.GetSettings(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored.PreservePercentage)
}

func TestSessionLifecycle(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeRepo())
	ctx := context.Background()

	session, err := engine.StartSession(ctx, 1)
	require.NoError(t, err)
	assert.True(t, session.Open())

	_, err = engine.StartSession(ctx, 1)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	session, err = engine.RecordBreak(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, session.BreaksTaken)

	session, err = engine.EndSession(ctx, 1)
	require.NoError(t, err)
	assert.False(t, session.Open())

	_, err = engine.GetCurrentSession(ctx, 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// Data subject operations
// ──────────────────────────────────────────────────────────────────────────────

func TestDeleteUserData_PublishesAndInvalidates(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, cache := newTestEngine(repo)

	_, err := engine.AddXP(context.Background(), 1, 10, gamification.SourceDiaryEntry, nil)
	require.NoError(t, err)
	_, err = engine.GetProfile(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, engine.DeleteUserData(context.Background(), 1))

	assert.NotContains(t, cache.entries, int64(1))
	assert.Len(t, bus.ofType(shared.EventUserDataDeleted), 1)
	_, err = repo.GetState(context.Background(), 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteUserData_Idempotent(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeRepo())

	require.NoError(t, engine.DeleteUserData(context.Background(), 1))
	require.NoError(t, engine.DeleteUserData(context.Background(), 1))
}

func TestExportAfterDelete_IsEmpty(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(repo)
	ctx := context.Background()

	_, err := engine.RecordDailyCheckIn(ctx, 1)
	require.NoError(t, err)
	_, err = engine.StartQuest(ctx, 1, "q1", 3)
	require.NoError(t, err)
	settings := gamification.DefaultSettings(1)
	require.NoError(t, engine.UpdateSettings(ctx, settings))

	require.NoError(t, engine.DeleteUserData(ctx, 1))

	export, err := engine.ExportUserData(ctx, 1)
	require.NoError(t, err)

	// Nothing stored means null for the singletons and empty lists for
	// the aggregates, never fabricated defaults.
	assert.Nil(t, export.State)
	assert.Nil(t, export.Settings)
	assert.Nil(t, export.Equipped)
	assert.Empty(t, export.Transactions)
	assert.Empty(t, export.Achievements)
	assert.Empty(t, export.Streaks)
	assert.Empty(t, export.Quests)
	assert.Empty(t, export.Inventory)
	assert.Empty(t, export.Sessions)
}

func TestExportWithoutSettingsRow_SettingsIsNull(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(repo)
	ctx := context.Background()

	_, err := engine.AddXP(ctx, 1, 10, gamification.SourceDiaryEntry, nil)
	require.NoError(t, err)

	export, err := engine.ExportUserData(ctx, 1)
	require.NoError(t, err)

	require.NotNil(t, export.State)
	assert.Nil(t, export.Settings, "defaults the user never stored must not be exported")
}

func TestAnonymizeUserData_StateReadsAsAbsent(t *testing.T) {
	repo := newFakeRepo()
	engine, bus, _ := newTestEngine(repo)

	_, err := engine.AddXP(context.Background(), 1, 10, gamification.SourceDiaryEntry, nil)
	require.NoError(t, err)

	require.NoError(t, engine.AnonymizeUserData(context.Background(), 1))

	_, err = repo.GetState(context.Background(), 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Len(t, bus.ofType(shared.EventUserDataAnonymized), 1)

	// The ledger is retained for aggregate analytics.
	txs, err := repo.GetXPTransactions(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, txs)
}
