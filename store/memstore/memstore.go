// Package memstore is an in-memory implementation of the store interfaces.
// It backs the pipeline and handler tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"aurelienallenic/api/models"
	"aurelienallenic/api/store"
)

type monthKey struct {
	year  int
	month int
}

// Store satisfies every repository interface in package store.
type Store struct {
	mu sync.RWMutex

	events  map[string]models.RawEvent
	daily   map[string]models.DailySummary
	monthly map[monthKey]models.MonthlySummary
	yearly  map[int]models.YearlySummary

	users    map[int64]models.User
	nextUser int64

	cv       *models.Cv
	messages map[string]models.Message

	now func() time.Time
}

func New() *Store {
	return &Store{
		events:   make(map[string]models.RawEvent),
		daily:    make(map[string]models.DailySummary),
		monthly:  make(map[monthKey]models.MonthlySummary),
		yearly:   make(map[int]models.YearlySummary),
		users:    make(map[int64]models.User),
		messages: make(map[string]models.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ store.EventStore        = (*Store)(nil)
	_ store.SummaryStore      = (*Store)(nil)
	_ store.UserRepository    = (*Store)(nil)
	_ store.CVRepository      = (*Store)(nil)
	_ store.MessageRepository = (*Store)(nil)
)

// --- events ---

func (s *Store) InsertEvent(_ context.Context, event *models.RawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("event %s: %w", event.ID, store.ErrDuplicate)
	}
	s.events[event.ID] = copyEvent(*event)
	return nil
}

func (s *Store) AllEvents(_ context.Context) ([]models.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedEvents(func(models.RawEvent) bool { return true }, false), nil
}

func (s *Store) EventsInWindow(_ context.Context, from, to time.Time) ([]models.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedEvents(func(e models.RawEvent) bool {
		return !e.CreatedAt.Before(from) && e.CreatedAt.Before(to)
	}, false), nil
}

func (s *Store) DeleteEvents(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := s.events[id]; ok {
			delete(s.events, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListEvents(_ context.Context, filter models.EventFilter) ([]models.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.sortedEvents(func(e models.RawEvent) bool {
		return filter.Type == "" || e.Type == filter.Type
	}, true)
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

func (s *Store) EventTypeStats(_ context.Context) ([]models.EventTypeStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.EventType]int64)
	visitors := make(map[models.EventType]map[string]struct{})
	for _, e := range s.events {
		counts[e.Type]++
		if visitors[e.Type] == nil {
			visitors[e.Type] = make(map[string]struct{})
		}
		visitors[e.Type][e.VisitorID] = struct{}{}
	}

	stats := make([]models.EventTypeStat, 0, len(counts))
	for t, c := range counts {
		stats = append(stats, models.EventTypeStat{Type: t, Count: c, UniqueVisitors: int64(len(visitors[t]))})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Type < stats[j].Type })
	return stats, nil
}

func (s *Store) TopClicks(_ context.Context, limit int) ([]models.ClickStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, e := range s.events {
		if e.Type == models.EventClick && e.Label != nil {
			counts[*e.Label]++
		}
	}
	clicks := make([]models.ClickStat, 0, len(counts))
	for label, c := range counts {
		clicks = append(clicks, models.ClickStat{Label: label, Count: c})
	}
	sort.Slice(clicks, func(i, j int) bool {
		if clicks[i].Count != clicks[j].Count {
			return clicks[i].Count > clicks[j].Count
		}
		return clicks[i].Label < clicks[j].Label
	})
	if limit > 0 && len(clicks) > limit {
		clicks = clicks[:limit]
	}
	return clicks, nil
}

// EventCount is a test helper.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *Store) sortedEvents(keep func(models.RawEvent) bool, newestFirst bool) []models.RawEvent {
	out := make([]models.RawEvent, 0, len(s.events))
	for _, e := range s.events {
		if keep(e) {
			out = append(out, copyEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// --- daily ---

func (s *Store) GetDaily(_ context.Context, date string) (*models.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.daily[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := copyDaily(d)
	return &c, nil
}

func (s *Store) UpsertDaily(_ context.Context, summary *models.DailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily[summary.Date] = copyDaily(*summary)
	return nil
}

func (s *Store) DailyForMonth(_ context.Context, year, month int) ([]models.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	var out []models.DailySummary
	for date, d := range s.daily {
		if strings.HasPrefix(date, prefix) {
			out = append(out, copyDaily(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) DeleteDaily(_ context.Context, dates []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, date := range dates {
		if _, ok := s.daily[date]; ok {
			delete(s.daily, date)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListDaily(_ context.Context, r models.DailyRange) ([]models.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DailySummary
	for date, d := range s.daily {
		if r.StartDate != "" && date < r.StartDate {
			continue
		}
		if r.EndDate != "" && date > r.EndDate {
			continue
		}
		out = append(out, copyDaily(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if r.Limit > 0 && len(out) > r.Limit {
		out = out[:r.Limit]
	}
	return out, nil
}

// --- monthly ---

func (s *Store) GetMonthly(_ context.Context, year, month int) (*models.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.monthly[monthKey{year, month}]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := copyMonthly(m)
	return &c, nil
}

func (s *Store) UpsertMonthly(_ context.Context, summary *models.MonthlySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := monthKey{summary.Year, summary.Month}
	now := s.now()
	summary.CreatedAt = now
	if existing, ok := s.monthly[key]; ok {
		summary.CreatedAt = existing.CreatedAt
	}
	summary.UpdatedAt = now
	s.monthly[key] = copyMonthly(*summary)
	return nil
}

func (s *Store) MonthlyForYear(_ context.Context, year int) ([]models.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MonthlySummary
	for key, m := range s.monthly {
		if key.year == year {
			out = append(out, copyMonthly(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (s *Store) DeleteMonthly(_ context.Context, year int, months []int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, month := range months {
		key := monthKey{year, month}
		if _, ok := s.monthly[key]; ok {
			delete(s.monthly, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListMonthly(_ context.Context, year int) ([]models.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MonthlySummary
	for key, m := range s.monthly {
		if year == 0 || key.year == year {
			out = append(out, copyMonthly(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out, nil
}

// --- yearly ---

func (s *Store) GetYearly(_ context.Context, year int) (*models.YearlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, ok := s.yearly[year]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := copyYearly(y)
	return &c, nil
}

func (s *Store) UpsertYearly(_ context.Context, summary *models.YearlySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	summary.CreatedAt = now
	if existing, ok := s.yearly[summary.Year]; ok {
		summary.CreatedAt = existing.CreatedAt
	}
	summary.UpdatedAt = now
	s.yearly[summary.Year] = copyYearly(*summary)
	return nil
}

func (s *Store) ListYearly(_ context.Context) ([]models.YearlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.YearlySummary, 0, len(s.yearly))
	for _, y := range s.yearly {
		out = append(out, copyYearly(y))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out, nil
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return fmt.Errorf("user with email '%s': %w", user.Email, store.ErrDuplicate)
		}
	}
	s.nextUser++
	user.ID = s.nextUser
	user.CreatedAt = s.now()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			c := u
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindByEmailOrGoogleID(_ context.Context, email, googleID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var byGoogle *models.User
	for _, u := range s.users {
		u := u
		if u.Email == email {
			return &u, nil
		}
		if googleID != "" && u.GoogleID != nil && *u.GoogleID == googleID {
			byGoogle = &u
		}
	}
	if byGoogle != nil {
		return byGoogle, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.GoogleID = user.GoogleID
	existing.Name = user.Name
	existing.Picture = user.Picture
	existing.AuthMethod = user.AuthMethod
	existing.UpdatedAt = s.now()
	user.UpdatedAt = existing.UpdatedAt
	s.users[user.ID] = existing
	return nil
}

// --- cv ---

func (s *Store) GetCV(_ context.Context) (*models.Cv, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cv == nil {
		return nil, store.ErrNotFound
	}
	c := *s.cv
	return &c, nil
}

func (s *Store) UpsertCV(_ context.Context, cv *models.Cv) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cv.CreatedAt = now
	if s.cv != nil {
		cv.CreatedAt = s.cv.CreatedAt
	}
	cv.UpdatedAt = now
	c := *cv
	s.cv = &c
	return nil
}

func (s *Store) DeleteCV(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cv == nil {
		return store.ErrNotFound
	}
	s.cv = nil
	return nil
}

// --- messages ---

func (s *Store) CreateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.CreatedAt = s.now()
	msg.UpdatedAt = msg.CreatedAt
	s.messages[msg.ID] = *msg
	return nil
}

func (s *Store) ListMessages(_ context.Context) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

// MessageCount is a test helper.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// --- copies ---

func copyEvent(e models.RawEvent) models.RawEvent {
	if e.Label != nil {
		l := *e.Label
		e.Label = &l
	}
	meta := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		meta[k] = v
	}
	e.Metadata = meta
	return e
}

func copyClicks(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyDaily(d models.DailySummary) models.DailySummary {
	d.Clicks = copyClicks(d.Clicks)
	d.VisitorIDs = append([]string(nil), d.VisitorIDs...)
	return d
}

func copyMonthly(m models.MonthlySummary) models.MonthlySummary {
	m.Clicks = copyClicks(m.Clicks)
	m.VisitorIDs = append([]string(nil), m.VisitorIDs...)
	days := make([]models.DailySummary, len(m.DailyStats))
	for i, d := range m.DailyStats {
		days[i] = copyDaily(d)
	}
	m.DailyStats = days
	return m
}

func copyYearly(y models.YearlySummary) models.YearlySummary {
	y.Clicks = copyClicks(y.Clicks)
	y.VisitorIDs = append([]string(nil), y.VisitorIDs...)
	months := make([]models.MonthlySummary, len(y.MonthlyStats))
	for i, m := range y.MonthlyStats {
		months[i] = copyMonthly(m)
	}
	y.MonthlyStats = months
	return y
}
