package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"kindred_server/models"
)

// MemoryStore is an in-process implementation of Store with the same
// atomicity semantics as the DynamoDB store: every multi-row unit runs
// under one lock, so either all of it is visible or none of it is.
// It backs the test suite and local development without AWS.
type MemoryStore struct {
	mu            sync.Mutex
	interests     map[string]*models.Interest
	activePairs   map[string]string // PairKey -> interest ID
	quotas        map[string]int    // DayKey -> sends today
	markers       map[string]*models.MatchMarker
	counters      map[string]*models.UserCounters
	notifications map[string]*models.Notification
	notifOrder    []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interests:     make(map[string]*models.Interest),
		activePairs:   make(map[string]string),
		quotas:        make(map[string]int),
		markers:       make(map[string]*models.MatchMarker),
		counters:      make(map[string]*models.UserCounters),
		notifications: make(map[string]*models.Notification),
	}
}

func (m *MemoryStore) counterRow(userID string) *models.UserCounters {
	row, ok := m.counters[userID]
	if !ok {
		row = &models.UserCounters{UserID: userID}
		m.counters[userID] = row
	}
	return row
}

func copyInterest(in *models.Interest) *models.Interest {
	cp := *in
	if in.RespondedAt != nil {
		t := *in.RespondedAt
		cp.RespondedAt = &t
	}
	if in.CommonInterests != nil {
		cp.CommonInterests = append([]string(nil), in.CommonInterests...)
	}
	return &cp
}

func copyNotification(n *models.Notification) *models.Notification {
	cp := *n
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	if n.Metadata != nil {
		cp.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// CreateInterest inserts the interest, claims the active-pair guard and
// bumps both users' counters as one unit.
func (m *MemoryStore) CreateInterest(ctx context.Context, in *models.Interest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair := models.PairKey(in.SenderID, in.ReceiverID)
	if _, exists := m.activePairs[pair]; exists {
		return &ConflictError{Reason: ConflictAlreadyExists}
	}

	m.interests[in.ID] = copyInterest(in)
	m.activePairs[pair] = in.ID
	m.counterRow(in.SenderID).SentCount++
	recv := m.counterRow(in.ReceiverID)
	recv.ReceivedCount++
	recv.UnreadCount++
	return nil
}

func (m *MemoryStore) GetInterest(ctx context.Context, id string) (*models.Interest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.interests[id]
	if !ok {
		return nil, &NotFoundError{Entity: "interest", ID: id}
	}
	return copyInterest(in), nil
}

// TransitionInterest compare-and-swaps the status; the same unit
// releases the pair guard on non-active outcomes and settles the
// receiver's unread counter when the interest leaves pending unread.
func (m *MemoryStore) TransitionInterest(ctx context.Context, id, from, to string, at time.Time) (*models.Interest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.interests[id]
	if !ok {
		return nil, &NotFoundError{Entity: "interest", ID: id}
	}
	if in.Status != from {
		return nil, &ConflictError{Reason: ConflictStaleStatus}
	}

	wasPendingUnread := in.Status == models.StatusPending && !in.IsRead

	in.Status = to
	if to == models.StatusAccepted || to == models.StatusDeclined {
		t := at
		in.RespondedAt = &t
	}
	if !models.IsActiveStatus(to) {
		delete(m.activePairs, models.PairKey(in.SenderID, in.ReceiverID))
	}
	if wasPendingUnread {
		if recv := m.counterRow(in.ReceiverID); recv.UnreadCount > 0 {
			recv.UnreadCount--
		}
	}
	return copyInterest(in), nil
}

func (m *MemoryStore) GetActiveInterestByPair(ctx context.Context, senderID, receiverID string) (*models.Interest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.activePairs[models.PairKey(senderID, receiverID)]
	if !ok {
		return nil, nil
	}
	in, ok := m.interests[id]
	if !ok {
		return nil, nil
	}
	return copyInterest(in), nil
}

func (m *MemoryStore) ListBySender(ctx context.Context, userID string) ([]models.Interest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Interest
	for _, in := range m.interests {
		if in.SenderID == userID {
			out = append(out, *copyInterest(in))
		}
	}
	sortBySentAt(out)
	return out, nil
}

func (m *MemoryStore) ListByReceiver(ctx context.Context, userID string) ([]models.Interest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Interest
	for _, in := range m.interests {
		if in.ReceiverID == userID {
			out = append(out, *copyInterest(in))
		}
	}
	sortBySentAt(out)
	return out, nil
}

func (m *MemoryStore) ListOverduePending(ctx context.Context, cutoff time.Time) ([]models.Interest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Interest
	for _, in := range m.interests {
		if in.Status == models.StatusPending && cutoff.After(in.ExpiresAt) {
			out = append(out, *copyInterest(in))
		}
	}
	sortBySentAt(out)
	return out, nil
}

func sortBySentAt(interests []models.Interest) {
	sort.Slice(interests, func(i, j int) bool {
		if interests[i].SentAt.Equal(interests[j].SentAt) {
			return interests[i].ID < interests[j].ID
		}
		return interests[i].SentAt.Before(interests[j].SentAt)
	})
}

func (m *MemoryStore) IncrementQuota(ctx context.Context, dayKey string, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quotas[dayKey] >= limit {
		return &LimitExceededError{Limit: limit}
	}
	m.quotas[dayKey]++
	return nil
}

func (m *MemoryStore) RollbackQuota(ctx context.Context, dayKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quotas[dayKey] > 0 {
		m.quotas[dayKey]--
	}
	return nil
}

func (m *MemoryStore) ClaimMatchMarker(ctx context.Context, marker *models.MatchMarker) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, claimed := m.markers[marker.PairID]; claimed {
		return false, nil
	}
	cp := *marker
	m.markers[marker.PairID] = &cp
	return true, nil
}

func (m *MemoryStore) AddCounters(ctx context.Context, userID string, delta models.CounterDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.counterRow(userID)
	row.SentCount += delta.Sent
	row.ReceivedCount += delta.Received
	row.UnreadCount += delta.Unread
	row.MutualCount += delta.Mutual
	return nil
}

func (m *MemoryStore) GetCounters(ctx context.Context, userID string) (models.UserCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return *m.counterRow(userID), nil
}

func (m *MemoryStore) PutNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications[n.ID] = copyNotification(n)
	m.notifOrder = append(m.notifOrder, n.ID)
	return nil
}

func (m *MemoryStore) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, &NotFoundError{Entity: "notification", ID: id}
	}
	return copyNotification(n), nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Notification
	for _, id := range m.notifOrder {
		if n := m.notifications[id]; n.UserID == userID {
			out = append(out, *copyNotification(n))
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkNotificationRead(ctx context.Context, id string, at time.Time) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, &NotFoundError{Entity: "notification", ID: id}
	}
	if !n.IsRead {
		n.IsRead = true
		t := at
		n.ReadAt = &t
	}
	return copyNotification(n), nil
}

func (m *MemoryStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flipped := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			t := at
			n.ReadAt = &t
			flipped++
		}
	}
	return flipped, nil
}

// MemoryDirectory is an in-process UserDirectory for tests and local
// runs.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]bool // userID -> active
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]bool)}
}

// AddUser registers a user and its active flag.
func (d *MemoryDirectory) AddUser(userID string, active bool) {
	d.mu.Lock()
	d.users[userID] = active
	d.mu.Unlock()
}

func (d *MemoryDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok, nil
}

func (d *MemoryDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.users[userID], nil
}
