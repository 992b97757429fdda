package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zapflow/dispatch/internal/model"
	"github.com/zapflow/dispatch/internal/store"
)

// memStore is an in-memory Store used by processor and secure-queue tests.
type memStore struct {
	mu         sync.Mutex
	pending    []ScoredItem
	processing []*Item
	errList    []*ErrorEntry
	markers    map[uuid.UUID]bool
	states     map[uuid.UUID]*CampaignState

	lockBusy        bool // simulates another instance holding the consumer lock
	lockHeld        bool
	duePendingCalls int
	failDuePending  error
}

func newMemStore() *memStore {
	return &memStore{
		markers: make(map[uuid.UUID]bool),
		states:  make(map[uuid.UUID]*CampaignState),
	}
}

func (m *memStore) AddPending(_ context.Context, items []ScoredItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, si := range items {
		item := *si.Item
		m.pending = append(m.pending, ScoredItem{Item: &item, Score: si.Score})
	}
	return nil
}

func (m *memStore) DuePending(_ context.Context, now time.Time, limit int) ([]*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duePendingCalls++
	if m.failDuePending != nil {
		return nil, m.failDuePending
	}

	sorted := append([]ScoredItem(nil), m.pending...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score.Before(sorted[j].Score) })

	var due []*Item
	for _, si := range sorted {
		if si.Score.After(now) {
			break
		}
		item := *si.Item
		due = append(due, &item)
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}

func (m *memStore) RemovePending(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removePendingLocked(item)
	return nil
}

func (m *memStore) removePendingLocked(item *Item) {
	for i, si := range m.pending {
		if si.Item.Key() == item.Key() {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

func (m *memStore) MoveToProcessing(_ context.Context, item *Item, startedAt time.Time) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removePendingLocked(item)
	stamped := *item
	stamped.ProcessingStartedAt = startedAt
	m.processing = append(m.processing, &stamped)
	return &stamped, nil
}

func (m *memStore) RemoveProcessing(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.processing {
		if p.Key() == item.Key() {
			m.processing = append(m.processing[:i], m.processing[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) ProcessingItems(_ context.Context) ([]*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]*Item, len(m.processing))
	for i, p := range m.processing {
		item := *p
		items[i] = &item
	}
	return items, nil
}

func (m *memStore) PushError(_ context.Context, entry *ErrorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errList = append(m.errList, entry)
	return nil
}

func (m *memStore) ErrorItems(_ context.Context) ([]*ErrorEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ErrorEntry(nil), m.errList...), nil
}

func (m *memStore) RemoveError(_ context.Context, entry *ErrorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.errList {
		if e.Item.Key() == entry.Item.Key() {
			m.errList = append(m.errList[:i], m.errList[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) HasEnqueueMarker(_ context.Context, campaignID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers[campaignID], nil
}

func (m *memStore) SetEnqueueMarker(_ context.Context, campaignID uuid.UUID, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[campaignID] = true
	return nil
}

func (m *memStore) CreateCampaignState(_ context.Context, state *CampaignState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *state
	m.states[state.CampaignID] = &copied
	return nil
}

func (m *memStore) CampaignState(_ context.Context, campaignID uuid.UUID) (*CampaignState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[campaignID]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (m *memStore) IncrementProcessed(_ context.Context, campaignID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[campaignID]
	if !ok {
		return 0, errors.New("campaign state missing")
	}
	state.ProcessedContacts++
	return state.ProcessedContacts, nil
}

func (m *memStore) SetCampaignStatus(_ context.Context, campaignID uuid.UUID, status model.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[campaignID]; ok {
		state.Status = status
	}
	return nil
}

func (m *memStore) TryLock(_ context.Context, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockBusy || m.lockHeld {
		return false, nil
	}
	m.lockHeld = true
	return true, nil
}

func (m *memStore) Unlock(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockHeld = false
	return nil
}

func (m *memStore) Sizes(_ context.Context) (int64, int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), int64(len(m.processing)), int64(len(m.errList)), nil
}

func (m *memStore) pendingKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, len(m.pending))
	for i, si := range m.pending {
		keys[i] = si.Item.Key()
	}
	return keys
}

// fakeData implements store.Store over in-memory maps.
type fakeData struct {
	mu            sync.Mutex
	campaigns     map[uuid.UUID]*model.Campaign
	contacts      map[uuid.UUID]*model.CampaignContact
	pendingOrder  map[uuid.UUID][]uuid.UUID
	statusUpdates map[uuid.UUID]model.ContactStatus

	failFindCampaign error // simulates the entity store being unreachable
}

func newFakeData() *fakeData {
	return &fakeData{
		campaigns:     make(map[uuid.UUID]*model.Campaign),
		contacts:      make(map[uuid.UUID]*model.CampaignContact),
		pendingOrder:  make(map[uuid.UUID][]uuid.UUID),
		statusUpdates: make(map[uuid.UUID]model.ContactStatus),
	}
}

func (f *fakeData) addCampaign(c *model.Campaign) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[c.ID] = c
}

func (f *fakeData) addContact(c *model.CampaignContact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts[c.ID] = c
	if c.Status == model.ContactStatusPending {
		f.pendingOrder[c.CampaignID] = append(f.pendingOrder[c.CampaignID], c.ID)
	}
}

func (f *fakeData) FindContactWithRelations(_ context.Context, id uuid.UUID) (*model.CampaignContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contact, ok := f.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return contact, nil
}

func (f *fakeData) FindPendingContacts(_ context.Context, campaignID uuid.UUID) ([]*model.CampaignContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var contacts []*model.CampaignContact
	for _, id := range f.pendingOrder[campaignID] {
		if c := f.contacts[id]; c != nil && c.Status == model.ContactStatusPending {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

func (f *fakeData) UpdateContactStatus(_ context.Context, id uuid.UUID, status model.ContactStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	contact, ok := f.contacts[id]
	if !ok {
		return store.ErrNotFound
	}
	contact.Status = status
	f.statusUpdates[id] = status
	return nil
}

func (f *fakeData) FindCampaign(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFindCampaign != nil {
		return nil, f.failFindCampaign
	}
	campaign, ok := f.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return campaign, nil
}

// fakeSender resolves every send immediately with a scripted per-contact
// outcome, defaulting to success.
type fakeSender struct {
	mu       sync.Mutex
	failures map[uuid.UUID]bool
	sent     []uuid.UUID
}

func newFakeSender() *fakeSender {
	return &fakeSender{failures: make(map[uuid.UUID]bool)}
}

func (f *fakeSender) Send(_ context.Context, contact *model.CampaignContact) <-chan bool {
	f.mu.Lock()
	f.sent = append(f.sent, contact.ID)
	delivered := !f.failures[contact.ID]
	f.mu.Unlock()

	ch := make(chan bool, 1)
	ch <- delivered
	return ch
}

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
