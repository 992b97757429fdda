package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zapflow/dispatch/internal/model"
	"github.com/zapflow/dispatch/internal/queue"
	"github.com/zapflow/dispatch/internal/store"
)

// mockQueueStore is an in-memory queue.Store for handler tests. Handlers run
// requests synchronously against it, so no locking is needed.
type mockQueueStore struct {
	pending    []queue.ScoredItem
	processing []*queue.Item
	errList    []*queue.ErrorEntry
	markers    map[uuid.UUID]bool
	states     map[uuid.UUID]*queue.CampaignState

	failSizes bool
}

func newMockQueueStore() *mockQueueStore {
	return &mockQueueStore{
		markers: make(map[uuid.UUID]bool),
		states:  make(map[uuid.UUID]*queue.CampaignState),
	}
}

func (m *mockQueueStore) AddPending(_ context.Context, items []queue.ScoredItem) error {
	m.pending = append(m.pending, items...)
	return nil
}

func (m *mockQueueStore) DuePending(context.Context, time.Time, int) ([]*queue.Item, error) {
	return nil, nil
}

func (m *mockQueueStore) RemovePending(context.Context, *queue.Item) error { return nil }

func (m *mockQueueStore) MoveToProcessing(_ context.Context, item *queue.Item, startedAt time.Time) (*queue.Item, error) {
	stamped := *item
	stamped.ProcessingStartedAt = startedAt
	m.processing = append(m.processing, &stamped)
	return &stamped, nil
}

func (m *mockQueueStore) RemoveProcessing(context.Context, *queue.Item) error { return nil }

func (m *mockQueueStore) ProcessingItems(context.Context) ([]*queue.Item, error) {
	return m.processing, nil
}

func (m *mockQueueStore) PushError(_ context.Context, entry *queue.ErrorEntry) error {
	m.errList = append(m.errList, entry)
	return nil
}

func (m *mockQueueStore) ErrorItems(context.Context) ([]*queue.ErrorEntry, error) {
	return m.errList, nil
}

func (m *mockQueueStore) RemoveError(_ context.Context, entry *queue.ErrorEntry) error {
	for i, e := range m.errList {
		if e.Item.Key() == entry.Item.Key() {
			m.errList = append(m.errList[:i], m.errList[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockQueueStore) HasEnqueueMarker(_ context.Context, campaignID uuid.UUID) (bool, error) {
	return m.markers[campaignID], nil
}

func (m *mockQueueStore) SetEnqueueMarker(_ context.Context, campaignID uuid.UUID, _ time.Duration) error {
	m.markers[campaignID] = true
	return nil
}

func (m *mockQueueStore) CreateCampaignState(_ context.Context, state *queue.CampaignState) error {
	m.states[state.CampaignID] = state
	return nil
}

func (m *mockQueueStore) CampaignState(_ context.Context, campaignID uuid.UUID) (*queue.CampaignState, error) {
	return m.states[campaignID], nil
}

func (m *mockQueueStore) IncrementProcessed(_ context.Context, campaignID uuid.UUID) (int64, error) {
	state, ok := m.states[campaignID]
	if !ok {
		return 0, errors.New("campaign state missing")
	}
	state.ProcessedContacts++
	return state.ProcessedContacts, nil
}

func (m *mockQueueStore) SetCampaignStatus(_ context.Context, campaignID uuid.UUID, status model.CampaignStatus) error {
	if state, ok := m.states[campaignID]; ok {
		state.Status = status
	}
	return nil
}

func (m *mockQueueStore) TryLock(context.Context, time.Duration) (bool, error) { return true, nil }

func (m *mockQueueStore) Unlock(context.Context) error { return nil }

func (m *mockQueueStore) Sizes(context.Context) (int64, int64, int64, error) {
	if m.failSizes {
		return 0, 0, 0, errors.New("redis unavailable")
	}
	return int64(len(m.pending)), int64(len(m.processing)), int64(len(m.errList)), nil
}

// mockDataStore is an in-memory store.Store for handler tests.
type mockDataStore struct {
	campaigns map[uuid.UUID]*model.Campaign
	contacts  map[uuid.UUID]*model.CampaignContact
}

func newMockDataStore() *mockDataStore {
	return &mockDataStore{
		campaigns: make(map[uuid.UUID]*model.Campaign),
		contacts:  make(map[uuid.UUID]*model.CampaignContact),
	}
}

func (m *mockDataStore) FindContactWithRelations(_ context.Context, id uuid.UUID) (*model.CampaignContact, error) {
	contact, ok := m.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return contact, nil
}

func (m *mockDataStore) FindPendingContacts(_ context.Context, campaignID uuid.UUID) ([]*model.CampaignContact, error) {
	var contacts []*model.CampaignContact
	for _, c := range m.contacts {
		if c.CampaignID == campaignID && c.Status == model.ContactStatusPending {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

func (m *mockDataStore) UpdateContactStatus(_ context.Context, id uuid.UUID, status model.ContactStatus) error {
	contact, ok := m.contacts[id]
	if !ok {
		return store.ErrNotFound
	}
	contact.Status = status
	return nil
}

func (m *mockDataStore) FindCampaign(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	campaign, ok := m.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return campaign, nil
}

// nopSender resolves every send as delivered.
type nopSender struct{}

func (nopSender) Send(context.Context, *model.CampaignContact) <-chan bool {
	ch := make(chan bool, 1)
	ch <- true
	return ch
}
