package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zapflow/dispatch/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// ContactStore provides access to campaign contacts and their relations.
type ContactStore interface {
	// FindContactWithRelations loads a contact together with its campaign
	// (including template) and customer. Returns ErrNotFound if the contact
	// does not exist.
	FindContactWithRelations(ctx context.Context, id uuid.UUID) (*model.CampaignContact, error)
	// FindPendingContacts returns all contacts of a campaign whose status is
	// pending, in stable storage order, with relations loaded.
	FindPendingContacts(ctx context.Context, campaignID uuid.UUID) ([]*model.CampaignContact, error)
	// UpdateContactStatus sets the terminal status of a contact.
	UpdateContactStatus(ctx context.Context, id uuid.UUID, status model.ContactStatus) error
}

// CampaignStore provides access to campaigns.
type CampaignStore interface {
	// FindCampaign loads a campaign with its template. Returns ErrNotFound
	// if the campaign does not exist.
	FindCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
}

// Store combines all entity stores the dispatch pipeline depends on.
type Store interface {
	ContactStore
	CampaignStore
}
