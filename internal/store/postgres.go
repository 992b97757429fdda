package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapflow/dispatch/internal/model"
)

// Postgres implements Store backed by a pgx connection pool.
type Postgres struct {
	db *DB
}

// NewPostgres creates a Postgres store using the given connection pool.
func NewPostgres(db *DB) *Postgres {
	return &Postgres{db: db}
}

const contactWithRelationsQuery = `
SELECT cc.id, cc.campaign_id, cc.status,
       c.tenant_id, c.name, c.status,
       t.id, t.content,
       cu.id, cu.tenant_id, cu.name, cu.phone
FROM campaign_contacts cc
JOIN campaigns c ON c.id = cc.campaign_id
LEFT JOIN message_templates t ON t.id = c.template_id
JOIN customers cu ON cu.id = cc.customer_id
`

// FindContactWithRelations loads a contact with its campaign, template, and customer.
func (p *Postgres) FindContactWithRelations(ctx context.Context, id uuid.UUID) (*model.CampaignContact, error) {
	row := p.db.Pool.QueryRow(ctx, contactWithRelationsQuery+"WHERE cc.id = $1", id)

	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query contact %s: %w", id, err)
	}
	return contact, nil
}

// FindPendingContacts returns all pending contacts of a campaign in insertion order.
func (p *Postgres) FindPendingContacts(ctx context.Context, campaignID uuid.UUID) ([]*model.CampaignContact, error) {
	rows, err := p.db.Pool.Query(ctx,
		contactWithRelationsQuery+"WHERE cc.campaign_id = $1 AND cc.status = $2 ORDER BY cc.created_at, cc.id",
		campaignID, model.ContactStatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending contacts for campaign %s: %w", campaignID, err)
	}
	defer rows.Close()

	var contacts []*model.CampaignContact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending contacts: %w", err)
	}
	return contacts, nil
}

// UpdateContactStatus sets the status of a contact.
func (p *Postgres) UpdateContactStatus(ctx context.Context, id uuid.UUID, status model.ContactStatus) error {
	tag, err := p.db.Pool.Exec(ctx,
		"UPDATE campaign_contacts SET status = $2, updated_at = now() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("update contact %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindCampaign loads a campaign with its template.
func (p *Postgres) FindCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	row := p.db.Pool.QueryRow(ctx, `
SELECT c.id, c.tenant_id, c.name, c.status, t.id, t.content
FROM campaigns c
LEFT JOIN message_templates t ON t.id = c.template_id
WHERE c.id = $1`, id)

	var (
		campaign        model.Campaign
		templateID      *uuid.UUID
		templateContent *string
	)
	err := row.Scan(&campaign.ID, &campaign.TenantID, &campaign.Name, &campaign.Status,
		&templateID, &templateContent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query campaign %s: %w", id, err)
	}
	if templateID != nil {
		campaign.Template = &model.MessageTemplate{ID: *templateID}
		if templateContent != nil {
			campaign.Template.Content = *templateContent
		}
	}
	return &campaign, nil
}

// scanContact scans one row of contactWithRelationsQuery.
func scanContact(row pgx.Row) (*model.CampaignContact, error) {
	var (
		contact         model.CampaignContact
		campaign        model.Campaign
		customer        model.Customer
		templateID      *uuid.UUID
		templateContent *string
	)
	err := row.Scan(
		&contact.ID, &contact.CampaignID, &contact.Status,
		&campaign.TenantID, &campaign.Name, &campaign.Status,
		&templateID, &templateContent,
		&customer.ID, &customer.TenantID, &customer.Name, &customer.Phone,
	)
	if err != nil {
		return nil, err
	}
	campaign.ID = contact.CampaignID
	if templateID != nil {
		campaign.Template = &model.MessageTemplate{ID: *templateID}
		if templateContent != nil {
			campaign.Template.Content = *templateContent
		}
	}
	contact.Campaign = &campaign
	contact.Customer = &customer
	return &contact, nil
}
