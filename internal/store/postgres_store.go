// internal/store/postgres_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/zapblast/zapblast-backend/internal/model"
)

// PostgresStore implements Store over Postgres for deployments that want
// relational status storage instead of redis. The contract is identical;
// message-status writes upsert on (campaign_id, phone).
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) PutCampaign(ctx context.Context, c *model.Campaign) error {
	query := `
        INSERT INTO campaigns (id, name, message_template, total_contacts, invalid_contacts, status, schedule_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        ON CONFLICT (id) DO UPDATE
        SET name=EXCLUDED.name, message_template=EXCLUDED.message_template,
            total_contacts=EXCLUDED.total_contacts, invalid_contacts=EXCLUDED.invalid_contacts,
            status=EXCLUDED.status, schedule_date=EXCLUDED.schedule_date, updated_at=NOW()
    `
	_, err := s.DB.ExecContext(ctx, query,
		c.ID, c.Name, c.MessageTemplate, c.TotalContacts, c.InvalidContacts,
		c.Status, c.ScheduleDate, c.CreatedAt)
	return err
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	query := `
        SELECT id, name, message_template, total_contacts, invalid_contacts, status, schedule_date, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := s.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.MessageTemplate, &c.TotalContacts, &c.InvalidContacts,
		&c.Status, &c.ScheduleDate, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	query := `
        SELECT id, name, message_template, total_contacts, invalid_contacts, status, schedule_date, created_at, updated_at
        FROM campaigns ORDER BY created_at DESC
    `
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []model.Campaign{}
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.MessageTemplate, &c.TotalContacts, &c.InvalidContacts,
			&c.Status, &c.ScheduleDate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (s *PostgresStore) PutContacts(ctx context.Context, campaignID string, contacts []model.Contact) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_contacts WHERE campaign_id=$1`, campaignID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO campaign_contacts (campaign_id, phone, name, email)
        VALUES ($1, $2, $3, $4)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range contacts {
		if _, err := stmt.ExecContext(ctx, campaignID, c.Phone, c.Name, c.Email); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetContacts(ctx context.Context, campaignID string) ([]model.Contact, error) {
	query := `SELECT phone, name, email FROM campaign_contacts WHERE campaign_id=$1 ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.Phone, &c.Name, &c.Email); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *PostgresStore) PutMessageStatus(ctx context.Context, rec model.MessageRecord) error {
	query := `
        INSERT INTO campaign_messages (campaign_id, phone, status, delivery_id, error, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (campaign_id, phone) DO UPDATE
        SET status=EXCLUDED.status, delivery_id=EXCLUDED.delivery_id,
            error=EXCLUDED.error, updated_at=EXCLUDED.updated_at
    `
	_, err := s.DB.ExecContext(ctx, query,
		rec.CampaignID, rec.Phone, rec.Status, rec.DeliveryID, rec.Error, rec.Timestamp)
	return err
}

func (s *PostgresStore) GetMessageStatuses(ctx context.Context, campaignID string) ([]model.MessageRecord, error) {
	query := `
        SELECT campaign_id, phone, status, delivery_id, error, updated_at
        FROM campaign_messages WHERE campaign_id=$1 ORDER BY phone
    `
	rows, err := s.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.MessageRecord{}
	for rows.Next() {
		var rec model.MessageRecord
		if err := rows.Scan(&rec.CampaignID, &rec.Phone, &rec.Status, &rec.DeliveryID, &rec.Error, &rec.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	query := `
        INSERT INTO message_history (campaign_id, phone, status, delivery_id, error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	if _, err := s.DB.ExecContext(ctx, query,
		entry.CampaignID, entry.Phone, entry.Status, entry.DeliveryID, entry.Error, entry.Timestamp); err != nil {
		return err
	}

	// Keep the feed bounded, matching the redis LTRIM behavior.
	trim := `
        DELETE FROM message_history
        WHERE id NOT IN (SELECT id FROM message_history ORDER BY id DESC LIMIT $1)
    `
	_, err := s.DB.ExecContext(ctx, trim, HistoryCap)
	return err
}

func (s *PostgresStore) ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 || limit > HistoryCap {
		limit = HistoryCap
	}
	query := `
        SELECT campaign_id, phone, status, delivery_id, error, created_at
        FROM message_history ORDER BY id DESC LIMIT $1
    `
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.HistoryEntry{}
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.CampaignID, &e.Phone, &e.Status, &e.DeliveryID, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

var _ Store = (*PostgresStore)(nil)
