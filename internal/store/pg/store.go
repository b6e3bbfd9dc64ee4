package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smsgate/internal/consent"
	"smsgate/internal/domain"
	"smsgate/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InsertMessage(ctx context.Context, m domain.Message) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO messages (id, tenant_id, direction, channel, body, from_phone, to_phone, status,
		                      external_id, retry_count, error_code, error_msg, contact_id,
		                      created_at, updated_at, delivered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, m.ID, m.TenantID, m.Direction, m.Channel, m.Body, m.FromPhone, m.ToPhone, m.Status,
		nullIfEmpty(m.ExternalID), m.RetryCount, nullIfEmpty(m.ErrorCode), nullIfEmpty(m.ErrorMsg),
		nullIfEmpty(m.ContactID), m.CreatedAt, m.UpdatedAt, m.DeliveredAt)
	return err
}

func (s *Store) GetMessage(ctx context.Context, id string) (domain.Message, bool, error) {
	return s.scanMessage(ctx, `WHERE id=$1`, id)
}

func (s *Store) FindMessageByExternalID(ctx context.Context, tenantID, externalID string) (domain.Message, bool, error) {
	return s.scanMessage(ctx, `WHERE tenant_id=$1 AND external_id=$2`, tenantID, externalID)
}

func (s *Store) scanMessage(ctx context.Context, where string, args ...any) (domain.Message, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, tenant_id, direction, channel, body, from_phone, to_phone, status,
		       COALESCE(external_id,''), retry_count, COALESCE(error_code,''), COALESCE(error_msg,''),
		       COALESCE(contact_id,''), created_at, updated_at, delivered_at
		FROM messages `+where, args...)

	var m domain.Message
	err := row.Scan(&m.ID, &m.TenantID, &m.Direction, &m.Channel, &m.Body, &m.FromPhone, &m.ToPhone,
		&m.Status, &m.ExternalID, &m.RetryCount, &m.ErrorCode, &m.ErrorMsg, &m.ContactID,
		&m.CreatedAt, &m.UpdatedAt, &m.DeliveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	return m, true, nil
}

// UpdateMessageStatus persists a transitioned message, compare-and-swap on
// the status the caller transitioned from. A false return means another
// writer got there first; the caller treats it as a transition conflict.
func (s *Store) UpdateMessageStatus(ctx context.Context, m domain.Message, from domain.Status) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE messages
		SET status=$3, external_id=$4, retry_count=$5, error_code=$6, error_msg=$7,
		    updated_at=$8, delivered_at=$9
		WHERE id=$1 AND status=$2
	`, m.ID, from, m.Status, nullIfEmpty(m.ExternalID), m.RetryCount,
		nullIfEmpty(m.ErrorCode), nullIfEmpty(m.ErrorMsg), m.UpdatedAt, m.DeliveredAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// GetConsent returns the governing record for a (phone, type) pair. A
// tenant-wide opt-out outranks a type-specific opt-in; otherwise the exact
// type wins over an 'all' record.
func (s *Store) GetConsent(ctx context.Context, tenantID, phone string, typ consent.Type) (consent.Record, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT phone, COALESCE(region,''), status, source, type,
		       COALESCE(verification_method,''), COALESCE(legal_basis,''),
		       opt_in_date, opt_out_date, version, audit_trail, metadata, created_at, updated_at
		FROM consents
		WHERE tenant_id=$1 AND phone=$2 AND (type=$3 OR type='all')
		ORDER BY CASE WHEN status='opted_out' THEN 0 WHEN type=$3 THEN 1 ELSE 2 END
		LIMIT 1
	`, tenantID, phone, typ)

	var r consent.Record
	var auditJSON, metaJSON []byte
	err := row.Scan(&r.PhoneNumber, &r.Region, &r.Status, &r.Source, &r.Type,
		&r.VerificationMethod, &r.LegalBasis, &r.OptInDate, &r.OptOutDate,
		&r.Version, &auditJSON, &metaJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return consent.Record{}, false, nil
	}
	if err != nil {
		return consent.Record{}, false, err
	}
	_ = json.Unmarshal(auditJSON, &r.AuditTrail)
	_ = json.Unmarshal(metaJSON, &r.Metadata)
	return r, true, nil
}

// SaveConsent upserts a consent record with optimistic concurrency on the
// version column. expectedVersion 0 means the record must not exist yet.
func (s *Store) SaveConsent(ctx context.Context, tenantID string, r consent.Record, expectedVersion int) (bool, error) {
	auditJSON, _ := json.Marshal(r.AuditTrail)
	metaJSON, _ := json.Marshal(r.Metadata)

	if expectedVersion == 0 {
		ct, err := s.DB.Exec(ctx, `
			INSERT INTO consents (tenant_id, phone, region, status, source, type,
			                      verification_method, legal_basis, opt_in_date, opt_out_date,
			                      version, audit_trail, metadata, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (tenant_id, phone, type) DO NOTHING
		`, tenantID, r.PhoneNumber, nullIfEmpty(r.Region), r.Status, r.Source, r.Type,
			nullIfEmpty(string(r.VerificationMethod)), nullIfEmpty(string(r.LegalBasis)),
			r.OptInDate, r.OptOutDate, r.Version, auditJSON, metaJSON, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return false, err
		}
		return ct.RowsAffected() > 0, nil
	}

	ct, err := s.DB.Exec(ctx, `
		UPDATE consents
		SET status=$4, source=$5, verification_method=$6, legal_basis=$7,
		    opt_in_date=$8, opt_out_date=$9, version=$10, audit_trail=$11, metadata=$12, updated_at=$13
		WHERE tenant_id=$1 AND phone=$2 AND type=$3 AND version=$14
	`, tenantID, r.PhoneNumber, r.Type, r.Status, r.Source,
		nullIfEmpty(string(r.VerificationMethod)), nullIfEmpty(string(r.LegalBasis)),
		r.OptInDate, r.OptOutDate, r.Version, auditJSON, metaJSON, r.UpdatedAt, expectedVersion)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) FindContactByPhone(ctx context.Context, tenantID, phone string) (store.Contact, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, tenant_id, phone, COALESCE(name,''), created_at
		FROM contacts WHERE tenant_id=$1 AND phone=$2
	`, tenantID, phone)

	var c store.Contact
	err := row.Scan(&c.ID, &c.TenantID, &c.Phone, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Contact{}, false, nil
	}
	if err != nil {
		return store.Contact{}, false, err
	}
	return c, true, nil
}

// TenantTier reads the tenant's billing tier; defaults to free when the
// tenant row is missing.
func (s *Store) TenantTier(ctx context.Context, tenantID string) (string, error) {
	var tier string
	err := s.DB.QueryRow(ctx, `SELECT tier FROM tenants WHERE id=$1`, tenantID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return "free", nil
	}
	if err != nil {
		return "", err
	}
	return tier, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
