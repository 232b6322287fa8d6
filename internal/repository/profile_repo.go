package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by writes that target a profile that does not exist.
var ErrNotFound = errors.New("profile_not_found")

// ProfileRepository defines methods for accessing and mutating profiles.
// Every conditional write reports whether it changed the row so callers can
// tell a duplicate delivery apart from a fresh one.
type ProfileRepository interface {
	CreateProfile(ctx context.Context, p *model.Profile) error
	// GetProfileByID returns nil, nil when the profile does not exist.
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByCustomerID(ctx context.Context, customerID string) (*model.Profile, error)
	// SetCustomerID stores customerID only if the profile has none yet and
	// returns whichever id is stored afterwards.
	SetCustomerID(ctx context.Context, userID, customerID string) (string, error)
	ApplySubscription(ctx context.Context, upd *model.SubscriptionUpdate) (bool, error)
	UpdateSubscriptionStatus(ctx context.Context, userID, subscriptionID string, status model.SubscriptionStatus) (bool, error)
	RecordPaymentSucceeded(ctx context.Context, rec *model.PaymentRecord) (bool, error)
	RecordPaymentFailed(ctx context.Context, userID string) error
	ExpireTrials(ctx context.Context, now time.Time) (int64, error)
	ListBillingDueBetween(ctx context.Context, from, to time.Time) ([]model.Profile, error)
}

type profileRepo struct {
	pool *pgxpool.Pool
}

// NewProfileRepo creates a Postgres-backed ProfileRepository.
func NewProfileRepo(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepo{pool: pool}
}

const profileColumns = `
        id, name, email, subscription_status, is_trialing, trial_ends_at,
        has_ever_trialed, subscribed_at, next_billing_at, last_payment_at, payment_status,
        dodopayments_customer_id, dodopayments_subscription_id,
        dodopayments_last_payment_id, chosen_category_id, created_at, updated_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	var status string
	var paymentStatus *string
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&status,
		&p.IsTrialing,
		&p.TrialEndsAt,
		&p.HasEverTrialed,
		&p.SubscribedAt,
		&p.NextBillingAt,
		&p.LastPaymentAt,
		&paymentStatus,
		&p.DodoCustomerID,
		&p.DodoSubscriptionID,
		&p.DodoLastPaymentID,
		&p.ChosenCategoryID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.SubscriptionStatus = model.SubscriptionStatus(status)
	if paymentStatus != nil {
		ps := model.PaymentStatus(*paymentStatus)
		p.PaymentStatus = &ps
	}
	return &p, nil
}

func (r *profileRepo) CreateProfile(ctx context.Context, p *model.Profile) error {
	if p.SubscriptionStatus == "" {
		p.SubscriptionStatus = model.StatusNone
	}
	q := `
        INSERT INTO profiles (id, name, email, subscription_status, chosen_category_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING` + profileColumns
	created, err := scanProfile(r.pool.QueryRow(ctx, q, p.ID, p.Name, p.Email, string(p.SubscriptionStatus), p.ChosenCategoryID))
	if err != nil {
		return fmt.Errorf("creating profile %s: %w", p.ID, err)
	}
	*p = *created
	return nil
}

func (r *profileRepo) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	q := `SELECT` + profileColumns + `
        FROM profiles
        WHERE id = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching profile %s: %w", id, err)
	}
	return p, nil
}

func (r *profileRepo) GetProfileByCustomerID(ctx context.Context, customerID string) (*model.Profile, error) {
	q := `SELECT` + profileColumns + `
        FROM profiles
        WHERE dodopayments_customer_id = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, q, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching profile for customer %s: %w", customerID, err)
	}
	return p, nil
}

func (r *profileRepo) SetCustomerID(ctx context.Context, userID, customerID string) (string, error) {
	// The trailing SELECT reads the pre-update snapshot, which only matters
	// when the UPDATE matched nothing because an id was already stored.
	const q = `
        WITH upd AS (
            UPDATE profiles
            SET dodopayments_customer_id = $2, updated_at = NOW()
            WHERE id = $1 AND dodopayments_customer_id IS NULL
            RETURNING dodopayments_customer_id
        )
        SELECT dodopayments_customer_id FROM upd
        UNION ALL
        SELECT dodopayments_customer_id FROM profiles
        WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM upd)
    `
	var stored string
	if err := r.pool.QueryRow(ctx, q, userID, customerID).Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("setting customer id for user %s: %w", userID, err)
	}
	return stored, nil
}

func (r *profileRepo) ApplySubscription(ctx context.Context, upd *model.SubscriptionUpdate) (bool, error) {
	const q = `
        UPDATE profiles
        SET
            subscription_status = $2,
            is_trialing = $3,
            trial_ends_at = $4,
            has_ever_trialed = has_ever_trialed OR $5,
            chosen_category_id = COALESCE($6, chosen_category_id),
            dodopayments_subscription_id = $7,
            dodopayments_customer_id = COALESCE($8, dodopayments_customer_id),
            subscribed_at = $9,
            next_billing_at = COALESCE($11, next_billing_at),
            updated_at = NOW()
        WHERE id = $1
          AND NOT (
              dodopayments_subscription_id IS NOT DISTINCT FROM $7
              AND subscription_status = $2
              AND ($10::timestamptz IS NULL OR COALESCE(subscribed_at >= $10, false))
          )
    `
	tag, err := r.pool.Exec(ctx, q,
		upd.UserID,
		string(upd.Status),
		upd.IsTrialing,
		upd.TrialEndsAt,
		upd.MarkTrialed,
		upd.CategoryID,
		upd.SubscriptionID,
		upd.CustomerID,
		upd.SubscribedAt,
		upd.AppliedSince,
		upd.NextBillingAt,
	)
	if err != nil {
		return false, fmt.Errorf("applying subscription %s for user %s: %w", upd.SubscriptionID, upd.UserID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *profileRepo) UpdateSubscriptionStatus(ctx context.Context, userID, subscriptionID string, status model.SubscriptionStatus) (bool, error) {
	const q = `
        UPDATE profiles
        SET
            subscription_status = $3,
            is_trialing = CASE WHEN $3 = 'trialing' THEN is_trialing ELSE false END,
            updated_at = NOW()
        WHERE id = $1
          AND (dodopayments_subscription_id IS NULL OR dodopayments_subscription_id = $2)
          AND NOT (
              dodopayments_subscription_id IS NOT DISTINCT FROM $2
              AND subscription_status = $3
          )
    `
	tag, err := r.pool.Exec(ctx, q, userID, subscriptionID, string(status))
	if err != nil {
		return false, fmt.Errorf("setting status %s for user %s: %w", status, userID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *profileRepo) RecordPaymentSucceeded(ctx context.Context, rec *model.PaymentRecord) (bool, error) {
	const q = `
        UPDATE profiles
        SET
            last_payment_at = $3,
            payment_status = 'succeeded',
            dodopayments_customer_id = COALESCE($4, dodopayments_customer_id),
            dodopayments_last_payment_id = $2,
            updated_at = NOW()
        WHERE id = $1
          AND NOT (
              payment_status IS NOT DISTINCT FROM 'succeeded'
              AND last_payment_at IS NOT DISTINCT FROM $3
              AND dodopayments_last_payment_id IS NOT DISTINCT FROM $2
          )
    `
	tag, err := r.pool.Exec(ctx, q, rec.UserID, rec.PaymentID, rec.PaidAt, rec.CustomerID)
	if err != nil {
		return false, fmt.Errorf("recording payment %s for user %s: %w", rec.PaymentID, rec.UserID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *profileRepo) RecordPaymentFailed(ctx context.Context, userID string) error {
	const q = `UPDATE profiles SET payment_status = 'failed', updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("recording failed payment for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *profileRepo) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	const q = `
        UPDATE profiles
        SET subscription_status = 'trial_ended', is_trialing = false, updated_at = NOW()
        WHERE subscription_status = 'trialing'
          AND trial_ends_at < $1
    `
	tag, err := r.pool.Exec(ctx, q, now)
	if err != nil {
		return 0, fmt.Errorf("expiring trials: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *profileRepo) ListBillingDueBetween(ctx context.Context, from, to time.Time) ([]model.Profile, error) {
	q := `SELECT` + profileColumns + `
        FROM profiles
        WHERE subscription_status IN ('active', 'trialing')
          AND next_billing_at >= $1
          AND next_billing_at < $2
        ORDER BY next_billing_at`
	rows, err := r.pool.Query(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing profiles due between %s and %s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning due profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating due profiles: %w", err)
	}
	return profiles, nil
}
