package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quill-app/quill/internal/domain"
)

// Postgres persists everything in PostgreSQL via database/sql.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed repository.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Repository = (*Postgres)(nil)

const userColumns = `id, email, password_hash, name, plan, subscription_status,
	stripe_customer_id, stripe_subscription_id, current_period_end,
	cancel_at_period_end, first_payment_at, created_at, updated_at`

// =============================================================================
// ProfileStore
// =============================================================================

func (p *Postgres) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, plan, subscription_status,
			cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Name,
		string(u.Subscription.Plan), string(u.Subscription.Status),
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return storeErr(err)
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

func (p *Postgres) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerID))
}

func (p *Postgres) EnsureProfile(ctx context.Context, id uuid.UUID, email, name string) error {
	// The conflict branch deliberately leaves every subscription column
	// alone: identity sync must never downgrade a paid user.
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, plan, subscription_status,
			cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, '', $3, $4, $5, FALSE, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			updated_at = NOW()`,
		id, strings.ToLower(email), name,
		string(domain.PlanFree), string(domain.SubscriptionStatusInactive),
	)
	return storeErr(err)
}

func (p *Postgres) MergeSubscription(ctx context.Context, id uuid.UUID, patch domain.SubscriptionPatch) error {
	// Single-statement merge; NULL patch fields fall through to the
	// stored value, so concurrent webhook events cannot lose updates.
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET
			plan = COALESCE($2, plan),
			subscription_status = COALESCE($3, subscription_status),
			stripe_customer_id = COALESCE($4, stripe_customer_id),
			stripe_subscription_id = COALESCE($5, stripe_subscription_id),
			current_period_end = COALESCE($6, current_period_end),
			cancel_at_period_end = COALESCE($7, cancel_at_period_end),
			updated_at = NOW()
		WHERE id = $1`,
		id,
		planArg(patch.Plan), statusArg(patch.Status),
		patch.StripeCustomerID, patch.StripeSubID,
		patch.CurrentPeriodEnd, patch.CancelAtPeriodEnd,
	)
	if err != nil {
		return storeErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`,
		id, customerID)
	if err != nil {
		return storeErr(err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return storeErr(err)
	} else if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) MarkFirstPayment(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	// One-way transition enforced in the WHERE clause; a replayed event
	// matches zero rows and reports not-newly-set.
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET first_payment_at = $2, updated_at = NOW()
		WHERE id = $1 AND first_payment_at IS NULL`,
		id, at)
	if err != nil {
		return false, storeErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err)
	}
	return rows == 1, nil
}

func (p *Postgres) scanUser(row *sql.Row) (*domain.User, error) {
	u := &domain.User{}
	var (
		plan, status     string
		customerID       sql.NullString
		subID            sql.NullString
		periodEnd        sql.NullTime
		firstPayment     sql.NullTime
		cancelAtPeriodEn bool
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &plan, &status,
		&customerID, &subID, &periodEnd, &cancelAtPeriodEn, &firstPayment,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	u.Subscription = domain.Subscription{
		Plan:              domain.Plan(plan),
		Status:            domain.SubscriptionStatus(status),
		StripeCustomerID:  customerID.String,
		StripeSubID:       subID.String,
		CancelAtPeriodEnd: cancelAtPeriodEn,
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		u.Subscription.CurrentPeriodEnd = &t
	}
	if firstPayment.Valid {
		t := firstPayment.Time
		u.Subscription.FirstPaymentAt = &t
	}
	return u, nil
}

// =============================================================================
// UsageStore
// =============================================================================

// counterColumns whitelists ledger columns; counter names come from the
// domain enum, never from request input.
var counterColumns = map[domain.Counter]string{
	domain.CounterPersonalChatMessages: "personal_chat_messages",
	domain.CounterPersonChatMessages:   "person_chat_messages",
	domain.CounterStatisticsAccess:     "statistics_access",
	domain.CounterTranscriptions:       "transcriptions",
	domain.CounterPeopleManaged:        "people_managed",
}

func (p *Postgres) GetMonthlyUsage(ctx context.Context, userID uuid.UUID, month domain.MonthKey) (domain.UsageCounters, error) {
	usage := domain.UsageCounters{Month: month}
	err := p.db.QueryRowContext(ctx, `
		SELECT personal_chat_messages, person_chat_messages, statistics_access,
			transcriptions, people_managed
		FROM usage_counters WHERE user_id = $1 AND month = $2`,
		userID, string(month)).Scan(
		&usage.PersonalChatMessages, &usage.PersonChatMessages,
		&usage.StatisticsAccess, &usage.Transcriptions, &usage.PeopleManaged)
	if errors.Is(err, sql.ErrNoRows) {
		return usage, nil
	}
	if err != nil {
		return domain.UsageCounters{}, storeErr(err)
	}
	return usage, nil
}

func (p *Postgres) IncrementUsage(ctx context.Context, userID uuid.UUID, month domain.MonthKey, counter domain.Counter) error {
	col, ok := counterColumns[counter]
	if !ok {
		return fmt.Errorf("repository: unknown counter %q", counter)
	}
	// Single atomic upsert; two rapid requests from the same user both
	// land their +1 without a read-then-write race.
	q := fmt.Sprintf(`
		INSERT INTO usage_counters (user_id, month, %[1]s)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, month)
		DO UPDATE SET %[1]s = usage_counters.%[1]s + 1, updated_at = NOW()`, col)
	_, err := p.db.ExecContext(ctx, q, userID, string(month))
	return storeErr(err)
}

// =============================================================================
// SessionStore
// =============================================================================

func (p *Postgres) CreateSession(ctx context.Context, s *domain.Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt)
	return storeErr(err)
}

func (p *Postgres) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	s := &domain.Session{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM sessions WHERE token_hash = $1`, tokenHash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return s, nil
}

func (p *Postgres) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return storeErr(err)
}

func (p *Postgres) DeleteExpiredSessions(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < NOW()`)
	return storeErr(err)
}

// =============================================================================
// PersonStore
// =============================================================================

func (p *Postgres) CreatePerson(ctx context.Context, person *domain.Person) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO people (id, user_id, name, relation, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		person.ID, person.UserID, person.Name, person.Relation, person.Notes,
		person.CreatedAt, person.UpdatedAt)
	return storeErr(err)
}

func (p *Postgres) GetPerson(ctx context.Context, userID, id uuid.UUID) (*domain.Person, error) {
	person := &domain.Person{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, relation, notes, created_at, updated_at
		FROM people WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&person.ID, &person.UserID, &person.Name, &person.Relation,
			&person.Notes, &person.CreatedAt, &person.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return person, nil
}

func (p *Postgres) ListPeople(ctx context.Context, userID uuid.UUID) ([]domain.Person, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, name, relation, notes, created_at, updated_at
		FROM people WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() { _ = rows.Close() }()

	var people []domain.Person
	for rows.Next() {
		var person domain.Person
		if err := rows.Scan(&person.ID, &person.UserID, &person.Name,
			&person.Relation, &person.Notes, &person.CreatedAt, &person.UpdatedAt); err != nil {
			return nil, storeErr(err)
		}
		people = append(people, person)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return people, nil
}

// =============================================================================
// Helpers
// =============================================================================

func planArg(p *domain.Plan) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func statusArg(s *domain.SubscriptionStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// storeErr tags infrastructure failures so callers can fail closed.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
