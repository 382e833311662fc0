package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"walletauth.org/internal/address"
	"walletauth.org/internal/asset"
	"walletauth.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore  { return &userStore{db: s.db} }
func (s *PGStore) Usage(context.Context) UsageStore { return &usageStore{db: s.db} }
func (s *PGStore) Audit(context.Context) AuditStore { return &auditStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `id, email, password_hash, wallet_address, wallet_network,
	asset_policy_id, asset_name, asset_amount, verified_policy_id, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	var (
		network             sql.NullInt64
		policy, name        sql.NullString
		amount              sql.NullInt64
		email, wallet, hash sql.NullString
	)
	if u.WalletNetwork != nil {
		network = sql.NullInt64{Int64: int64(*u.WalletNetwork), Valid: true}
	}
	if u.Asset != nil {
		policy = sql.NullString{String: u.Asset.PolicyID, Valid: true}
		name = sql.NullString{String: u.Asset.AssetName, Valid: true}
		amount = sql.NullInt64{Int64: int64(u.Asset.Amount), Valid: true}
	}
	email = nullString(u.Email)
	wallet = nullString(u.WalletAddress)
	hash = nullString(u.PasswordHash)

	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, wallet_address, wallet_network,
			asset_policy_id, asset_name, asset_amount, verified_policy_id)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, email, hash, wallet, network, policy, name, amount, nullString(u.VerifiedPolicyID),
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *userStore) FindByWallet(ctx context.Context, addresses ...string) (*User, error) {
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		row := s.db.QueryRowContext(ctx,
			`select `+userColumns+` from users where lower(wallet_address)=lower($1)`, addr)
		u, err := scanUser(row)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return u, err
	}
	return nil, ErrNotFound
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u                      User
		email, hash, wallet    sql.NullString
		policy, name, verified sql.NullString
		network, amount        sql.NullInt64
	)
	err := row.Scan(&u.ID, &email, &hash, &wallet, &network,
		&policy, &name, &amount, &verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Email, u.PasswordHash, u.WalletAddress = email.String, hash.String, wallet.String
	u.VerifiedPolicyID = verified.String
	if network.Valid {
		n := address.Network(network.Int64)
		u.WalletNetwork = &n
	}
	if policy.Valid {
		u.Asset = &asset.Asset{PolicyID: policy.String, AssetName: name.String, Amount: uint64(amount.Int64)}
	}
	return &u, nil
}

// Usage store --------------------------------------------------------------
type usageStore struct{ db *sql.DB }

func (s *usageStore) Get(ctx context.Context, walletAddress, unit string) (Usage, error) {
	row := s.db.QueryRowContext(ctx,
		`select usage_count, last_used_at from asset_usage where wallet_address=$1 and unit=$2`,
		walletAddress, unit)
	u := Usage{WalletAddress: walletAddress, Unit: unit}
	var count int64
	if err := row.Scan(&count, &u.LastUsedAt); err != nil {
		if err == sql.ErrNoRows {
			return u, nil
		}
		return Usage{}, err
	}
	u.Count = uint64(count)
	return u, nil
}

func (s *usageStore) Record(ctx context.Context, walletAddress, unit string, at time.Time) (Usage, error) {
	row := s.db.QueryRowContext(ctx,
		`insert into asset_usage(wallet_address, unit, usage_count, last_used_at)
		 values($1,$2,1,$3)
		 on conflict (wallet_address, unit)
		 do update set usage_count = asset_usage.usage_count + 1, last_used_at = excluded.last_used_at
		 returning usage_count, last_used_at`,
		walletAddress, unit, at.UTC())
	u := Usage{WalletAddress: walletAddress, Unit: unit}
	var count int64
	if err := row.Scan(&count, &u.LastUsedAt); err != nil {
		return Usage{}, err
	}
	u.Count = uint64(count)
	return u, nil
}

// Audit store --------------------------------------------------------------
type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, subject, action, result, metadata, trace_id)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.OccurredAt, entry.Subject, entry.Action, entry.Result, meta, entry.TraceID,
	)
	return err
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation matches the Postgres unique_violation SQLSTATE.
func isUniqueViolation(err error) bool {
	var coded interface{ SQLState() string }
	return errors.As(err, &coded) && coded.SQLState() == "23505"
}
