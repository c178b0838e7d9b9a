package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All monetary values are stored as NUMERIC for exact decimal
// precision and scanned through TEXT into decimal.Decimal.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, balance, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4)
		 RETURNING id`,
		u.Username, u.Email, u.Balance.String(), u.CreatedAt,
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %s: %w", u.Email, ErrDuplicate)
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, email, balance::TEXT, created_at
		 FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, email, balance::TEXT, created_at
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var balance string
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &balance, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Balance, _ = decimal.NewFromString(balance)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) GetPositions(ctx context.Context, userID int64) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity, average_price::TEXT, updated_at
		 FROM positions WHERE user_id = $1 AND quantity > 0 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity, average_price::TEXT, updated_at
		 FROM positions WHERE quantity > 0 ORDER BY user_id, symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *PostgresStore) TradesByUser(ctx context.Context, userID int64) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, trade_type, quantity, executed_price::TEXT, executed_at
		 FROM trades WHERE user_id = $1 ORDER BY executed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var price string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Quantity, &price, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.ExecutedPrice, _ = decimal.NewFromString(price)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InTx runs fn inside a single database transaction. Rollback on any
// error guarantees balance, position and trade writes land together or
// not at all.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&pgTx{tx: pgtx}); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

// pgTx implements Tx on a pgx transaction. FOR UPDATE row locks provide
// the per-user and per-(user,symbol) serialization.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) UserForUpdate(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx,
		`SELECT id, username, email, balance::TEXT, created_at
		 FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET balance = $2::NUMERIC WHERE id = $1`,
		id, balance.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update balance for user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *pgTx) PositionForUpdate(ctx context.Context, userID int64, symbol string) (*model.Position, error) {
	var p model.Position
	var avg string
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, symbol, quantity, average_price::TEXT, updated_at
		 FROM positions WHERE user_id = $1 AND symbol = $2 FOR UPDATE`,
		userID, symbol).
		Scan(&p.UserID, &p.Symbol, &p.Quantity, &avg, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.Position{UserID: userID, Symbol: symbol, AverageCost: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	p.AverageCost, _ = decimal.NewFromString(avg)
	return &p, nil
}

func (t *pgTx) UpsertPosition(ctx context.Context, p *model.Position) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO positions (user_id, symbol, quantity, average_price, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, now())
		 ON CONFLICT (user_id, symbol) DO UPDATE SET
		     quantity = EXCLUDED.quantity,
		     average_price = EXCLUDED.average_price,
		     updated_at = now()`,
		p.UserID, p.Symbol, p.Quantity, p.AverageCost.String())
	return err
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *model.Trade) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO trades (id, user_id, symbol, trade_type, quantity, executed_price, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
		tr.ID, tr.UserID, tr.Symbol, string(tr.Side), tr.Quantity,
		tr.ExecutedPrice.String(), tr.ExecutedAt)
	return err
}

// --- scan helpers ---

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var balance string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &balance, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Balance, _ = decimal.NewFromString(balance)
	return &u, nil
}

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var avg string
		if err := rows.Scan(&p.UserID, &p.Symbol, &p.Quantity, &avg, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.AverageCost, _ = decimal.NewFromString(avg)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
