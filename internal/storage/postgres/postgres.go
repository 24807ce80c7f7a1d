package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"broker_service/internal/config"
	"broker_service/internal/models"
	"broker_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, username, email, passwordHash string) (models.User, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at;
	`

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}

	err := r.pool.QueryRow(ctx, query, username, email, passwordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Unique constraints back up the coordinator's pre-checks.
			if pgErr.ConstraintName == "users_username_key" {
				return models.User{}, storage.ErrUsernameTaken
			}
			return models.User{}, storage.ErrEmailTaken
		}

		return models.User{}, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return user, nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM users
		WHERE username = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) SaveRefreshToken(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	const op = "storage.postgres.SaveRefreshToken"

	const query = `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3);
	`

	_, err := r.pool.Exec(ctx, query, token, userID, expiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return storage.ErrTokenExists
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	const query = `
		SELECT revoked
		FROM refresh_tokens
		WHERE token = $1;
	`

	var revoked bool

	err := r.pool.QueryRow(ctx, query, token).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, storage.ErrTokenNotFound
		}

		return false, err
	}

	return revoked, nil
}

// RevokeRefreshToken flips the revoked flag and returns the stored state.
// The flag is monotonic: rows are never un-revoked or deleted.
func (r *PostgresRepo) RevokeRefreshToken(ctx context.Context, token string) (bool, error) {
	const query = `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token = $1
		RETURNING revoked;
	`

	var revoked bool

	err := r.pool.QueryRow(ctx, query, token).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, storage.ErrTokenNotFound
		}

		return false, err
	}

	return revoked, nil
}

func (r *PostgresRepo) Holdings(ctx context.Context, userID int64) ([]models.Holding, error) {
	const op = "storage.postgres.Holdings"

	const query = `
		SELECT id, user_id, symbol, quantity, avg_price, current_price
		FROM holdings
		WHERE user_id = $1;
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var holdings []models.Holding

	for rows.Next() {
		var h models.Holding

		err := rows.Scan(&h.ID, &h.UserID, &h.Symbol, &h.Quantity, &h.AvgPrice, &h.CurrentPrice)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		holdings = append(holdings, h)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return holdings, nil
}

func (r *PostgresRepo) Positions(ctx context.Context, userID int64) ([]models.Position, error) {
	const op = "storage.postgres.Positions"

	const query = `
		SELECT id, user_id, symbol, quantity, entry_price, current_price, unrealized_pnl
		FROM positions
		WHERE user_id = $1;
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var positions []models.Position

	for rows.Next() {
		var p models.Position

		err := rows.Scan(&p.ID, &p.UserID, &p.Symbol, &p.Quantity, &p.EntryPrice, &p.CurrentPrice, &p.UnrealizedPnL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		positions = append(positions, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return positions, nil
}

func (r *PostgresRepo) Orders(ctx context.Context, userID int64) ([]models.Order, error) {
	const op = "storage.postgres.Orders"

	const query = `
		SELECT id, user_id, symbol, order_type, quantity, price, status, timestamp, realized_pnl
		FROM orders
		WHERE user_id = $1;
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var orders []models.Order

	for rows.Next() {
		var o models.Order

		err := rows.Scan(&o.ID, &o.UserID, &o.Symbol, &o.OrderType, &o.Quantity, &o.Price, &o.Status, &o.Timestamp, &o.RealizedPnL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		orders = append(orders, o)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return orders, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
