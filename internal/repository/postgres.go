// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/twicks95/mmi-membership-service/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrEmailExists возвращается при попытке регистрации с уже занятой почтой.
var (
	ErrEmailExists = errors.New("email already registered")
	// ErrPhoneExists возвращается при попытке регистрации с уже занятым номером телефона.
	ErrPhoneExists = errors.New("phone number already registered")
	// ErrUserNotFound возвращается, если участник не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientBalance возвращается при попытке списания баллов сверх баланса.
	ErrInsufficientBalance = errors.New("insufficient point balance")
)

// Имена частичных уникальных индексов t2_user, по которым различаются конфликты.
const (
	emailConstraint = "uq_user_email"
	phoneConstraint = "uq_user_phone"
)

// queryTimeout ограничивает время выполнения одного запроса к БД.
const queryTimeout = 3 * time.Second

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт пул соединений, дожидается доступности БД
// с экспоненциальным бэкоффом и инициализирует схему через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	backoff := retry.WithMaxRetries(4, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

// CreateUser создаёт нового участника. Конфликты почты и телефона
// различаются по имени нарушенного уникального индекса.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.NewUser) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO t2_user
		     (phone_number, name, email, password, date_of_birth, gender, id_card, current_poin, membership_id)
		 VALUES ($1, $2, $3, $4, $5, NULL, $6, $7, $8)
		 RETURNING id`,
		u.PhoneNumber, u.Name, u.Email, string(u.PasswordHash), u.DateOfBirth, u.IDCard, u.CurrentPoin, u.MembershipID,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case emailConstraint:
				return 0, fmt.Errorf("%w: %s", ErrEmailExists, u.Email)
			case phoneConstraint:
				return 0, fmt.Errorf("%w: %s", ErrPhoneExists, u.PhoneNumber)
			}
			return 0, fmt.Errorf("%w: %s", ErrEmailExists, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

const userColumns = `id, phone_number, name, email, password, date_of_birth, gender, id_card, current_poin, membership_id, is_deleted, created_at`

func (r *PostgresRepository) getUserWhere(ctx context.Context, clause string, arg any) (*model.User, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM t2_user WHERE `+clause+` AND NOT is_deleted`,
		arg,
	)

	var (
		u        model.User
		password string
	)
	err := row.Scan(
		&u.ID, &u.PhoneNumber, &u.Name, &u.Email, &password, &u.DateOfBirth,
		&u.Gender, &u.IDCard, &u.CurrentPoin, &u.MembershipID, &u.IsDeleted, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.PasswordHash = []byte(password)

	return &u, nil
}

// GetUserByEmail возвращает неудалённого участника по адресу почты.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUserWhere(ctx, "email = $1", email)
}

// GetUserByPhone возвращает неудалённого участника по номеру телефона.
func (r *PostgresRepository) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	return r.getUserWhere(ctx, "phone_number = $1", phone)
}

// GetUserProfile возвращает участника вместе с данными его уровня членства.
func (r *PostgresRepository) GetUserProfile(ctx context.Context, userID int64) (*model.UserProfile, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx,
		`SELECT
		     u.id, u.phone_number, u.name, u.email, u.date_of_birth, u.gender,
		     u.id_card, u.current_poin, u.membership_id, u.created_at,
		     m.name, m.description
		 FROM t2_user u
		 JOIN t1_membership m ON u.membership_id = m.id
		 WHERE u.id = $1 AND NOT u.is_deleted`,
		userID,
	)

	var p model.UserProfile
	err := row.Scan(
		&p.ID, &p.PhoneNumber, &p.Name, &p.Email, &p.DateOfBirth, &p.Gender,
		&p.IDCard, &p.CurrentPoin, &p.MembershipID, &p.CreatedAt,
		&p.MembershipName, &p.MembershipDescription,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user profile: %w", err)
	}

	return &p, nil
}

// DeductPoints атомарно списывает баллы с баланса участника и возвращает
// новый баланс. Условный UPDATE исключает уход баланса в минус и гонку
// одновременных покупок.
func (r *PostgresRepository) DeductPoints(ctx context.Context, userID, price int64) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		`UPDATE t2_user
		 SET current_poin = current_poin - $2
		 WHERE id = $1 AND NOT is_deleted AND current_poin >= $2
		 RETURNING current_poin`,
		userID, price,
	).Scan(&balance)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("deduct points: %w", err)
		}

		// Строка не обновлена: либо участника нет, либо не хватает баллов.
		var current int64
		err = tx.QueryRow(ctx,
			`SELECT current_poin FROM t2_user WHERE id = $1 AND NOT is_deleted`,
			userID,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, ErrUserNotFound
			}
			return 0, fmt.Errorf("check balance: %w", err)
		}
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, current, price)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return balance, nil
}

// GetUserVouchers возвращает ваучеры участника вместе с их типами и сроками действия.
func (r *PostgresRepository) GetUserVouchers(ctx context.Context, userID int64, limit int) ([]model.UserVoucher, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT v.id, v.voucher_type_id, v.name, v.value, v.voucher_price, vt.name, va.expired_at
		 FROM t2_user u
		 JOIN t3_voucher_available va ON u.phone_number = va.phone_number
		 JOIN t2_voucher v ON va.voucher_id = v.id
		 JOIN t1_voucher_type vt ON v.voucher_type_id = vt.id
		 WHERE u.id = $1 AND NOT u.is_deleted
		 ORDER BY va.expired_at
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select user vouchers: %w", err)
	}
	defer rows.Close()

	var res []model.UserVoucher
	for rows.Next() {
		var v model.UserVoucher
		if err := rows.Scan(&v.ID, &v.TypeID, &v.Name, &v.Value, &v.Price, &v.TypeName, &v.ExpiredAt); err != nil {
			return nil, fmt.Errorf("scan user voucher: %w", err)
		}
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListVouchers возвращает каталог ваучеров вместе с их типами.
func (r *PostgresRepository) ListVouchers(ctx context.Context, limit int) ([]model.CatalogVoucher, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT v.id, v.voucher_type_id, v.name, v.value, v.voucher_price, vt.name
		 FROM t2_voucher v
		 JOIN t1_voucher_type vt ON v.voucher_type_id = vt.id
		 ORDER BY v.id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select vouchers: %w", err)
	}
	defer rows.Close()

	var res []model.CatalogVoucher
	for rows.Next() {
		var v model.CatalogVoucher
		if err := rows.Scan(&v.ID, &v.TypeID, &v.Name, &v.Value, &v.Price, &v.TypeName); err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetTransactionHistory возвращает сводную историю операций участника:
// покупки, начисления и списания баллов с данными магазина и ваучера.
func (r *PostgresRepository) GetTransactionHistory(ctx context.Context, userID int64, limit int) ([]model.TransactionRecord, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT
		     u.phone_number, u.name, u.current_poin,
		     p.created_at, p.invoice_number,
		     st.store_name, ct.city_name, td.district_name,
		     pt.poin_amount, pt.invoice_redeem,
		     rt.redeemed_poin,
		     pd.product_name, pd.quantity, pd.price,
		     v.name, v.value, vt.name
		 FROM t2_user u
		 LEFT JOIN t3_purchase p ON u.phone_number = p.phone_number
		 LEFT JOIN t3_poin_transaction pt ON p.phone_number = pt.phone_number
		 LEFT JOIN t3_redeem_transaction rt ON pt.invoice_redeem = rt.invoice_redeem
		 LEFT JOIN t4_purchase_detail pd ON p.invoice_number = pd.invoice_number
		 LEFT JOIN t2_voucher v ON rt.voucher_id = v.id
		 LEFT JOIN t1_voucher_type vt ON v.voucher_type_id = vt.id
		 LEFT JOIN t2_store st ON p.store_id = st.id
		 LEFT JOIN t1_city ct ON st.store_city_id = ct.id
		 LEFT JOIN t1_district td ON st.store_district_id = td.id
		 WHERE u.id = $1 AND NOT u.is_deleted
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select transaction history: %w", err)
	}
	defer rows.Close()

	var res []model.TransactionRecord
	for rows.Next() {
		var t model.TransactionRecord
		err := rows.Scan(
			&t.PhoneNumber, &t.Name, &t.CurrentPoin,
			&t.TransactionDate, &t.InvoiceNumber,
			&t.StoreName, &t.CityName, &t.DistrictName,
			&t.PoinAmount, &t.InvoiceRedeem,
			&t.RedeemedPoin,
			&t.ProductName, &t.Quantity, &t.ProductPrice,
			&t.VoucherName, &t.VoucherValue, &t.VoucherType,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
