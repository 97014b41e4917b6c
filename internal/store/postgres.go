package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/cashback/internal/idempotency"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/store/config"
)

// Коды ошибок PostgreSQL
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgStringTooLong        = "22001"
	pgNumericOutOfRange    = "22003"
)

var schema = []string{
	// Кошельки. Одна строка на пользователя, блокируется на время расчета.
	// Ограничения CHECK - последний рубеж против отрицательного баланса.
	"CREATE TABLE IF NOT EXISTS wallets (" +
		" user_id VARCHAR (64) PRIMARY KEY," +
		" cash_balance NUMERIC (14, 2) NOT NULL DEFAULT 0 CHECK (cash_balance >= 0)," +
		" loyalty_balance NUMERIC (14, 2) NOT NULL DEFAULT 0 CHECK (loyalty_balance >= 0)," +
		" total_earned NUMERIC (14, 2) NOT NULL DEFAULT 0 CHECK (total_earned >= 0)," +
		" total_spent NUMERIC (14, 2) NOT NULL DEFAULT 0 CHECK (total_spent >= 0)," +
		" updated_at TIMESTAMPTZ NOT NULL" +
		" );",

	// Журнал операций. Только вставка.
	"CREATE TABLE IF NOT EXISTS transactions (" +
		" id VARCHAR (36) PRIMARY KEY," +
		" user_id VARCHAR (64) NOT NULL," +
		" order_id VARCHAR (36)," +
		" type VARCHAR (10) NOT NULL," +
		" currency VARCHAR (10) NOT NULL," +
		" amount NUMERIC (14, 2) NOT NULL CHECK (amount > 0)," +
		" balance_before NUMERIC (14, 2) NOT NULL," +
		" balance_after NUMERIC (14, 2) NOT NULL," +
		" status VARCHAR (10) NOT NULL," +
		" reference VARCHAR (128) NOT NULL DEFAULT ''," +
		" created_at TIMESTAMPTZ NOT NULL," +
		" completed_at TIMESTAMPTZ" +
		" );",
	"CREATE INDEX IF NOT EXISTS transactions_user_idx ON transactions (user_id, created_at);",

	// Заказы
	"CREATE TABLE IF NOT EXISTS orders (" +
		" id VARCHAR (36) PRIMARY KEY," +
		" user_id VARCHAR (64) NOT NULL," +
		" partner_id VARCHAR (64) NOT NULL," +
		" order_total NUMERIC (14, 2) NOT NULL CHECK (order_total >= 0)," +
		" discount NUMERIC (14, 2) NOT NULL CHECK (discount >= 0 AND discount <= order_total)," +
		" final_amount NUMERIC (14, 2) NOT NULL CHECK (final_amount >= 0)," +
		" cashback_rate NUMERIC (5, 2) NOT NULL," +
		" cashback_amount NUMERIC (14, 2) NOT NULL CHECK (cashback_amount >= 0)," +
		" payment_method VARCHAR (10) NOT NULL," +
		" payment_status VARCHAR (10) NOT NULL," +
		" status VARCHAR (12) NOT NULL," +
		" idempotency_key VARCHAR (128) NOT NULL," +
		" delivery_type VARCHAR (16) NOT NULL DEFAULT ''," +
		" delivery_address TEXT NOT NULL DEFAULT ''," +
		" delivery_phone VARCHAR (32) NOT NULL DEFAULT ''," +
		" delivery_comment TEXT NOT NULL DEFAULT ''," +
		" created_at TIMESTAMPTZ NOT NULL," +
		" updated_at TIMESTAMPTZ NOT NULL," +
		" paid_at TIMESTAMPTZ," +
		" completed_at TIMESTAMPTZ," +
		" UNIQUE (user_id, idempotency_key)" +
		" );",

	// Позиции заказа - снимок каталога на момент заказа
	"CREATE TABLE IF NOT EXISTS order_items (" +
		" order_id VARCHAR (36) NOT NULL REFERENCES orders (id)," +
		" line INTEGER NOT NULL," +
		" product_id VARCHAR (64) NOT NULL," +
		" name VARCHAR (255) NOT NULL," +
		" unit_price NUMERIC (14, 2) NOT NULL," +
		" quantity INTEGER NOT NULL CHECK (quantity >= 1)," +
		" subtotal NUMERIC (14, 2) NOT NULL," +
		" PRIMARY KEY (order_id, line)" +
		" );",

	// Ключи идемпотентности. Завершенные записи не удаляются.
	"CREATE TABLE IF NOT EXISTS idempotency_keys (" +
		" user_id VARCHAR (64) NOT NULL," +
		" operation VARCHAR (32) NOT NULL," +
		" key VARCHAR (128) NOT NULL," +
		" status VARCHAR (12) NOT NULL," +
		" token VARCHAR (36) NOT NULL," +
		" result BYTEA," +
		" created_at TIMESTAMPTZ NOT NULL," +
		" updated_at TIMESTAMPTZ NOT NULL," +
		" PRIMARY KEY (user_id, operation, key)" +
		" );",

	// Каталог партнеров
	"CREATE TABLE IF NOT EXISTS partners (" +
		" id VARCHAR (64) PRIMARY KEY," +
		" name VARCHAR (255) NOT NULL," +
		" cashback_rate NUMERIC (5, 2)," +
		" active BOOLEAN NOT NULL DEFAULT TRUE" +
		" );",
	"CREATE TABLE IF NOT EXISTS products (" +
		" id VARCHAR (64) PRIMARY KEY," +
		" partner_id VARCHAR (64) NOT NULL REFERENCES partners (id)," +
		" name VARCHAR (255) NOT NULL," +
		" price NUMERIC (14, 2) NOT NULL CHECK (price >= 0)," +
		" available BOOLEAN NOT NULL DEFAULT TRUE" +
		" );",
}

type postgresStore struct {
	database *sql.DB
}

func NewPostgresStore(cfg config.Config) (Store, error) {
	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	for _, stmt := range schema {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}

	return newPostgresStore(db), nil
}

func newPostgresStore(db *sql.DB) *postgresStore {
	return &postgresStore{database: db}
}

func (store *postgresStore) Close() error {
	return store.database.Close()
}

// queryer - общее у *sql.DB и *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// classify переводит ошибки PostgreSQL в ошибки хранилища
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, pgErr.ConstraintName)
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConcurrency, pgErr.Message)
		case pgStringTooLong, pgNumericOutOfRange:
			return fmt.Errorf("%w: %s", ErrValueOutOfRange, pgErr.Message)
		}
	}
	return err
}

func (store *postgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	// при отмене контекста database/sql сам откатит транзакцию
	sqlTx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}

	err = fn(ctx, &postgresTx{tx: sqlTx})
	if err != nil {
		_ = sqlTx.Rollback()
		return classify(err)
	}

	return classify(sqlTx.Commit())
}

// Кошелек

const walletColumns = "user_id, cash_balance, loyalty_balance, total_earned, total_spent, updated_at"

func scanWallet(row *sql.Row) (model.Wallet, error) {
	var wallet model.Wallet
	err := row.Scan(&wallet.UserID,
		&wallet.CashBalance,
		&wallet.LoyaltyBalance,
		&wallet.TotalEarned,
		&wallet.TotalSpent,
		&wallet.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Wallet{}, ErrNoRows
		}
		return model.Wallet{}, err
	}
	return wallet, nil
}

func (store *postgresStore) WalletGet(ctx context.Context, userID string) (model.Wallet, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+walletColumns+
			" FROM wallets"+
			" WHERE user_id = $1",
		userID)
	wallet, err := scanWallet(row)
	if err == ErrNoRows { // кошелек создается при первой операции
		return model.NewWallet(userID), nil
	}
	return wallet, err
}

// Журнал

const transactionColumns = "id, user_id, order_id, type, currency, amount, balance_before, balance_after, status, reference, created_at, completed_at"

func (store *postgresStore) TransactionGetList(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+transactionColumns+
			" FROM transactions"+
			" WHERE user_id = $1"+
			" ORDER BY created_at, id",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		var (
			entry       model.Transaction
			orderID     sql.NullString
			completedAt sql.NullTime
		)
		err = rows.Scan(&entry.ID,
			&entry.UserID,
			&orderID,
			&entry.Type,
			&entry.Currency,
			&entry.Amount,
			&entry.BalanceBefore,
			&entry.BalanceAfter,
			&entry.Status,
			&entry.Reference,
			&entry.CreatedAt,
			&completedAt)
		if err != nil {
			return nil, err
		}
		entry.OrderID = orderID.String
		entry.CompletedAt = completedAt.Time
		transactions = append(transactions, entry)
	}
	return transactions, rows.Err()
}

// Заказы

const orderColumns = "id, user_id, partner_id, order_total, discount, final_amount, cashback_rate, cashback_amount," +
	" payment_method, payment_status, status, idempotency_key," +
	" delivery_type, delivery_address, delivery_phone, delivery_comment," +
	" created_at, updated_at, paid_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		order       model.Order
		paidAt      sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&order.ID,
		&order.UserID,
		&order.PartnerID,
		&order.OrderTotal,
		&order.Discount,
		&order.FinalAmount,
		&order.CashbackRate,
		&order.CashbackAmount,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.Status,
		&order.IdempotencyKey,
		&order.Delivery.Type,
		&order.Delivery.Address,
		&order.Delivery.Phone,
		&order.Delivery.Comment,
		&order.CreatedAt,
		&order.UpdatedAt,
		&paidAt,
		&completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Order{}, ErrNoRows
		}
		return model.Order{}, err
	}
	order.PaidAt = paidAt.Time
	order.CompletedAt = completedAt.Time
	return order, nil
}

func orderItemsGet(ctx context.Context, q queryer, orderID string) ([]model.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT product_id, name, unit_price, quantity, subtotal"+
			" FROM order_items"+
			" WHERE order_id = $1"+
			" ORDER BY line",
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		err = rows.Scan(&item.ProductID,
			&item.Name,
			&item.UnitPrice,
			&item.Quantity,
			&item.Subtotal)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func orderGet(ctx context.Context, q queryer, orderID string, forUpdate bool) (model.Order, error) {
	query := "SELECT " + orderColumns +
		" FROM orders" +
		" WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID))
	if err != nil {
		return model.Order{}, err
	}
	order.Items, err = orderItemsGet(ctx, q, orderID)
	if err != nil {
		return model.Order{}, err
	}
	return order, nil
}

func (store *postgresStore) OrderGet(ctx context.Context, orderID string) (model.Order, error) {
	return orderGet(ctx, store.database, orderID, false)
}

// OrderGetList returns the user's orders newest first, without items.
func (store *postgresStore) OrderGetList(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+orderColumns+
			" FROM orders"+
			" WHERE user_id = $1"+
			" ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// Каталог

func (store *postgresStore) PartnerGet(ctx context.Context, partnerID string) (model.Partner, error) {
	var partner model.Partner
	row := store.database.QueryRowContext(ctx,
		"SELECT id, name, cashback_rate, active"+
			" FROM partners"+
			" WHERE id = $1",
		partnerID)
	err := row.Scan(&partner.ID,
		&partner.Name,
		&partner.CashbackRate,
		&partner.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Partner{}, ErrNoRows
		}
		return model.Partner{}, err
	}
	return partner, nil
}

func (store *postgresStore) PartnerPut(ctx context.Context, partner model.Partner) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO partners (id, name, cashback_rate, active)"+
			" VALUES ($1, $2, $3, $4)"+
			" ON CONFLICT (id) DO UPDATE SET"+
			" name = EXCLUDED.name,"+
			" cashback_rate = EXCLUDED.cashback_rate,"+
			" active = EXCLUDED.active",
		partner.ID,
		partner.Name,
		partner.CashbackRate,
		partner.Active)
	return classify(err)
}

func (store *postgresStore) ProductGetList(ctx context.Context, partnerID string, productIDs []string) ([]model.Product, error) {
	products := make([]model.Product, 0, len(productIDs))
	for _, productID := range productIDs {
		var product model.Product
		row := store.database.QueryRowContext(ctx,
			"SELECT id, partner_id, name, price, available"+
				" FROM products"+
				" WHERE id = $1"+
				"   AND partner_id = $2",
			productID,
			partnerID)
		err := row.Scan(&product.ID,
			&product.PartnerID,
			&product.Name,
			&product.Price,
			&product.Available)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: product %s", ErrNoRows, productID)
			}
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (store *postgresStore) ProductPut(ctx context.Context, product model.Product) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO products (id, partner_id, name, price, available)"+
			" VALUES ($1, $2, $3, $4, $5)"+
			" ON CONFLICT (id) DO UPDATE SET"+
			" partner_id = EXCLUDED.partner_id,"+
			" name = EXCLUDED.name,"+
			" price = EXCLUDED.price,"+
			" available = EXCLUDED.available",
		product.ID,
		product.PartnerID,
		product.Name,
		product.Price,
		product.Available)
	return classify(err)
}

// Идемпотентность

func (store *postgresStore) Reserve(ctx context.Context, ticket idempotency.Ticket, staleBefore time.Time) (idempotency.Record, bool, error) {
	scope := ticket.Scope
	now := time.Now()

	// Новая отметка, либо перехват отметки с истекшим lease
	var status string
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO idempotency_keys (user_id, operation, key, status, token, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $6)"+
			" ON CONFLICT (user_id, operation, key) DO UPDATE SET"+
			" token = EXCLUDED.token,"+
			" updated_at = EXCLUDED.updated_at"+
			" WHERE idempotency_keys.status = $4"+
			"   AND idempotency_keys.updated_at < $7"+
			" RETURNING status",
		scope.UserID,
		scope.Operation,
		scope.Key,
		idempotency.StatusInProgress,
		ticket.Token,
		now,
		staleBefore)
	err := row.Scan(&status)
	if err == nil {
		return idempotency.Record{
			Scope:     scope,
			Status:    idempotency.StatusInProgress,
			Token:     ticket.Token,
			CreatedAt: now,
			UpdatedAt: now,
		}, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return idempotency.Record{}, false, classify(err)
	}

	// Ключ занят: читаем существующую запись
	rec := idempotency.Record{Scope: scope}
	row = store.database.QueryRowContext(ctx,
		"SELECT status, token, result, created_at, updated_at"+
			" FROM idempotency_keys"+
			" WHERE user_id = $1"+
			"   AND operation = $2"+
			"   AND key = $3",
		scope.UserID,
		scope.Operation,
		scope.Key)
	err = row.Scan(&rec.Status,
		&rec.Token,
		&rec.Result,
		&rec.CreatedAt,
		&rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// отметку только что сняли - считаем, что операция еще идет
			rec.Status = idempotency.StatusInProgress
			return rec, false, nil
		}
		return idempotency.Record{}, false, err
	}
	return rec, false, nil
}

func (store *postgresStore) Release(ctx context.Context, ticket idempotency.Ticket) error {
	_, err := store.database.ExecContext(ctx,
		"DELETE FROM idempotency_keys"+
			" WHERE user_id = $1"+
			"   AND operation = $2"+
			"   AND key = $3"+
			"   AND token = $4"+
			"   AND status = $5",
		ticket.Scope.UserID,
		ticket.Scope.Operation,
		ticket.Scope.Key,
		ticket.Token,
		idempotency.StatusInProgress)
	return err
}

// Транзакция

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) WalletLock(ctx context.Context, userID string) (model.Wallet, error) {
	// Ленивое создание кошелька
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO wallets (user_id, cash_balance, loyalty_balance, total_earned, total_spent, updated_at)"+
			" VALUES ($1, 0, 0, 0, 0, $2)"+
			" ON CONFLICT (user_id) DO NOTHING",
		userID,
		time.Now())
	if err != nil {
		return model.Wallet{}, err
	}

	// Блокировка строки до конца транзакции
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+walletColumns+
			" FROM wallets"+
			" WHERE user_id = $1"+
			" FOR UPDATE",
		userID)
	return scanWallet(row)
}

func (t *postgresTx) WalletApplyDelta(ctx context.Context, userID string, delta model.Delta) (model.Wallet, []model.Transaction, error) {
	before, err := t.WalletLock(ctx, userID)
	if err != nil {
		return model.Wallet{}, nil, err
	}

	after, entries, err := applyDelta(before, delta, time.Now())
	if err != nil {
		return model.Wallet{}, nil, err
	}

	_, err = t.tx.ExecContext(ctx,
		"UPDATE wallets SET"+
			" cash_balance = $2,"+
			" loyalty_balance = $3,"+
			" total_earned = $4,"+
			" total_spent = $5,"+
			" updated_at = $6"+
			" WHERE user_id = $1",
		userID,
		after.CashBalance,
		after.LoyaltyBalance,
		after.TotalEarned,
		after.TotalSpent,
		after.UpdatedAt)
	if err != nil {
		return model.Wallet{}, nil, err
	}

	for _, entry := range entries {
		if err = t.transactionPost(ctx, entry); err != nil {
			return model.Wallet{}, nil, err
		}
	}

	return after, entries, nil
}

// transactionPost - запись журнала; вызывается только из WalletApplyDelta
func (t *postgresTx) transactionPost(ctx context.Context, entry model.Transaction) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO transactions ("+transactionColumns+")"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		entry.ID,
		entry.UserID,
		sql.NullString{String: entry.OrderID, Valid: entry.OrderID != ""},
		entry.Type,
		entry.Currency,
		entry.Amount,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.Status,
		entry.Reference,
		entry.CreatedAt,
		sql.NullTime{Time: entry.CompletedAt, Valid: !entry.CompletedAt.IsZero()})
	return err
}

func (t *postgresTx) OrderPost(ctx context.Context, order model.Order) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO orders ("+orderColumns+")"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)",
		order.ID,
		order.UserID,
		order.PartnerID,
		order.OrderTotal,
		order.Discount,
		order.FinalAmount,
		order.CashbackRate,
		order.CashbackAmount,
		order.PaymentMethod,
		order.PaymentStatus,
		order.Status,
		order.IdempotencyKey,
		order.Delivery.Type,
		order.Delivery.Address,
		order.Delivery.Phone,
		order.Delivery.Comment,
		order.CreatedAt,
		order.UpdatedAt,
		sql.NullTime{Time: order.PaidAt, Valid: !order.PaidAt.IsZero()},
		sql.NullTime{Time: order.CompletedAt, Valid: !order.CompletedAt.IsZero()})
	if err != nil {
		return err
	}

	for line, item := range order.Items {
		_, err = t.tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, line, product_id, name, unit_price, quantity, subtotal)"+
				" VALUES ($1, $2, $3, $4, $5, $6, $7)",
			order.ID,
			line+1,
			item.ProductID,
			item.Name,
			item.UnitPrice,
			item.Quantity,
			item.Subtotal)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *postgresTx) OrderLock(ctx context.Context, orderID string) (model.Order, error) {
	return orderGet(ctx, t.tx, orderID, true)
}

// OrderPut updates the mutable part of an order: its lifecycle state.
func (t *postgresTx) OrderPut(ctx context.Context, order model.Order) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET"+
			" status = $2,"+
			" payment_status = $3,"+
			" updated_at = $4,"+
			" paid_at = $5,"+
			" completed_at = $6"+
			" WHERE id = $1",
		order.ID,
		order.Status,
		order.PaymentStatus,
		order.UpdatedAt,
		sql.NullTime{Time: order.PaidAt, Valid: !order.PaidAt.IsZero()},
		sql.NullTime{Time: order.CompletedAt, Valid: !order.CompletedAt.IsZero()})
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

func (t *postgresTx) Seal(ctx context.Context, ticket idempotency.Ticket, result []byte) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE idempotency_keys SET"+
			" status = $5,"+
			" result = $6,"+
			" updated_at = $7"+
			" WHERE user_id = $1"+
			"   AND operation = $2"+
			"   AND key = $3"+
			"   AND token = $4"+
			"   AND status = $8",
		ticket.Scope.UserID,
		ticket.Scope.Operation,
		ticket.Scope.Key,
		ticket.Token,
		idempotency.StatusCompleted,
		result,
		time.Now(),
		idempotency.StatusInProgress)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return idempotency.ErrLeaseLost
	}
	return nil
}
