package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/config"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	_ "github.com/lib/pq" // side-effect import: registers "postgres" driver for database/sql
)

const (
	recordsTable = "shipment_records"
	historyTable = "awb_history"
	ordersTable  = "orders"
)

var (
	recordColumns  = []string{"order_id", "awb_number", "awb_status", "awb_generation_date", "updated_at"}
	historyColumns = []string{"order_id", "ts", "actor", "action", "reason", "order_status", "details", "awb_number", "generation_date"}
	orderColumns   = []string{"id", "number", "status", "payment_method", "total", "shipping", "billing", "billing_cui", "items", "created_at"}
)

// PostgresRepository holds shipment records, the append-only history and the
// read-only order view.
type PostgresRepository struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

func NewPostgresRepository(config config.DatabaseConfig) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return NewPostgresRepositoryWithDB(db), nil
}

func NewPostgresRepositoryWithDB(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: time.Now,
	}
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetRecord returns an empty record (NoAwb) when the order has never had one.
func (r *PostgresRepository) GetRecord(ctx context.Context, orderID string) (model.ShipmentRecord, error) {
	query, args, err := r.sb.Select(recordColumns...).
		From(recordsTable).
		Where(sq.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return model.ShipmentRecord{}, err
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ShipmentRecord{OrderID: orderID}, nil
		}
		return model.ShipmentRecord{}, fmt.Errorf("error loading shipment record: %w", err)
	}
	return rec, nil
}

// SaveAWB writes the AWB, its status and date together with the history entry.
func (r *PostgresRepository) SaveAWB(ctx context.Context, rec model.ShipmentRecord, entry model.HistoryEntry) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = r.now()
	}
	upsert := r.sb.Insert(recordsTable).
		Columns(recordColumns...).
		Values(rec.OrderID, rec.AWBNumber, nullable(rec.AWBStatus), nullable(rec.GenerationDate), rec.UpdatedAt).
		Suffix("ON CONFLICT (order_id) DO UPDATE SET " +
			"awb_number = EXCLUDED.awb_number, awb_status = EXCLUDED.awb_status, " +
			"awb_generation_date = EXCLUDED.awb_generation_date, updated_at = EXCLUDED.updated_at")

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := upsert.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("error saving awb: %w", err)
		}
		return r.insertHistory(ctx, tx, rec.OrderID, entry)
	})
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, orderID, status string, entry model.HistoryEntry) error {
	update := r.sb.Update(recordsTable).
		Set("awb_status", nullable(status)).
		Set("updated_at", r.now()).
		Where(sq.And{sq.Eq{"order_id": orderID}, sq.NotEq{"awb_number": nil}})

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := update.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("error updating awb status: %w", err)
		}
		return r.insertHistory(ctx, tx, orderID, entry)
	})
}

// ClearAWB nulls number, status and date in one statement. A nil entry clears
// without writing history.
func (r *PostgresRepository) ClearAWB(ctx context.Context, orderID string, entry *model.HistoryEntry) error {
	clear := r.sb.Update(recordsTable).
		Set("awb_number", nil).
		Set("awb_status", nil).
		Set("awb_generation_date", nil).
		Set("updated_at", r.now()).
		Where(sq.Eq{"order_id": orderID})

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := clear.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("error clearing awb: %w", err)
		}
		if entry == nil {
			return nil
		}
		return r.insertHistory(ctx, tx, orderID, *entry)
	})
}

// ListWithAWB returns the most recently touched records that still carry an AWB.
func (r *PostgresRepository) ListWithAWB(ctx context.Context, limit int) ([]model.ShipmentRecord, error) {
	b := r.sb.Select(recordColumns...).
		From(recordsTable).
		Where(sq.NotEq{"awb_number": nil}).
		OrderBy("updated_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	rows, err := b.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing shipment records: %w", err)
	}
	defer rows.Close()

	var recs []model.ShipmentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *PostgresRepository) AppendHistory(ctx context.Context, orderID string, entry model.HistoryEntry) error {
	return r.insertHistory(ctx, r.db, orderID, entry)
}

// History returns entries in append order.
func (r *PostgresRepository) History(ctx context.Context, orderID string) ([]model.HistoryEntry, error) {
	rows, err := r.sb.Select(historyColumns[1:]...).
		From(historyTable).
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("seq ASC").
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading awb history: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var reason, awb, date sql.NullString
		if err := rows.Scan(&e.Timestamp, &e.Actor, &e.Action, &reason, &e.OrderStatus, &e.Details, &awb, &date); err != nil {
			return nil, err
		}
		e.Reason, e.AWBNumber, e.GenerationDate = reason.String, awb.String, date.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresRepository) RemoveDeletionMarkers(ctx context.Context, orderID string) (int, error) {
	res, err := r.sb.Delete(historyTable).
		Where(sq.Eq{"order_id": orderID, "action": string(model.ActionDeletionMarker)}).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("error removing deletion markers: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := r.sb.Select(orderColumns...).
		From(ordersTable).
		Where(sq.Eq{"id": id}).
		RunWith(r.db).
		QueryRowContext(ctx)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.New(apperror.KindNotFound, "orders.get", fmt.Errorf("order %s not found", id))
		}
		return nil, fmt.Errorf("error loading order: %w", err)
	}
	return order, nil
}

func (r *PostgresRepository) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	b := r.sb.Select(orderColumns...).From(ordersTable).OrderBy("created_at DESC")
	if len(filter.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": filter.Statuses})
	}
	if !filter.CreatedAfter.IsZero() {
		b = b.Where(sq.Gt{"created_at": filter.CreatedAfter})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	rows, err := b.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *PostgresRepository) insertHistory(ctx context.Context, runner sq.BaseRunner, orderID string, e model.HistoryEntry) error {
	_, err := r.sb.Insert(historyTable).
		Columns(historyColumns...).
		Values(orderID, e.Timestamp, e.Actor, string(e.Action), nullable(e.Reason), e.OrderStatus, e.Details,
			nullable(e.AWBNumber), nullable(e.GenerationDate)).
		RunWith(runner).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("error appending awb history: %w", err)
	}
	return nil
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.ShipmentRecord, error) {
	var rec model.ShipmentRecord
	var awb, status, date sql.NullString
	if err := row.Scan(&rec.OrderID, &awb, &status, &date, &rec.UpdatedAt); err != nil {
		return model.ShipmentRecord{}, err
	}
	rec.AWBNumber, rec.AWBStatus = awb.String, status.String
	if date.Valid {
		rec.GenerationDate = model.NormalizeDate(date.String)
	}
	return rec, nil
}

func scanOrder(row scanner) (*model.Order, error) {
	var o model.Order
	var shipping, billing, items []byte
	var paymentMethod, cui sql.NullString
	if err := row.Scan(&o.ID, &o.Number, &o.Status, &paymentMethod, &o.Total, &shipping, &billing, &cui, &items, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.PaymentMethod, o.BillingCUI = paymentMethod.String, cui.String

	for _, part := range []struct {
		raw []byte
		dst any
	}{{shipping, &o.Shipping}, {billing, &o.Billing}, {items, &o.Items}} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return nil, fmt.Errorf("error decoding order %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
