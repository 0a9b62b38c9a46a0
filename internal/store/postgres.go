package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"cookiebox/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Backend() string { return "postgres" }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies embedded migrations not yet recorded in schema_migrations, in name order.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return err
		}
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `id::text, order_number, midtrans_order_id, payment_status, midtrans_transaction_status, midtrans_token, paid_at,
    shipment_status, biteship_order_id, tracking_url, waybill, courier_company, courier_type, shipment_error, shipment_claimed_at,
    destination_area_id, postal, shipping_address, building_name, shipping_meta, items_json, total_idr,
    customer_name, customer_phone, customer_email, created_at, updated_at`

func (p *Postgres) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = model.PaymentUnpaid
	}
	if o.ShipmentStatus == "" {
		o.ShipmentStatus = model.ShipmentNotCreated
	}
	meta, err := json.Marshal(o.ShippingMeta)
	if err != nil {
		return err
	}
	items, err := json.Marshal(itemsOrEmpty(o.Items))
	if err != nil {
		return err
	}
	err = p.db.QueryRowContext(ctx, `INSERT INTO orders (id, order_number, midtrans_order_id, payment_status, shipment_status,
        courier_company, courier_type, destination_area_id, postal, shipping_address, building_name, shipping_meta, items_json, total_idr,
        customer_name, customer_phone, customer_email)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        RETURNING created_at, updated_at`,
		o.ID, o.OrderNumber, o.PaymentOrderID, string(o.PaymentStatus), string(o.ShipmentStatus),
		nullIfEmpty(o.CourierCompany), nullIfEmpty(o.CourierType), nullIfEmpty(o.DestinationAreaID), nullIfEmpty(o.Postal),
		o.ShippingAddress, nullIfEmpty(o.BuildingName), meta, items, o.TotalIDR,
		o.CustomerName, o.CustomerPhone, nullIfEmpty(o.CustomerEmail),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Order{}, ErrNotFound
	}
	return p.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (p *Postgres) GetOrderByPaymentID(ctx context.Context, paymentOrderID string) (model.Order, error) {
	return p.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE midtrans_order_id=$1`, paymentOrderID)
}

func (p *Postgres) getOne(ctx context.Context, q string, arg any) (model.Order, error) {
	o, err := scanOrder(p.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

func (p *Postgres) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, string, error) {
	limit := pageSize(f.Limit)
	var where []string
	var args []any
	if f.PaymentStatus != "" {
		args = append(args, string(f.PaymentStatus))
		where = append(where, fmt.Sprintf("payment_status=$%d", len(args)))
	}
	if f.ShipmentStatus != "" {
		args = append(args, string(f.ShipmentStatus))
		where = append(where, fmt.Sprintf("shipment_status=$%d", len(args)))
	}
	if f.Cursor != "" {
		args = append(args, f.Cursor)
		where = append(where, fmt.Sprintf("id::text > $%d", len(args)))
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit+1)
	q += fmt.Sprintf(" ORDER BY id::text LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

func (p *Postgres) UpdatePayment(ctx context.Context, id string, upd model.PaymentUpdate) error {
	return p.execOne(ctx, `UPDATE orders SET payment_status=$2, midtrans_transaction_status=$3,
        paid_at=COALESCE(paid_at, $4), updated_at=now() WHERE id=$1`,
		id, string(upd.Status), nullIfEmpty(upd.TransactionStatus), upd.PaidAt)
}

func (p *Postgres) SetPaymentToken(ctx context.Context, id, token string) error {
	return p.execOne(ctx, `UPDATE orders SET midtrans_token=$2, updated_at=now() WHERE id=$1`, id, nullIfEmpty(token))
}

func (p *Postgres) ClaimShipment(ctx context.Context, id string, lease time.Duration) (bool, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET shipment_claimed_at=now(), updated_at=now()
        WHERE id=$1 AND biteship_order_id IS NULL AND shipment_status <> 'fulfilled'
        AND (shipment_claimed_at IS NULL OR shipment_claimed_at < now() - make_interval(secs => $2))`,
		id, lease.Seconds())
	if err != nil {
		return false, fmt.Errorf("claim shipment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) RecordShipment(ctx context.Context, id string, rec model.ShipmentRecord) error {
	return p.execOne(ctx, `UPDATE orders SET shipment_status='created', biteship_order_id=$2, tracking_url=$3, waybill=$4,
        courier_company=COALESCE($5, courier_company), courier_type=COALESCE($6, courier_type),
        shipment_error=NULL, updated_at=now() WHERE id=$1`,
		id, rec.ShipmentOrderID, nullIfEmpty(rec.TrackingURL), nullIfEmpty(rec.Waybill),
		nullIfEmpty(rec.CourierCompany), nullIfEmpty(rec.CourierType))
}

func (p *Postgres) MarkShipmentStatus(ctx context.Context, id string, status model.ShipmentStatus, shipmentErr string) error {
	q := `UPDATE orders SET shipment_status=$2, shipment_error=$3, updated_at=now() WHERE id=$1`
	if releasesClaim(status) {
		q = `UPDATE orders SET shipment_status=$2, shipment_error=$3, shipment_claimed_at=NULL, updated_at=now() WHERE id=$1`
	}
	return p.execOne(ctx, q, id, string(status), nullIfEmpty(shipmentErr))
}

func (p *Postgres) execOne(ctx context.Context, q string, args ...any) error {
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		o                                          model.Order
		payStatus, shipStatus                      string
		txStatus, token, shipID, tracking, waybill sql.NullString
		company, typ, shipErr, areaID              sql.NullString
		postal, building, email                    sql.NullString
		paidAt, claimedAt                          sql.NullTime
		meta, items                                []byte
		total                                      decimal.Decimal
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.PaymentOrderID, &payStatus, &txStatus, &token, &paidAt,
		&shipStatus, &shipID, &tracking, &waybill, &company, &typ, &shipErr, &claimedAt,
		&areaID, &postal, &o.ShippingAddress, &building, &meta, &items, &total,
		&o.CustomerName, &o.CustomerPhone, &email, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.PaymentStatus = model.ParsePaymentStatus(payStatus)
	if o.ShipmentStatus, err = model.ParseShipmentStatus(shipStatus); err != nil {
		return model.Order{}, err
	}
	o.TransactionStatus = txStatus.String
	o.PaymentToken = token.String
	o.ShipmentOrderID = shipID.String
	o.TrackingURL = tracking.String
	o.Waybill = waybill.String
	o.CourierCompany = company.String
	o.CourierType = typ.String
	o.ShipmentError = shipErr.String
	o.DestinationAreaID = areaID.String
	o.Postal = postal.String
	o.BuildingName = building.String
	o.CustomerEmail = email.String
	o.TotalIDR = total
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		o.ShipmentClaimedAt = &t
	}
	if o.ShippingMeta, err = decodeMeta(meta); err != nil {
		return model.Order{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return model.Order{}, fmt.Errorf("decode items_json: %w", err)
		}
	}
	return o, nil
}

// decodeMeta reads shipping_meta, tolerating lat/lng stored as strings by older checkouts.
func decodeMeta(b []byte) (model.ShippingMeta, error) {
	var meta model.ShippingMeta
	if len(b) == 0 {
		return meta, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return meta, fmt.Errorf("decode shipping_meta: %w", err)
	}
	meta.Lat = toFloat(raw["lat"])
	meta.Lng = toFloat(raw["lng"])
	meta.FormattedAddress, _ = raw["formatted_address"].(string)
	meta.CourierCode, _ = raw["courier_code"].(string)
	meta.CourierService, _ = raw["courier_service"].(string)
	return meta, nil
}

func toFloat(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return nil
		}
		f := d.InexactFloat64()
		return &f
	}
	return nil
}

func itemsOrEmpty(items []model.LineItem) []model.LineItem {
	if items == nil {
		return []model.LineItem{}
	}
	return items
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
