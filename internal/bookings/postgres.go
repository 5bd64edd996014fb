package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"taxi-service/internal/domain"
	"taxi-service/internal/events"
	"taxi-service/internal/fare"
	"taxi-service/pkg/db"
)

const bookingColumns = `id, reference, status, source, pickup, dropoff, pickup_at, round_trip, return_at,
	passengers, luggage, vehicle_class, flight_number, train_number, special_requests,
	customer_name, customer_email, customer_phone,
	price_amount, currency, tariff_applied, tariff_name, price_min, price_max, final_price, breakdown, route,
	internal_notes, admin_notes, created_at, updated_at, started_at, completed_at, flat_estimate`

// PostgresStore is the pgx implementation of Store.
type PostgresStore struct {
	tx     *db.TxManager
	outbox Outbox
}

// NewPostgresStore returns a store that queues events through outbox.
func NewPostgresStore(tx *db.TxManager, outbox Outbox) *PostgresStore {
	return &PostgresStore{tx: tx, outbox: outbox}
}

func (s *PostgresStore) Insert(ctx context.Context, b *Booking, evt events.Message) error {
	row, err := toRow(b)
	if err != nil {
		return err
	}
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := s.tx.Conn(ctx).Exec(ctx, `
			INSERT INTO bookings (`+bookingColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
			        $19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34)`,
			row.args()...)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: reference %s already used", domain.ErrConflict, b.Reference)
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return s.outbox.Add(ctx, evt)
	})
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Booking, error) {
	return s.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (s *PostgresStore) GetByReference(ctx context.Context, ref string) (*Booking, error) {
	return s.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference = $1`, ref)
}

func (s *PostgresStore) getOne(ctx context.Context, sql string, arg string) (*Booking, error) {
	b, err := scanBooking(s.tx.Conn(ctx).QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Booking, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if f.From != nil {
		where = append(where, "pickup_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "pickup_at < "+arg(*f.To))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + q + "%")
		where = append(where, "(reference ILIKE "+p+" OR customer_name ILIKE "+p+" OR customer_email ILIKE "+p+")")
	}

	sql := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY pickup_at DESC, id LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := s.tx.Conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, b *Booking, expected Version, evt *events.Message) error {
	row, err := toRow(b)
	if err != nil {
		return err
	}
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		conn := s.tx.Conn(ctx)
		tag, err := conn.Exec(ctx, `
			UPDATE bookings SET
				status=$2, pickup=$3, dropoff=$4, pickup_at=$5, return_at=$6,
				passengers=$7, luggage=$8, flight_number=$9, train_number=$10, special_requests=$11,
				customer_name=$12, customer_email=$13, customer_phone=$14, final_price=$15,
				internal_notes=$16, admin_notes=$17, updated_at=$18, started_at=$19, completed_at=$20
			WHERE id=$1 AND status=$21 AND updated_at=$22`,
			b.ID, string(b.Status), row.pickup, row.dropoff, b.PickupAt, b.ReturnAt,
			b.Passengers, b.Luggage, b.FlightNumber, b.TrainNumber, b.SpecialRequests,
			b.Customer.Name, b.Customer.Email, b.Customer.Phone, b.Price.FinalPrice,
			b.InternalNotes, b.AdminNotes, b.UpdatedAt, b.StartedAt, b.CompletedAt,
			string(expected.Status), expected.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return s.missOrConflict(ctx, conn, b.ID)
		}
		if evt == nil {
			return nil
		}
		return s.outbox.Add(ctx, *evt)
	})
}

func (s *PostgresStore) Delete(ctx context.Context, id string, expected Version, evt events.Message) error {
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		conn := s.tx.Conn(ctx)
		tag, err := conn.Exec(ctx,
			`DELETE FROM bookings WHERE id=$1 AND status=$2 AND updated_at=$3`,
			id, string(expected.Status), expected.UpdatedAt)
		if err != nil {
			return fmt.Errorf("delete booking: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return s.missOrConflict(ctx, conn, id)
		}
		return s.outbox.Add(ctx, evt)
	})
}

func (s *PostgresStore) missOrConflict(ctx context.Context, conn db.Executor, id string) error {
	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check booking: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// bookingRow is the flattened form of a Booking, in bookingColumns order.
type bookingRow struct {
	b                  *Booking
	pickup, dropoff    []byte
	breakdown, route   []byte
	tariff             *string
	priceMin, priceMax *float64
}

func toRow(b *Booking) (*bookingRow, error) {
	r := &bookingRow{b: b}
	var err error
	if r.pickup, err = json.Marshal(b.Pickup); err != nil {
		return nil, err
	}
	if r.dropoff, err = json.Marshal(b.Dropoff); err != nil {
		return nil, err
	}
	if b.Price.Breakdown != nil {
		if r.breakdown, err = json.Marshal(b.Price.Breakdown); err != nil {
			return nil, err
		}
	}
	if b.Route != nil {
		if r.route, err = json.Marshal(b.Route); err != nil {
			return nil, err
		}
	}
	if b.Price.TariffApplied != "" {
		code := string(b.Price.TariffApplied)
		r.tariff = &code
	}
	if rng := b.Price.PriceRange; rng != nil {
		r.priceMin, r.priceMax = &rng.Min, &rng.Max
	}
	return r, nil
}

func (r *bookingRow) args() []any {
	b := r.b
	return []any{
		b.ID, b.Reference, string(b.Status), string(b.Source), r.pickup, r.dropoff, b.PickupAt, b.RoundTrip, b.ReturnAt,
		b.Passengers, b.Luggage, string(b.VehicleClass), b.FlightNumber, b.TrainNumber, b.SpecialRequests,
		b.Customer.Name, b.Customer.Email, b.Customer.Phone,
		b.Price.Amount, b.Price.Currency, r.tariff, b.Price.TariffName, r.priceMin, r.priceMax, b.Price.FinalPrice,
		nullJSON(r.breakdown), nullJSON(r.route),
		b.InternalNotes, b.AdminNotes, b.CreatedAt, b.UpdatedAt, b.StartedAt, b.CompletedAt, b.Price.FlatEstimate,
	}
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b                     Booking
		status, source, class string
		pickup, dropoff       []byte
		breakdown, route      []byte
		tariff                *string
		priceMin, priceMax    *float64
	)
	err := row.Scan(
		&b.ID, &b.Reference, &status, &source, &pickup, &dropoff, &b.PickupAt, &b.RoundTrip, &b.ReturnAt,
		&b.Passengers, &b.Luggage, &class, &b.FlightNumber, &b.TrainNumber, &b.SpecialRequests,
		&b.Customer.Name, &b.Customer.Email, &b.Customer.Phone,
		&b.Price.Amount, &b.Price.Currency, &tariff, &b.Price.TariffName, &priceMin, &priceMax, &b.Price.FinalPrice,
		&breakdown, &route,
		&b.InternalNotes, &b.AdminNotes, &b.CreatedAt, &b.UpdatedAt, &b.StartedAt, &b.CompletedAt, &b.Price.FlatEstimate,
	)
	if err != nil {
		return nil, err
	}
	b.Status, b.Source, b.VehicleClass = Status(status), Source(source), fare.VehicleClass(class)
	if tariff != nil {
		b.Price.TariffApplied = fare.Code(*tariff)
	}
	if priceMin != nil && priceMax != nil {
		b.Price.PriceRange = &fare.PriceRange{Min: *priceMin, Max: *priceMax}
	}
	if err := json.Unmarshal(pickup, &b.Pickup); err != nil {
		return nil, fmt.Errorf("pickup: %w", err)
	}
	if err := json.Unmarshal(dropoff, &b.Dropoff); err != nil {
		return nil, fmt.Errorf("dropoff: %w", err)
	}
	if len(breakdown) > 0 {
		b.Price.Breakdown = &fare.Breakdown{}
		if err := json.Unmarshal(breakdown, b.Price.Breakdown); err != nil {
			return nil, fmt.Errorf("breakdown: %w", err)
		}
	}
	if len(route) > 0 {
		b.Route = &fare.RouteMetrics{}
		if err := json.Unmarshal(route, b.Route); err != nil {
			return nil, fmt.Errorf("route: %w", err)
		}
	}
	return &b, nil
}
