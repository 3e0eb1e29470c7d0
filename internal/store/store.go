// Package store is the sole durable state boundary: positions, their
// fills, their audit events, and the single settings row. Backed by an
// embedded SQLite database opened in WAL mode.
//
// ClosePosition guards its UPDATE with a WHERE status='OPEN' clause and
// checks RowsAffected, so two concurrent closure attempts on the same
// position collapse to one write and a no-op instead of a double-close.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/apperr"
	"papertrader/internal/models"
)

// Store wraps a single *sql.DB under single-writer discipline.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path, enabling WAL
// journaling and foreign-key cascades, and runs the schema migration.
// SetMaxOpenConns(1) is deliberate: SQLite allows only one writer at a
// time, and routing every write through a single pooled connection turns
// that constraint into an ordinary serialization point instead of
// SQLITE_BUSY errors under concurrent access.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreatePosition derives qty from sizeMode, writes the position row with
// status=OPEN, the paired OPEN fill, and a POSITION_CREATED event, all in
// one transaction.
func (s *Store) CreatePosition(req models.CreatePositionRequest, entryPrice, openFee float64, ts int64, eventPayload string) (*models.Position, error) {
	qty := req.SizeValue
	if req.SizeMode == models.SizeModeUSDT {
		qty = req.SizeValue / entryPrice
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, apperr.Storage("begin create position tx", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO positions (symbol, side, qty, entry_price, entry_time, leverage, fees_open, notes, sl, tp, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(req.Symbol), string(req.Side), qty, entryPrice, ts, req.Leverage, openFee, req.Notes,
		req.SL, req.TP, string(models.StatusOpen),
	)
	if err != nil {
		return nil, apperr.Storage("insert position", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Storage("read inserted position id", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO fills (position_id, type, price, qty, fee, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(models.FillTypeOpen), entryPrice, qty, openFee, ts,
	); err != nil {
		return nil, apperr.Storage("insert open fill", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO events (position_id, event, payload, ts)
		VALUES (?, ?, ?, ?)`,
		id, string(models.EventPositionCreated), eventPayload, ts,
	); err != nil {
		return nil, apperr.Storage("insert position_created event", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("commit create position tx", err)
	}

	return s.GetPosition(id)
}

func scanPosition(row interface {
	Scan(dest ...interface{}) error
}) (*models.Position, error) {
	p := &models.Position{}
	err := row.Scan(
		&p.ID, &p.Symbol, &p.Side, &p.Qty, &p.EntryPrice, &p.EntryTime, &p.Leverage, &p.FeesOpen, &p.Notes,
		&p.SL, &p.TP, &p.Status, &p.ClosePrice, &p.CloseTime, &p.FeesClose, &p.RealizedPnl, &p.FundingPnl,
	)
	return p, err
}

const positionColumns = `id, symbol, side, qty, entry_price, entry_time, leverage, fees_open, notes,
	sl, tp, status, close_price, close_time, fees_close, realized_pnl, funding_pnl`

// GetPosition reads a single position by id.
func (s *Store) GetPosition(id int64) (*models.Position, error) {
	row := s.db.QueryRow(`SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrPositionNotFound
		}
		return nil, apperr.Storage("get position", err)
	}
	return p, nil
}

// ListPositions returns positions ordered by entryTime descending,
// optionally filtered to an exact status match.
func (s *Store) ListPositions(status *models.Status) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY entry_time DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Storage("list positions", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, apperr.Storage("scan position row", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate position rows", err)
	}
	return positions, nil
}

// UpdateSLTP updates only the provided fields on an OPEN position and
// emits one event naming whichever field changed first.
func (s *Store) UpdateSLTP(id int64, req models.UpdateSLTPRequest, ts int64) (*models.Position, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, apperr.Storage("begin update sltp tx", err)
	}
	defer tx.Rollback()

	var status string
	if err := tx.QueryRow(`SELECT status FROM positions WHERE id = ?`, id).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrPositionNotFound
		}
		return nil, apperr.Storage("read position status", err)
	}
	if !isOpen(models.Status(status)) {
		return nil, apperr.ErrInvalidTransition
	}

	var event models.EventType
	switch {
	case req.SL != nil:
		event = models.EventSLUpdated
	case req.TP != nil:
		event = models.EventTPUpdated
	default:
		return s.GetPosition(id)
	}

	if req.SL != nil {
		if _, err := tx.Exec(`UPDATE positions SET sl = ? WHERE id = ?`, *req.SL, id); err != nil {
			return nil, apperr.Storage("update sl", err)
		}
	}
	if req.TP != nil {
		if _, err := tx.Exec(`UPDATE positions SET tp = ? WHERE id = ?`, *req.TP, id); err != nil {
			return nil, apperr.Storage("update tp", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO events (position_id, event, payload, ts) VALUES (?, ?, ?, ?)`,
		id, string(event), "{}", ts,
	); err != nil {
		return nil, apperr.Storage("insert sltp event", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("commit update sltp tx", err)
	}

	return s.GetPosition(id)
}

// ClosePosition is the guarded write at the heart of at-most-once
// closure: the UPDATE only matches rows still OPEN, so a second
// concurrent attempt affects zero rows and returns (nil, nil) rather
// than double-closing.
func (s *Store) ClosePosition(id int64, closePrice, closeFee float64, event models.EventType, ts int64) (*models.Position, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, apperr.Storage("begin close position tx", err)
	}
	defer tx.Rollback()

	var side string
	var entryPrice, qty, feesOpen float64
	err = tx.QueryRow(`SELECT side, entry_price, qty, fees_open FROM positions WHERE id = ? AND status = ?`,
		id, string(models.StatusOpen)).Scan(&side, &entryPrice, &qty, &feesOpen)
	if errors.Is(err, sql.ErrNoRows) {
		// Either unknown id or already closed; caller distinguishes via GetPosition if needed.
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("read position for close", err)
	}

	grossPnl := (closePrice - entryPrice) * qty
	if side == string(models.SideShort) {
		grossPnl = (entryPrice - closePrice) * qty
	}
	var fundingPnl float64
	realizedPnl := grossPnl - feesOpen - closeFee - fundingPnl

	res, err := tx.Exec(`
		UPDATE positions
		SET status = ?, close_price = ?, close_time = ?, fees_close = ?, realized_pnl = ?, funding_pnl = ?
		WHERE id = ? AND status = ?`,
		string(models.StatusClosed), closePrice, ts, closeFee, realizedPnl, fundingPnl,
		id, string(models.StatusOpen),
	)
	if err != nil {
		return nil, apperr.Storage("update position on close", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, apperr.Storage("read rows affected on close", err)
	}
	if affected == 0 {
		// Lost the race to a concurrent closer; treat as no-op.
		return nil, nil
	}

	if _, err := tx.Exec(`
		INSERT INTO fills (position_id, type, price, qty, fee, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(models.FillTypeClose), closePrice, qty, closeFee, ts,
	); err != nil {
		return nil, apperr.Storage("insert close fill", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO events (position_id, event, payload, ts) VALUES (?, ?, ?, ?)`,
		id, string(event), "{}", ts,
	); err != nil {
		return nil, apperr.Storage("insert close event", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("commit close position tx", err)
	}

	return s.GetPosition(id)
}

// DeletePosition unconditionally removes the position; ON DELETE CASCADE
// removes its fills and events.
func (s *Store) DeletePosition(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return false, apperr.Storage("delete position", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Storage("read rows affected on delete", err)
	}
	return affected > 0, nil
}

// ListEvents returns events ordered newest-first, optionally scoped to a
// single position and bounded by limit (0 = unbounded).
func (s *Store) ListEvents(positionID *int64, limit int) ([]*models.Event, error) {
	query := `SELECT id, position_id, event, payload, ts FROM events`
	var args []interface{}
	if positionID != nil {
		query += ` WHERE position_id = ?`
		args = append(args, *positionID)
	}
	query += ` ORDER BY ts DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Storage("list events", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e := &models.Event{}
		if err := rows.Scan(&e.ID, &e.PositionID, &e.Event, &e.Payload, &e.Ts); err != nil {
			return nil, apperr.Storage("scan event row", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate event rows", err)
	}
	return events, nil
}

// ListPositionsInRange returns CLOSED positions with closeTime within
// [start, end] (either bound optional) and matching symbol if given,
// ordered by closeTime ascending for deterministic CSV export.
func (s *Store) ListPositionsInRange(start, end *int64, symbol string) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE status = ?`
	args := []interface{}{string(models.StatusClosed)}

	if start != nil {
		query += ` AND close_time >= ?`
		args = append(args, *start)
	}
	if end != nil {
		query += ` AND close_time <= ?`
		args = append(args, *end)
	}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, strings.ToUpper(symbol))
	}
	query += ` ORDER BY close_time ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Storage("list positions in range", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, apperr.Storage("scan position row", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate position rows", err)
	}
	return positions, nil
}

// GetSettings returns the single settings row, seeding defaults if absent.
func (s *Store) GetSettings() (*models.Settings, error) {
	row := s.db.QueryRow(`
		SELECT id, taker_fee, maker_fee, enable_funding, base_balance,
			default_stop_loss_percent, default_take_profit_percent, number_format, timezone
		FROM settings WHERE id = 1`)

	set := &models.Settings{}
	err := row.Scan(&set.ID, &set.TakerFee, &set.MakerFee, &set.EnableFunding, &set.BaseBalance,
		&set.DefaultStopLossPercent, &set.DefaultTakeProfitPercent, &set.NumberFormat, &set.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		defaults := models.DefaultSettings()
		if err := s.seedSettings(&defaults); err != nil {
			return nil, err
		}
		return &defaults, nil
	}
	if err != nil {
		return nil, apperr.Storage("get settings", err)
	}
	return set, nil
}

func (s *Store) seedSettings(set *models.Settings) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (id, taker_fee, maker_fee, enable_funding, base_balance,
			default_stop_loss_percent, default_take_profit_percent, number_format, timezone)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		set.TakerFee, set.MakerFee, set.EnableFunding, set.BaseBalance,
		set.DefaultStopLossPercent, set.DefaultTakeProfitPercent, set.NumberFormat, set.Timezone,
	)
	if err != nil {
		return apperr.Storage("seed default settings", err)
	}
	return nil
}

// UpdateSettings applies a partial update and returns the resulting row.
func (s *Store) UpdateSettings(req models.UpdateSettingsRequest) (*models.Settings, error) {
	current, err := s.GetSettings()
	if err != nil {
		return nil, err
	}
	req.Apply(current)

	_, err = s.db.Exec(`
		UPDATE settings SET taker_fee = ?, maker_fee = ?, enable_funding = ?, base_balance = ?,
			default_stop_loss_percent = ?, default_take_profit_percent = ?, number_format = ?, timezone = ?
		WHERE id = 1`,
		current.TakerFee, current.MakerFee, current.EnableFunding, current.BaseBalance,
		current.DefaultStopLossPercent, current.DefaultTakeProfitPercent, current.NumberFormat, current.Timezone,
	)
	if err != nil {
		return nil, apperr.Storage("update settings", err)
	}
	return current, nil
}
