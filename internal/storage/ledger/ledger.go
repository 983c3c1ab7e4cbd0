// Package ledger persists positions and candles in a SQLite database.
package ledger

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"coinpilot/internal/domain"
)

// Store is the relational ledger holding position rows and warm candle rows.
// Writes are individually atomic row operations; there is no cross-row
// transaction, so a crashed reconciliation pass may be partial and is
// converged by the next pass.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// WAL mode so the web boundary can read while the loop writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set WAL mode")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol        TEXT NOT NULL,
			buy_price     REAL NOT NULL,
			buy_amount    REAL NOT NULL,
			buy_time      INTEGER NOT NULL,
			sell_price    REAL,
			sell_time     INTEGER,
			status        TEXT NOT NULL DEFAULT 'open',
			profit_rate   REAL,
			strategy_name TEXT,
			close_reason  TEXT
		)`,
		// at most one open position per instrument
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open
			ON positions(symbol) WHERE status='open'`,

		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL,
			UNIQUE(symbol, ts)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LogBuy inserts an open position and returns its row id.
func (s *Store) LogBuy(symbol string, price, amount decimal.Decimal, strategyName string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO positions (symbol, buy_price, buy_amount, buy_time, status, strategy_name)
		 VALUES (?, ?, ?, ?, 'open', ?)`,
		symbol, price.InexactFloat64(), amount.InexactFloat64(), time.Now().Unix(), strategyName,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "log buy for %s", symbol)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "last insert id")
	}
	return id, nil
}

// LogSell closes the position, recording the sell price, the close reason
// and the profit rate computed against the stored buy price.
func (s *Store) LogSell(id int64, sellPrice decimal.Decimal, reason string) error {
	var buyPrice float64
	err := s.db.QueryRow(`SELECT buy_price FROM positions WHERE id=?`, id).Scan(&buyPrice)
	if err != nil {
		return errors.Wrapf(err, "load position %d", id)
	}

	profitRate := domain.ProfitRate(decimal.NewFromFloat(buyPrice), sellPrice)

	_, err = s.db.Exec(
		`UPDATE positions
		 SET status='closed', sell_price=?, sell_time=?, close_reason=?, profit_rate=?
		 WHERE id=?`,
		sellPrice.InexactFloat64(), time.Now().Unix(), reason, profitRate, id,
	)
	return errors.Wrapf(err, "log sell for position %d", id)
}

// CloseZombie force-closes a position whose holding vanished externally.
// The sell price is unknown and recorded as 0.
func (s *Store) CloseZombie(id int64) error {
	_, err := s.db.Exec(
		`UPDATE positions
		 SET status='closed', sell_price=0, sell_time=?, close_reason=?
		 WHERE id=? AND status='open'`,
		time.Now().Unix(), domain.CloseReasonZombie, id,
	)
	return errors.Wrapf(err, "close zombie position %d", id)
}

// OpenPositions returns all open positions.
func (s *Store) OpenPositions() ([]domain.Position, error) {
	rows, err := s.db.Query(
		`SELECT id, symbol, buy_price, buy_amount, buy_time, strategy_name
		 FROM positions WHERE status='open' ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query open positions")
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var (
			p        domain.Position
			buyPrice float64
			buyAmt   float64
			buyUnix  int64
			strategy sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &buyPrice, &buyAmt, &buyUnix, &strategy); err != nil {
			return nil, errors.Wrap(err, "scan open position")
		}
		p.BuyPrice = decimal.NewFromFloat(buyPrice)
		p.BuyAmount = decimal.NewFromFloat(buyAmt)
		p.BuyTime = time.Unix(buyUnix, 0)
		p.Status = domain.PositionStatusOpen
		p.StrategyName = strategy.String
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// OpenPosition returns the open position for the symbol, or nil.
func (s *Store) OpenPosition(symbol string) (*domain.Position, error) {
	positions, err := s.OpenPositions()
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Symbol == symbol {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// OpenPositionCount returns the number of open positions.
func (s *Store) OpenPositionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM positions WHERE status='open'`).Scan(&count)
	return count, errors.Wrap(err, "count open positions")
}

// Position returns a position by row id regardless of status.
func (s *Store) Position(id int64) (*domain.Position, error) {
	var (
		p          domain.Position
		buyPrice   float64
		buyAmt     float64
		buyUnix    int64
		sellPrice  sql.NullFloat64
		sellUnix   sql.NullInt64
		status     string
		profitRate sql.NullFloat64
		strategy   sql.NullString
		reason     sql.NullString
	)
	err := s.db.QueryRow(
		`SELECT id, symbol, buy_price, buy_amount, buy_time, sell_price, sell_time,
		        status, profit_rate, strategy_name, close_reason
		 FROM positions WHERE id=?`, id).
		Scan(&p.ID, &p.Symbol, &buyPrice, &buyAmt, &buyUnix, &sellPrice, &sellUnix,
			&status, &profitRate, &strategy, &reason)
	if err != nil {
		return nil, errors.Wrapf(err, "load position %d", id)
	}

	p.BuyPrice = decimal.NewFromFloat(buyPrice)
	p.BuyAmount = decimal.NewFromFloat(buyAmt)
	p.BuyTime = time.Unix(buyUnix, 0)
	p.Status = domain.PositionStatus(status)
	p.SellPrice = decimal.NewFromFloat(sellPrice.Float64)
	if sellUnix.Valid {
		p.SellTime = time.Unix(sellUnix.Int64, 0)
	}
	p.ProfitRate = profitRate.Float64
	p.StrategyName = strategy.String
	p.CloseReason = reason.String
	return &p, nil
}

// SaveCandles inserts candle rows, ignoring duplicates on (symbol, ts).
func (s *Store) SaveCandles(symbol string, candles []domain.Candle) error {
	stmt, err := s.db.Prepare(
		`INSERT OR IGNORE INTO candles (symbol, ts, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare candle insert")
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(symbol, c.Time.Unix(),
			c.Open.InexactFloat64(), c.High.InexactFloat64(), c.Low.InexactFloat64(),
			c.Close.InexactFloat64(), c.Volume.InexactFloat64())
		if err != nil {
			return errors.Wrapf(err, "insert candle for %s", symbol)
		}
	}
	return nil
}

// CandleCount returns the number of stored candles for the symbol.
func (s *Store) CandleCount(symbol string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM candles WHERE symbol=?`, symbol).Scan(&count)
	return count, errors.Wrapf(err, "count candles for %s", symbol)
}
