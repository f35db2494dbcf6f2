package outcomes

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var columns = []string{
	"experiment_id",
	"request_id",
	"placement_id",
	"arm",
	"mode",
	"status",
	"landscape_id",
	"bid_id",
	"adapter",
	"cpm",
	"currency",
	"candidates",
	"metadata",
	"error_reason",
	"latency_ms",
	"created_at",
}

// maxBindParams is the largest number of bind parameters each driver accepts in one statement.
var maxBindParams = map[string]int{
	"postgres": 65535,
	"mysql":    65535,
	"sqlite":   32766,
}

// placeholderFunc renders the n-th (1 based) bind parameter for a driver.
type placeholderFunc func(n int) string

func dollarPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func questionPlaceholder(int) string {
	return "?"
}

// SQLStore bulk inserts records into a single table. A batch is written as few multi-row INSERTs
// as the driver's bind parameter limit allows.
type SQLStore struct {
	db          *sql.DB
	table       string
	placeholder placeholderFunc
	rowsPerStmt int
}

// NewSQLStore opens a store for the postgres, mysql or sqlite driver. The sqlite table is created
// when missing so local runs need no migration step; the other schemas are managed externally.
func NewSQLStore(ctx context.Context, driver, dsn, table string) (*SQLStore, error) {
	var placeholder placeholderFunc
	switch driver {
	case "postgres":
		placeholder = dollarPlaceholder
	case "mysql", "sqlite":
		placeholder = questionPlaceholder
	default:
		return nil, fmt.Errorf("unsupported outcome store driver %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s outcome store", driver)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s outcome store", driver)
	}

	store := newSQLStore(db, table, placeholder, maxBindParams[driver])
	if driver == "sqlite" {
		if err := store.createTable(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return store, nil
}

func newSQLStore(db *sql.DB, table string, placeholder placeholderFunc, maxParams int) *SQLStore {
	rows := maxParams / len(columns)
	if rows < 1 {
		rows = 1
	}
	return &SQLStore{
		db:          db,
		table:       table,
		placeholder: placeholder,
		rowsPerStmt: rows,
	}
}

func (s *SQLStore) Write(ctx context.Context, records []Record) error {
	for len(records) > 0 {
		n := len(records)
		if n > s.rowsPerStmt {
			n = s.rowsPerStmt
		}
		query, args := s.insertQuery(records[:n])
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrapf(err, "insert %d outcome records into %s", n, s.table)
		}
		records = records[n:]
	}
	return nil
}

func (s *SQLStore) insertQuery(records []Record) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(records)*len(columns))
	for i, rec := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.placeholder(len(args) + j + 1))
		}
		b.WriteString(")")
		args = append(args, rowValues(rec)...)
	}
	return b.String(), args
}

func rowValues(rec Record) []interface{} {
	var cpm interface{}
	if rec.CPM != nil {
		cpm = *rec.CPM
	}
	return []interface{}{
		rec.ExperimentID,
		rec.RequestID,
		rec.PlacementID,
		rec.Arm,
		string(rec.Mode),
		string(rec.Status),
		nullable(rec.LandscapeID),
		nullable(rec.BidID),
		nullable(rec.Adapter),
		cpm,
		nullable(rec.Currency),
		nullable(string(rec.Candidates)),
		nullable(string(rec.Metadata)),
		nullable(rec.ErrorReason),
		rec.LatencyMs,
		rec.CreatedAt,
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *SQLStore) createTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		experiment_id TEXT NOT NULL,
		request_id    TEXT NOT NULL,
		placement_id  TEXT NOT NULL,
		arm           TEXT NOT NULL,
		mode          TEXT NOT NULL,
		status        TEXT NOT NULL,
		landscape_id  TEXT,
		bid_id        TEXT,
		adapter       TEXT,
		cpm           REAL,
		currency      TEXT,
		candidates    TEXT,
		metadata      TEXT,
		error_reason  TEXT,
		latency_ms    INTEGER NOT NULL,
		created_at    TIMESTAMP NOT NULL
	)`)
	return errors.Wrapf(err, "create table %s", s.table)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
