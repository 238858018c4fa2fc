package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore implements Store on top of database/sql and the MySQL driver.
// It is assembled from one repository per table so each file stays focused
// on its own schema.
type MySQLStore struct {
	*RestaurantRepo
	*TableRepo
	*ReservationRepo
	*WaitlistRepo
	*SeriesRepo
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore returns a Store bound to the given database.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		RestaurantRepo:  NewRestaurantRepo(db),
		TableRepo:       NewTableRepo(db),
		ReservationRepo: NewReservationRepo(db),
		WaitlistRepo:    NewWaitlistRepo(db),
		SeriesRepo:      NewSeriesRepo(db),
		db:              db,
	}
}

// DB exposes the underlying handle, e.g. for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// mysqlErrDuplicateEntry is ER_DUP_ENTRY.
const mysqlErrDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// rollback is deferred after BeginTx; it is a no-op once committed is set.
func rollback(tx *sql.Tx, committed *bool) {
	if !*committed {
		_ = tx.Rollback()
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

// dateString formats a DATE column scanned with parseTime=true.
func dateString(t time.Time) string { return t.Format("2006-01-02") }

func nullDatePtr(nt sql.NullTime) *string {
	if !nt.Valid {
		return nil
	}
	s := dateString(nt.Time)
	return &s
}
