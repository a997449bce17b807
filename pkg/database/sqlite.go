package database

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	// SQLiteDriverName is the database/sql driver registered with the
	// extra functions below.
	SQLiteDriverName = "sqlite3_lms"

	// FoldFunc lowercases its argument with full Unicode case mapping.
	// SQLite's built-in LOWER only folds ASCII.
	FoldFunc = "lms_fold"
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(FoldFunc, fold, true)
		},
	})
}

func fold(v interface{}) interface{} {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		return strings.ToLower(string(s))
	default:
		return v
	}
}

// SQLite opens dsn through the driver that knows FoldFunc.
func SQLite(dsn string) gorm.Dialector {
	return sqlite.New(sqlite.Config{DriverName: SQLiteDriverName, DSN: dsn})
}
