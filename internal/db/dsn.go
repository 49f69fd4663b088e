package db

import (
	"fmt"
	"strings"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite"
)

// driverFor picks the database/sql driver for a DSN and returns the DSN in the
// form that driver expects. postgres:// URLs and key=value strings go to pgx;
// sqlite: prefixes and *.db / *.sqlite paths go to SQLite.
func driverFor(dsn string) (driver, normalized string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", fmt.Errorf("empty DSN")
	}
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return driverPostgres, dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return driverSQLite, sqliteDSN(dsn[len("sqlite://"):]), nil
	case strings.HasPrefix(lower, "sqlite:"):
		return driverSQLite, sqliteDSN(dsn[len("sqlite:"):]), nil
	case strings.HasPrefix(lower, "file:"), hasSQLiteExt(lower):
		return driverSQLite, sqliteDSN(dsn), nil
	case strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname="):
		return driverPostgres, dsn, nil
	}
	return "", "", fmt.Errorf("unrecognized DSN %q (want postgres:// or sqlite:)", dsn)
}

func hasSQLiteExt(s string) bool {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return strings.HasSuffix(s, ".db") || strings.HasSuffix(s, ".sqlite") || strings.HasSuffix(s, ".sqlite3")
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
