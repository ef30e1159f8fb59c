package dict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	_ "modernc.org/sqlite"
)

const sqliteQueryTimeout = 5 * time.Second

// sqliteConfig is the parameter file named by a "sqlite:" spec.
type sqliteConfig struct {
	DBPath string `toml:"dbpath"`
	// Query may contain %s (whole key), %u (local part) and %d (domain).
	Query string `toml:"query"`
}

type sqliteDict struct {
	db    *sql.DB
	query string
	args  []byte
	fold  bool
}

func openSQLite(name string, flags Flags, _ *slog.Logger) (Dict, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var cfg sqliteConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if strings.TrimSpace(cfg.DBPath) == "" || strings.TrimSpace(cfg.Query) == "" {
		return nil, fmt.Errorf("%w: %s needs dbpath and query", ErrBadSpec, name)
	}
	query, args, err := compileQuery(cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=query_only(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqliteQueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", cfg.DBPath, err)
	}
	return &sqliteDict{db: db, query: query, args: args, fold: flags&FlagFoldFixed != 0}, nil
}

// compileQuery turns %s, %u and %d into placeholders and records which
// part of the key each one binds.
func compileQuery(query string) (string, []byte, error) {
	var (
		b    strings.Builder
		args []byte
	)
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(query) {
			return "", nil, fmt.Errorf("%w: query ends with %%", ErrBadSpec)
		}
		i++
		switch query[i] {
		case 's', 'u', 'd':
			b.WriteByte('?')
			args = append(args, query[i])
		case '%':
			b.WriteByte('%')
		default:
			return "", nil, fmt.Errorf("%w: unknown query escape %%%c", ErrBadSpec, query[i])
		}
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: query does not reference the key", ErrBadSpec)
	}
	return b.String(), args, nil
}

func (d *sqliteDict) Lookup(key string) (string, bool, error) {
	if d.fold {
		key = foldKey(key)
	}
	local, domain, hasAt := strings.Cut(key, "@")
	values := make([]any, 0, len(d.args))
	for _, arg := range d.args {
		switch arg {
		case 's':
			values = append(values, key)
		case 'u':
			if local == "" {
				return "", false, nil
			}
			values = append(values, local)
		case 'd':
			if !hasAt || domain == "" {
				return "", false, nil
			}
			values = append(values, domain)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sqliteQueryTimeout)
	defer cancel()
	rows, err := d.db.QueryContext(ctx, d.query, values...)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrLookup, err)
		}
		if value.Valid {
			results = append(results, value.String)
		}
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	if len(results) == 0 {
		return "", false, nil
	}
	return strings.Join(results, ","), true, nil
}

func (d *sqliteDict) Flags() Flags {
	return FlagFixed | FlagSrcRHSIsFile | FlagFoldFixed | FlagLock
}

func (d *sqliteDict) Close() error {
	return d.db.Close()
}
