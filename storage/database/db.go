package database

import (
	"context"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

// Engines
const (
	Postgres = "postgres"
	MySQL    = "mysql"
)

var errUnsupportedEngine = errors.New("unsupported database engine")

// MigrationsDir returns the embedded migrations directory of the engine.
func MigrationsDir(engine string) string {
	return "migrations/" + engine
}

func dataSourceName(dbName string, admin bool, conf *core.Config) (string, error) {
	dbUser, dbPassword := conf.Database.User, conf.Database.Password
	if admin && conf.Database.AdminUser != "" {
		dbUser, dbPassword = conf.Database.AdminUser, conf.Database.AdminPassword
	}

	switch conf.Database.Engine {
	case Postgres:
		sslMode := "require"
		if conf.Database.DisableTLS {
			sslMode = "disable"
		}
		q := make(url.Values)
		q.Set("sslmode", sslMode)
		q.Set("timezone", "utc")

		u := url.URL{
			Scheme:   Postgres,
			User:     url.UserPassword(dbUser, dbPassword),
			Host:     conf.Database.Address(),
			Path:     dbName,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case MySQL:
		mc := mysql.NewConfig()
		mc.User = dbUser
		mc.Passwd = dbPassword
		mc.Net = "tcp"
		mc.Addr = conf.Database.Address()
		mc.DBName = dbName
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.MultiStatements = true
		mc.ClientFoundRows = true // UPDATE reports matched rows, like postgres
		if !conf.Database.DisableTLS {
			mc.TLSConfig = "true"
		}
		return mc.FormatDSN(), nil
	default:
		return "", errors.Wrap(errUnsupportedEngine, conf.Database.Engine)
	}
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	dsn, err := dataSourceName(dbName, admin, conf)
	if err != nil {
		return nil, err
	}
	return sqlx.Open(conf.Database.Engine, dsn)
}

// Open opens the application database and waits for it to be ready.
func Open(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

func exists(ctx context.Context, db *sqlx.DB, query string, args ...interface{}) (bool, error) {
	var found []int
	if err := db.SelectContext(ctx, &found, db.Rebind(query), args...); err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func createAppUser(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" || conf.Database.User == conf.Database.AdminUser {
		return nil
	}

	var (
		q     string
		found bool
		err   error
	)
	switch conf.Database.Engine {
	case Postgres:
		found, err = exists(ctx, db, "SELECT 1 FROM pg_roles WHERE rolname = ?", conf.Database.User)
		q = fmt.Sprintf("CREATE USER %q CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
	case MySQL:
		found, err = exists(ctx, db, "SELECT 1 FROM mysql.user WHERE user = ?", conf.Database.User)
		q = fmt.Sprintf("CREATE USER '%s'@'%%' IDENTIFIED BY '%s'", conf.Database.User, conf.Database.Password)
	}
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		if _, err = db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	var (
		found bool
		err   error
	)
	switch conf.Database.Engine {
	case Postgres:
		found, err = exists(ctx, db, "SELECT 1 FROM pg_database WHERE datname = ?", conf.Database.Name)
	case MySQL:
		found, err = exists(ctx, db, "SELECT 1 FROM information_schema.schemata WHERE schema_name = ?", conf.Database.Name)
	}
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if found {
		return nil
	}

	if _, err = db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
		return errors.Wrap(err, "creating database")
	}
	if conf.Database.Engine == MySQL && conf.Database.User != "" {
		q := fmt.Sprintf("GRANT ALL PRIVILEGES ON %s.* TO '%s'@'%%'", conf.Database.Name, conf.Database.User)
		if _, err = db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "granting privileges")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user & database with the admin credentials.
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	adminDB := Postgres
	if conf.Database.Engine == MySQL {
		adminDB = ""
	}

	db, err := open(adminDB, true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(ctx, db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(ctx, db, conf); err != nil {
		return err
	}
	return createDB(ctx, db, conf)
}

// PrepareGoose points goose to the embedded migrations of the engine.
func PrepareGoose(engine string) error {
	goose.SetBaseFS(migrationsFS)
	return errors.Wrap(goose.SetDialect(engine), "setting goose dialect")
}

func Migrate(db *sqlx.DB, engine string) error {
	if err := PrepareGoose(engine); err != nil {
		return err
	}
	if err := goose.Up(db.DB, MigrationsDir(engine)); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
