// Command tms runs the Trust Manager System credential broker: it loads the
// TOML configuration, opens the store, applies migrations, performs the
// seeded install on first run, and serves the HTTP surface described in
// SPEC_FULL.md §6.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: postgres, selected via TMS_DB_DRIVER
	_ "modernc.org/sqlite"             // driver: sqlite, the default

	"github.com/tms-project/tms/internal/applog"
	"github.com/tms-project/tms/internal/bootstrap"
	"github.com/tms-project/tms/internal/config"
	"github.com/tms-project/tms/internal/httpapi"
	"github.com/tms-project/tms/internal/keygen"
	"github.com/tms-project/tms/internal/kernel"
	"github.com/tms-project/tms/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("tms", flag.ContinueOnError)
	rootDirFlag := fs.String("root-dir", "", "root data directory (default ~/.tms)")
	install := fs.Bool("install", false, "run first-time seeding and exit")
	initDirsOnly := fs.Bool("init-dirs-only", false, "materialize the directory layout and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rootDir := config.RootDirFromEnv(*rootDirFlag)
	layout := materializedLayout(rootDir)

	if *initDirsOnly {
		if err := ensureLayout(layout); err != nil {
			fmt.Fprintln(stderr, "tms: init-dirs-only:", err)
			return 1
		}
		fmt.Fprintln(stdout, "initialized", rootDir)
		return 0
	}
	if err := ensureLayout(layout); err != nil {
		fmt.Fprintln(stderr, "tms: directory layout:", err)
		return 1
	}

	logger := applog.NewStderr("tms", os.Getenv("TMS_ENV"))

	dbDriver, dbDSN := dbTargetFromEnv(layout.dbPath)
	cfg, err := config.Load(layout.configDir, rootDir, dbDriver, dbDSN)
	if err != nil {
		fmt.Fprintln(stderr, "tms: config:", err)
		return 1
	}

	ctx := context.Background()
	db, err := store.Connect(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		fmt.Fprintln(stderr, "tms: connect store:", err)
		return 1
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		fmt.Fprintln(stderr, "tms: migrate:", err)
		return 1
	}

	needsInstall, err := bootstrap.NeedsInstall(ctx, db)
	if err != nil {
		fmt.Fprintln(stderr, "tms: check install state:", err)
		return 1
	}
	if needsInstall {
		if err := bootstrap.Run(ctx, db, cfg, stdout); err != nil {
			fmt.Fprintln(stderr, "tms: install:", err)
			return 1
		}
	}
	if *install {
		return 0
	}

	keyPool := keygen.NewPool(4)
	k := kernel.New(db, cfg, keyPool)
	handler := httpapi.New(k, cfg, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintln(stderr, "tms: serve:", err)
		return 1
	}
	return 0
}

// layout is the filesystem structure created under the root data
// directory: certs/, config/, database/, logs/, all owner-only. No
// migrations/ directory is created; the migration files are embedded in
// the binary and applied by store.Migrate.
type layout struct {
	root        string
	certsDir    string
	configDir   string
	databaseDir string
	logsDir     string
	dbPath      string
}

// dbTargetFromEnv resolves the driver/DSN pair store.Connect opens. TMS_DB_DRIVER
// defaults to sqlite against the fixed database/ layout path; set it to
// "postgres" alongside TMS_DB_DSN to run against Postgres instead, the same
// two-driver split internal/store/db.go's pool tuning already accounts for.
func dbTargetFromEnv(sqlitePath string) (driver, dsn string) {
	driver = os.Getenv("TMS_DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	dsn = os.Getenv("TMS_DB_DSN")
	if dsn == "" && driver == "sqlite" {
		dsn = sqlitePath
	}
	return driver, dsn
}

func materializedLayout(root string) layout {
	return layout{
		root:        root,
		certsDir:    filepath.Join(root, "certs"),
		configDir:   filepath.Join(root, "config"),
		databaseDir: filepath.Join(root, "database"),
		logsDir:     filepath.Join(root, "logs"),
		dbPath:      filepath.Join(root, "database", "tms.db"),
	}
}

func ensureLayout(l layout) error {
	for _, dir := range []string{l.root, l.certsDir, l.configDir, l.databaseDir, l.logsDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return writeLoggingConfigOnce(l)
}

// logConfigTemplate is the declarative logging file §6 names, with a single
// templated {{TMS_ROOT_DIR}} substituted once on first install.
const logConfigTemplate = `# TMS logging configuration
# log_dir is substituted once at install time; edit the generated file
# afterward to change log destinations or levels.
log_dir: "{{TMS_ROOT_DIR}}/logs"
level: info
format: json
`

func writeLoggingConfigOnce(l layout) error {
	path := filepath.Join(l.configDir, "log4rs.yml")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	rendered := strings.ReplaceAll(logConfigTemplate, "{{TMS_ROOT_DIR}}", l.root)
	return os.WriteFile(path, []byte(rendered), 0o600)
}
