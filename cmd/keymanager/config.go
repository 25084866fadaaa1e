package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rbaliyan/keymanager"
	"github.com/rbaliyan/keymanager/localfs"
	"github.com/rbaliyan/keymanager/sqlshare"

	// Share index drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config is the on-disk configuration of the keymanager tool.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Sharing SharingConfig `yaml:"sharing"`
	Sealing SealingConfig `yaml:"sealing"`
	Log     LogConfig     `yaml:"log"`
}

type StoreConfig struct {
	// Root is the directory holding the per-identity trees and /public-keys.
	Root string `yaml:"root"`
}

type SharingConfig struct {
	// Driver is a database/sql driver name: sqlite3, postgres or mysql.
	// Empty disables sharing; every file then belongs to its requester.
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	TablePrefix string `yaml:"table_prefix"`
}

type SealingConfig struct {
	// KeyFile holds a hex-encoded 32-byte key that seals private keys at rest.
	KeyFile string `yaml:"key_file"`
	KeyID   string `yaml:"key_id"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Store:   StoreConfig{Root: "data"},
		Sealing: SealingConfig{KeyID: "kek-1"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// loadConfig reads the YAML file at path over the defaults. An empty path
// returns the defaults. Unknown keys are rejected.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Store.Root == "" {
		return errors.New("config: store.root is required")
	}
	if c.Sharing.Driver != "" && c.Sharing.DSN == "" {
		return fmt.Errorf("config: sharing.dsn is required for driver %q", c.Sharing.Driver)
	}
	if c.Sealing.KeyFile != "" && c.Sealing.KeyID == "" {
		return errors.New("config: sealing.key_id is required with sealing.key_file")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

func newLogger(cfg LogConfig, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}
	log.SetLevel(lvl)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// openShares opens the configured share index. It returns a nil index and DB
// when sharing is disabled.
func openShares(cfg SharingConfig) (*sqlshare.Index, *sql.DB, error) {
	if cfg.Driver == "" {
		return nil, nil, nil
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s share index: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	ix, err := sqlshare.New(db,
		sqlshare.WithTablePrefix(cfg.TablePrefix),
		sqlshare.WithPlaceholder(sqlshare.PlaceholderFor(cfg.Driver)),
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return ix, db, nil
}

// loadSealer builds a Sealer from the hex key file. A nil Sealer means
// private keys are stored as given. The caller owns the returned provider and
// must Destroy it once the Sealer is no longer used.
func loadSealer(cfg SealingConfig) (*keymanager.Sealer, *keymanager.StaticKeyProvider, error) {
	if cfg.KeyFile == "" {
		return nil, nil, nil
	}
	data, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read sealing key: %w", err)
	}
	defer clear(data)

	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("sealing key %s is not hex: %w", cfg.KeyFile, err)
	}
	defer clear(key)

	provider, err := keymanager.NewStaticKeyProvider(key, cfg.KeyID)
	if err != nil {
		return nil, nil, err
	}
	sealer, err := keymanager.NewBlobSealer(provider)
	if err != nil {
		provider.Destroy()
		return nil, nil, err
	}
	return sealer, provider, nil
}

// env is what every command runs against.
type env struct {
	manager  *keymanager.Manager
	shares   *sqlshare.Index
	db       *sql.DB
	provider *keymanager.StaticKeyProvider
	log      logrus.FieldLogger
}

func openEnv(cfg *Config, log *logrus.Logger) (*env, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store, err := localfs.New(cfg.Store.Root)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	e := &env{log: log}
	opts := []keymanager.Option{keymanager.WithLogger(log)}

	sealer, provider, err := loadSealer(cfg.Sealing)
	if err != nil {
		return nil, err
	}
	e.provider = provider
	if sealer != nil {
		opts = append(opts, keymanager.WithSealer(sealer))
	}

	e.shares, e.db, err = openShares(cfg.Sharing)
	if err != nil {
		e.close()
		return nil, err
	}
	if e.shares != nil {
		opts = append(opts, keymanager.WithShareIndex(e.shares))
	}

	e.manager, err = keymanager.New(store, opts...)
	if err != nil {
		e.close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"root":    store.Root(),
		"sharing": cfg.Sharing.Driver,
		"sealed":  sealer != nil,
	}).Debug("keymanager opened")
	return e, nil
}

// close wipes the sealing key and closes the share index.
func (e *env) close() {
	if e.provider != nil {
		e.provider.Destroy()
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.WithError(err).Warn("closing share index")
		}
	}
}

func (e *env) initDB(ctx context.Context) error {
	if e.shares == nil {
		return errors.New("init-db: sharing.driver is not configured")
	}
	return e.shares.CreateSchema(ctx)
}
