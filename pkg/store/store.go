// Package store persists normalized address records and run summaries
// in a local SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cep-pipeline/pkg/transform"
)

// Store wraps the SQLite database holding the address base.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.With().Str("component", "store").Logger(),
	}, nil
}

// Init creates the schema. With reset, the address table is dropped
// first so every run exercises creation and insertion from scratch.
// Run history is always preserved.
func (s *Store) Init(reset bool) error {
	if reset {
		if _, err := s.db.Exec(`DROP TABLE IF EXISTS enderecos;`); err != nil {
			return fmt.Errorf("drop enderecos: %w", err)
		}
		s.logger.Info().Msg("Address table dropped (reset)")
	}

	schema := `
	CREATE TABLE IF NOT EXISTS enderecos (
		id_endereco INTEGER PRIMARY KEY AUTOINCREMENT,
		cep TEXT NOT NULL UNIQUE,
		logradouro TEXT,
		complemento TEXT,
		unidade TEXT,
		bairro TEXT,
		localidade TEXT,
		uf TEXT,
		estado TEXT,
		regiao TEXT,
		ibge TEXT,
		gia TEXT,
		ddd TEXT,
		siafi TEXT,
		data_registro TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		keys INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		inserted INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// InsertAddresses appends records to the address base, skipping CEPs
// already present. Returns how many records were inserted and skipped.
func (s *Store) InsertAddresses(addresses []transform.Address) (inserted, skipped int, err error) {
	if len(addresses) == 0 {
		return 0, 0, nil
	}

	existing, err := s.existingCEPs()
	if err != nil {
		return 0, 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO enderecos
			(cep, logradouro, complemento, unidade, bairro, localidade,
			 uf, estado, regiao, ibge, gia, ddd, siafi)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, addr := range addresses {
		if _, dup := existing[addr.CEP]; dup {
			skipped++
			continue
		}

		if _, err := stmt.Exec(
			addr.CEP, addr.Logradouro, addr.Complemento, addr.Unidade,
			addr.Bairro, addr.Localidade, addr.UF, addr.Estado,
			addr.Regiao, addr.IBGE, addr.GIA, addr.DDD, addr.SIAFI,
		); err != nil {
			return 0, 0, fmt.Errorf("insert cep %s: %w", addr.CEP, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit insert: %w", err)
	}

	if skipped > 0 {
		s.logger.Warn().
			Int("skipped", skipped).
			Msg("CEPs already present in the address base - skipped")
	}
	s.logger.Info().
		Int("inserted", inserted).
		Msg("Addresses persisted")

	return inserted, skipped, nil
}

// CountAddresses returns the number of rows in the address base.
func (s *Store) CountAddresses() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM enderecos`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count addresses: %w", err)
	}
	return count, nil
}

// RunSummary captures the accounting of one pipeline invocation.
type RunSummary struct {
	ID         string
	Mode       string
	Keys       int
	Succeeded  int
	Failed     int
	Inserted   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordRun appends a run summary to the runs table.
func (s *Store) RecordRun(run RunSummary) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, mode, keys, succeeded, failed, inserted, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Keys, run.Succeeded, run.Failed, run.Inserted,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// existingCEPs loads the set of CEPs already in the address base.
func (s *Store) existingCEPs() (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT cep FROM enderecos`)
	if err != nil {
		return nil, fmt.Errorf("query existing CEPs: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]struct{})
	for rows.Next() {
		var cep string
		if err := rows.Scan(&cep); err != nil {
			return nil, fmt.Errorf("scan cep: %w", err)
		}
		existing[cep] = struct{}{}
	}
	return existing, rows.Err()
}
