package datarecording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

const (
	eventTable    = "events"
	execInfoTable = "exec_info"
)

type sqliteStore struct {
	*sql.DB

	filename string
}

// OpenSQLite creates a store backed by a new SQLite file named
// path + ".sqlite3". An existing file is never overwritten.
func OpenSQLite(path string) (Store, error) {
	filename := path + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}

	return &sqliteStore{DB: db, filename: filename}, nil
}

func (s *sqliteStore) CreateTables(ctx context.Context) error {
	for name, sample := range map[string]any{
		eventTable:    Event{},
		execInfoTable: ExecInfo{},
	} {
		fields := strings.Join(structs.Names(sample), ", \n\t")
		query := `CREATE TABLE IF NOT EXISTS ` + name +
			` (` + "\n\t" + fields + "\n" + `);`

		if _, err := s.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}

	return nil
}

func (s *sqliteStore) WriteEvents(ctx context.Context, events []Event) error {
	entries := make([]any, len(events))
	for i, e := range events {
		entries[i] = e
	}

	return s.insert(ctx, eventTable, Event{}, entries)
}

func (s *sqliteStore) WriteExecInfo(ctx context.Context, infos []ExecInfo) error {
	entries := make([]any, len(infos))
	for i, e := range infos {
		entries[i] = e
	}

	return s.insert(ctx, execInfoTable, ExecInfo{}, entries)
}

func (s *sqliteStore) insert(
	ctx context.Context,
	table string,
	sample any,
	entries []any,
) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	placeholders := structs.Names(sample)
	for i := range placeholders {
		placeholders[i] = "?"
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+table+" VALUES ("+strings.Join(placeholders, ", ")+")")
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx, structs.Values(entry)...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) ReadEvents(ctx context.Context, runID string) ([]Event, error) {
	columns := strings.Join(structs.Names(Event{}), ", ")

	rows, err := s.QueryContext(ctx,
		"SELECT "+columns+" FROM "+eventTable+" WHERE RunID = ? ORDER BY rowid",
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.TimeNS, &e.Component,
			&e.Actor, &e.Pos, &e.Item, &e.Detail,
		); err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

func (s *sqliteStore) String() string {
	return s.filename
}
