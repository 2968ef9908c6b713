package datarecording

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type clickHouseStore struct {
	conn clickhouse.Conn
}

// OpenClickHouse creates a store on a ClickHouse server described by a DSN
// such as "clickhouse://localhost:9000/lockstep?username=default".
func OpenClickHouse(ctx context.Context, dsn string) (Store, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid ClickHouse DSN: %w", err)
	}

	opts.DialTimeout = 30 * time.Second
	opts.MaxOpenConns = 5
	opts.MaxIdleConns = 5
	opts.ConnMaxLifetime = time.Hour
	opts.ConnOpenStrategy = clickhouse.ConnOpenInOrder

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &clickHouseStore{conn: conn}, nil
}

func (s *clickHouseStore) CreateTables(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+eventTable+` (
			ID String,
			RunID String,
			TimeNS Int64,
			Component String,
			Actor String,
			Pos String,
			Item String,
			Detail String
		) ENGINE = MergeTree()
		ORDER BY (RunID, TimeNS, ID)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", eventTable, err)
	}

	err = s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+execInfoTable+` (
			RunID String,
			Property String,
			Value String
		) ENGINE = MergeTree()
		ORDER BY (RunID, Property)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", execInfoTable, err)
	}

	return nil
}

func (s *clickHouseStore) WriteEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+eventTable)
	if err != nil {
		return err
	}

	for _, e := range events {
		err := batch.Append(e.ID, e.RunID, e.TimeNS, e.Component,
			e.Actor, e.Pos, e.Item, e.Detail)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (s *clickHouseStore) WriteExecInfo(ctx context.Context, infos []ExecInfo) error {
	if len(infos) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+execInfoTable)
	if err != nil {
		return err
	}

	for _, info := range infos {
		if err := batch.Append(info.RunID, info.Property, info.Value); err != nil {
			return err
		}
	}

	return batch.Send()
}

func (s *clickHouseStore) ReadEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ID, RunID, TimeNS, Component, Actor, Pos, Item, Detail
		FROM `+eventTable+`
		WHERE RunID = ?
		ORDER BY TimeNS, ID`, runID)
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

func (s *clickHouseStore) Close() error {
	return s.conn.Close()
}
