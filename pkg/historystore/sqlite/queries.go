package sqlite

import (
	"context"
	"database/sql"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

type DeviceHistory struct {
	Name     string
	Position int64
	LastSeen time.Time
}

const listHistory = `-- name: ListHistory :many
select name, position, last_seen from device_history order by position
`

func (q *Queries) ListHistory(ctx context.Context) ([]DeviceHistory, error) {
	rows, err := q.db.QueryContext(ctx, listHistory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DeviceHistory
	for rows.Next() {
		var i DeviceHistory
		if err := rows.Scan(&i.Name, &i.Position, &i.LastSeen); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteHistory = `-- name: DeleteHistory :exec
delete from device_history
`

func (q *Queries) DeleteHistory(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteHistory)
	return err
}

const insertHistoryEntry = `-- name: InsertHistoryEntry :exec
insert into device_history (name, position, last_seen) values (?, ?, ?)
`

type InsertHistoryEntryParams struct {
	Name     string
	Position int64
	LastSeen time.Time
}

func (q *Queries) InsertHistoryEntry(ctx context.Context, arg InsertHistoryEntryParams) error {
	_, err := q.db.ExecContext(ctx, insertHistoryEntry, arg.Name, arg.Position, arg.LastSeen)
	return err
}

const getSetting = `-- name: GetSetting :one
select value from settings where key = ?
`

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	row := q.db.QueryRowContext(ctx, getSetting, key)
	var value string
	err := row.Scan(&value)
	return value, err
}

const setSetting = `-- name: SetSetting :exec
insert into settings (key, value) values (?, ?)
on conflict (key) do update set value = excluded.value
`

type SetSettingParams struct {
	Key   string
	Value string
}

func (q *Queries) SetSetting(ctx context.Context, arg SetSettingParams) error {
	_, err := q.db.ExecContext(ctx, setSetting, arg.Key, arg.Value)
	return err
}

const listCounters = `-- name: ListCounters :many
select name, value from counters
`

type Counter struct {
	Name  string
	Value int64
}

func (q *Queries) ListCounters(ctx context.Context) ([]Counter, error) {
	rows, err := q.db.QueryContext(ctx, listCounters)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Counter
	for rows.Next() {
		var i Counter
		if err := rows.Scan(&i.Name, &i.Value); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setCounter = `-- name: SetCounter :exec
insert into counters (name, value) values (?, ?)
on conflict (name) do update set value = excluded.value
`

type SetCounterParams struct {
	Name  string
	Value int64
}

func (q *Queries) SetCounter(ctx context.Context, arg SetCounterParams) error {
	_, err := q.db.ExecContext(ctx, setCounter, arg.Name, arg.Value)
	return err
}

const dumpTables = `-- name: DumpTables :many
select sql from sqlite_master
where type = 'table' and name not like 'sqlite_%'
order by name
`

func (q *Queries) DumpTables(ctx context.Context) ([]*string, error) {
	return q.dumpStatements(ctx, dumpTables)
}

const dumpRest = `-- name: DumpRest :many
select sql from sqlite_master
where type != 'table' and name not like 'sqlite_%'
order by name
`

func (q *Queries) DumpRest(ctx context.Context) ([]*string, error) {
	return q.dumpStatements(ctx, dumpRest)
}

func (q *Queries) dumpStatements(ctx context.Context, query string) ([]*string, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*string
	for rows.Next() {
		var statement *string
		if err := rows.Scan(&statement); err != nil {
			return nil, err
		}
		items = append(items, statement)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
