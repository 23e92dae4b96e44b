package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mind-lens/api/internal/util"
)

// AnalysisLog — одна неизменяемая запись об успешном анализе.
type AnalysisLog struct {
	ID        int64           `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Persona   string          `json:"persona"`
	Result    json.RawMessage `json:"result_json"`
}

// AnalysisLogRepo — только добавление и чтение, апдейтов и удалений нет.
type AnalysisLogRepo struct {
	db    *DB
	clock util.Clock
}

func NewAnalysisLogRepo(db *DB, clock util.Clock) *AnalysisLogRepo {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &AnalysisLogRepo{db: db, clock: clock}
}

// bind переписывает $1..$n в ? для sqlite.
func (r *AnalysisLogRepo) bind(q string) string {
	if r.db.Dialect != SQLite {
		return q
	}
	for i := 9; i >= 1; i-- {
		q = strings.ReplaceAll(q, fmt.Sprintf("$%d", i), "?")
	}
	return q
}

// Append сохраняет persona и сырой JSON результата. Возвращает запись после коммита.
func (r *AnalysisLogRepo) Append(ctx context.Context, persona string, result json.RawMessage) (AnalysisLog, error) {
	if !json.Valid(result) {
		return AnalysisLog{}, fmt.Errorf("%w: result is not valid JSON", ErrPersistence)
	}
	if r.db.LivenessCheck {
		if err := r.db.Ping(ctx); err != nil {
			return AnalysisLog{}, fmt.Errorf("%w: ping: %w", ErrPersistence, err)
		}
	}

	log := AnalysisLog{
		CreatedAt: r.clock.Now().UTC(),
		Persona:   persona,
		Result:    result,
	}
	const q = `
insert into analysis_logs (created_at, persona, result_json)
values ($1, $2, $3)
returning id`
	if err := r.db.SQL.QueryRowContext(ctx, r.bind(q), log.CreatedAt, persona, string(result)).Scan(&log.ID); err != nil {
		return AnalysisLog{}, fmt.Errorf("%w: insert: %w", ErrPersistence, err)
	}
	return log, nil
}

func (r *AnalysisLogRepo) Get(ctx context.Context, id int64) (AnalysisLog, error) {
	const q = `select id, created_at, persona, result_json from analysis_logs where id = $1`
	row := r.db.SQL.QueryRowContext(ctx, r.bind(q), id)
	log, err := scanLog(row)
	if err != nil {
		return AnalysisLog{}, readErr("get", err)
	}
	return log, nil
}

// Recent отдаёт записи от новых к старым.
func (r *AnalysisLogRepo) Recent(ctx context.Context, limit, offset int) ([]AnalysisLog, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const q = `
select id, created_at, persona, result_json
from analysis_logs
order by id desc
limit $1 offset $2`
	rows, err := r.db.SQL.QueryContext(ctx, r.bind(q), limit, offset)
	if err != nil {
		return nil, readErr("recent", err)
	}
	defer rows.Close()

	out := []AnalysisLog{}
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, readErr("recent", err)
		}
		out = append(out, log)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("recent", err)
	}
	return out, nil
}

func (r *AnalysisLogRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.SQL.QueryRowContext(ctx, `select count(*) from analysis_logs`).Scan(&n); err != nil {
		return 0, readErr("count", err)
	}
	return n, nil
}

// readErr: ErrNotFound отдаём как есть, остальное — ErrPersistence.
func readErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(s scanner) (AnalysisLog, error) {
	var (
		log     AnalysisLog
		created any
		js      []byte
	)
	if err := s.Scan(&log.ID, &created, &log.Persona, &js); err != nil {
		return AnalysisLog{}, err
	}
	ts, err := asTime(created)
	if err != nil {
		return AnalysisLog{}, err
	}
	log.CreatedAt = ts
	log.Result = json.RawMessage(js)
	return log, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// asTime — sqlite может вернуть время строкой, postgres отдаёт time.Time.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case nil:
		return time.Time{}, errors.New("store: created_at is null")
	default:
		return time.Time{}, fmt.Errorf("store: unexpected created_at type %T", v)
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if ts, err := time.Parse(l, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("store: bad created_at %q", s)
}
