package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reliantlabs/medcat/internal/catalog"
)

// Postgres stores catalog records and import state in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// EnsureSchema creates the per-kind tables and the import-state table when
// they do not exist. All catalog fields are TEXT; identity keys get a unique
// index so concurrent writers cannot slip duplicates past a stale snapshot.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, def := range catalog.All() {
		cols := make([]string, 0, len(def.Fields)+5)
		cols = append(cols,
			"id UUID PRIMARY KEY",
			"identity_key TEXT UNIQUE",
		)
		for _, f := range def.Fields {
			cols = append(cols, quoteIdentifier(f.Name)+" TEXT")
		}
		cols = append(cols,
			"import_id TEXT",
			"created_at TIMESTAMPTZ NOT NULL DEFAULT now()",
			"updated_at TIMESTAMPTZ NOT NULL DEFAULT now()",
		)

		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
			quoteIdentifier(def.Table), strings.Join(cols, ", "))
		if _, err := p.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", def.Table, err)
		}
	}

	ddl := `CREATE TABLE IF NOT EXISTS import_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table import_state: %w", err)
	}
	return nil
}

// List returns the full corpus for a kind.
func (p *Postgres) List(ctx context.Context, kind catalog.Kind) ([]catalog.Record, error) {
	def, err := definitionFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(quoteColumns(def.FieldNames()), ", "),
		quoteIdentifier(def.Table))

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	return scanRecords(rows, def)
}

// Count returns the number of persisted records for a kind.
func (p *Postgres) Count(ctx context.Context, kind catalog.Kind) (int64, error) {
	def, err := definitionFor(kind)
	if err != nil {
		return 0, err
	}

	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdentifier(def.Table))
	if err := p.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// Search returns one page of records whose identity or name fields contain
// the query text (case-insensitive). An empty query pages over everything.
func (p *Postgres) Search(ctx context.Context, kind catalog.Kind, query string, limit, offset int) (Page, error) {
	def, err := definitionFor(kind)
	if err != nil {
		return Page{}, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if query != "" {
		conds := make([]string, 0, 3)
		for _, f := range searchFields(def) {
			conds = append(conds, fmt.Sprintf("%s ILIKE '%%' || $1 || '%%'", quoteIdentifier(f)))
		}
		where = " WHERE " + strings.Join(conds, " OR ")
		args = append(args, query)
	}

	var total int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdentifier(def.Table), where)
	if err := p.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("search count %s: %w", kind, err)
	}

	pageSQL := fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY identity_key ASC NULLS LAST, created_at ASC LIMIT %d OFFSET %d",
		strings.Join(quoteColumns(def.FieldNames()), ", "),
		quoteIdentifier(def.Table), where, limit, offset)

	rows, err := p.pool.Query(ctx, pageSQL, args...)
	if err != nil {
		return Page{}, fmt.Errorf("search %s: %w", kind, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows, def)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Total: total, Limit: limit, Offset: offset}, nil
}

// GetByKey fetches the record with the given identity key.
func (p *Postgres) GetByKey(ctx context.Context, kind catalog.Kind, key string) (catalog.Record, bool, error) {
	def, err := definitionFor(kind)
	if err != nil {
		return nil, false, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE identity_key = $1",
		strings.Join(quoteColumns(def.FieldNames()), ", "),
		quoteIdentifier(def.Table))

	rows, err := p.pool.Query(ctx, query, key)
	if err != nil {
		return nil, false, fmt.Errorf("get %s by key: %w", kind, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows, def)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

// Create persists a single record.
func (p *Postgres) Create(ctx context.Context, kind catalog.Kind, rec catalog.Record) error {
	def, err := definitionFor(kind)
	if err != nil {
		return err
	}

	sql, args := insertStatement(def, rec, "")
	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("create %s: %w", kind, wrapDuplicate(err))
	}
	return nil
}

// BulkCreate persists all records in one transaction, stamped with the
// import session that produced them. Any failure rolls the whole batch back.
func (p *Postgres) BulkCreate(ctx context.Context, kind catalog.Kind, records []catalog.Record, importID string) error {
	if len(records) == 0 {
		return nil
	}
	def, err := definitionFor(kind)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bulk create: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		sql, args := insertStatement(def, rec, importID)
		batch.Queue(sql, args...)
	}

	br := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("bulk create %s: %w", kind, wrapDuplicate(err))
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("bulk create %s: %w", kind, err)
	}

	return tx.Commit(ctx)
}

// Update replaces the field values of the record with the given identity key.
func (p *Postgres) Update(ctx context.Context, kind catalog.Kind, key string, rec catalog.Record) error {
	def, err := definitionFor(kind)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(def.Fields)+2)
	args := make([]any, 0, len(def.Fields)+2)

	var newKey any
	if k, ok := identityValue(def, rec); ok {
		newKey = k
	}
	args = append(args, newKey)
	sets = append(sets, "identity_key = $1")

	for _, f := range def.Fields {
		args = append(args, textOrNil(rec[f.Name]))
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdentifier(f.Name), len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, key)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE identity_key = $%d",
		quoteIdentifier(def.Table), strings.Join(sets, ", "), len(args))

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, wrapDuplicate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: no record with key %q", kind, key)
	}
	return nil
}

// DeleteImport removes every record created by one import session and
// returns how many rows went away.
func (p *Postgres) DeleteImport(ctx context.Context, kind catalog.Kind, importID string) (int64, error) {
	def, err := definitionFor(kind)
	if err != nil {
		return 0, err
	}
	if importID == "" {
		return 0, fmt.Errorf("empty import id")
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE import_id = $1", quoteIdentifier(def.Table))
	tag, err := p.pool.Exec(ctx, query, importID)
	if err != nil {
		return 0, fmt.Errorf("delete import %s: %w", importID, err)
	}
	return tag.RowsAffected(), nil
}

// GetState reads one import-state value; missing keys return "".
func (p *Postgres) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, "SELECT value FROM import_state WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState writes one import-state value.
func (p *Postgres) SetState(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO import_state (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// States returns every import-state entry whose key starts with prefix.
func (p *Postgres) States(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT key, value FROM import_state WHERE key LIKE $1 || '%'", prefix)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// insertStatement builds the INSERT for one record. Keyless records store a
// NULL identity key, which the unique index permits repeatedly.
func insertStatement(def catalog.Definition, rec catalog.Record, importID string) (string, []any) {
	cols := []string{"id", "identity_key"}
	args := []any{uuid.New(), nil}
	if key, ok := identityValue(def, rec); ok {
		args[1] = key
	}

	for _, f := range def.Fields {
		cols = append(cols, quoteIdentifier(f.Name))
		args = append(args, textOrNil(rec[f.Name]))
	}

	cols = append(cols, "import_id")
	args = append(args, textOrNil(importID))

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(def.Table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "))
	return sql, args
}

// scanRecords converts query rows into records, skipping NULL and empty
// cells so records stay sparse like their candidates were.
func scanRecords(rows pgx.Rows, def catalog.Definition) ([]catalog.Record, error) {
	fields := def.FieldNames()

	var records []catalog.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", def.Table, err)
		}

		rec := make(catalog.Record, len(fields))
		for i, field := range fields {
			if i >= len(values) || values[i] == nil {
				continue
			}
			if s, ok := values[i].(string); ok && s != "" {
				rec[field] = s
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// wrapDuplicate tags unique-constraint violations with ErrDuplicateKey so
// callers can tell a snapshot race from other failures.
func wrapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.Detail)
	}
	return err
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteColumns(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdentifier(n)
	}
	return out
}
