package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const changeChannel = "docstore_changes"

// Postgres stores documents as JSONB rows and turns the table trigger's
// NOTIFY stream into snapshot subscriptions.
type Postgres struct {
	db       *sqlx.DB
	listener *pq.Listener
	hub      *hub
	logger   *zap.Logger
	now      func() time.Time
	done     chan struct{}
}

type documentRow struct {
	ID         string    `db:"id"`
	Collection string    `db:"collection"`
	Data       []byte    `db:"data"`
	CreatedAt  time.Time `db:"created_at"`
}

// NewPostgres connects, applies migrations and starts listening for changes.
func NewPostgres(dataSourceName string, logger *zap.Logger) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	logger.Info("Connected to document store database")

	if err := migrateDB(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	p := &Postgres{
		db:     db,
		hub:    newHub(),
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}

	p.listener = pq.NewListener(dataSourceName, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Change feed listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := p.listener.Listen(changeChannel); err != nil {
		p.listener.Close()
		db.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", changeChannel, err)
	}
	go p.dispatch()

	return p, nil
}

func migrateDB(db *sqlx.DB, logger *zap.Logger) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("couldn't get database instance for migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "phishguard", driver)
	if err != nil {
		return fmt.Errorf("couldn't create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("couldn't run database migration: %w", err)
	}
	logger.Info("Document store migrations applied")
	return nil
}

func (p *Postgres) dispatch() {
	for {
		select {
		case <-p.done:
			return
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect: anything may have changed meanwhile.
			if n == nil {
				p.hub.publishAll()
				continue
			}
			p.hub.publish(n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := p.listener.Ping(); err != nil {
					p.logger.Warn("Change feed ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (p *Postgres) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := p.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: empty collection or id", ErrInvalidQuery)
	}
	payload, err := json.Marshal(encodeValues(data, p.now()))
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	query := `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
	          ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`
	if _, err := p.db.ExecContext(ctx, query, collection, id, payload); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var row documentRow
	query := `SELECT id, collection, data, created_at FROM documents WHERE collection = $1 AND id = $2`
	if err := p.db.GetContext(ctx, &row, query, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	return row.document()
}

func (p *Postgres) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.GetContext(ctx, &raw, `SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`, collection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock %s/%s: %w", collection, id, err)
	}

	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	now := p.now()
	for k, v := range fields {
		if inc, ok := v.(Increment); ok {
			current, _ := numberValue(data[k])
			data[k] = current + float64(inc)
			continue
		}
		data[k] = encodeValue(v, now)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET data = $3 WHERE collection = $1 AND id = $2`, collection, id, payload); err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return tx.Commit()
}

func (p *Postgres) List(ctx context.Context, q Query) ([]Document, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}

	dir, nulls := "ASC", "FIRST"
	if q.Direction == Descending {
		dir, nulls = "DESC", "LAST"
	}
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}

	// jsonb ordering compares numbers numerically and strings lexically;
	// timestamps are fixed-width strings so they sort chronologically.
	query := fmt.Sprintf(`SELECT id, collection, data, created_at FROM documents
	          WHERE collection = $1
	          ORDER BY CASE WHEN $2::text = '' THEN NULL ELSE data->($2::text) END %[1]s NULLS %[2]s, created_at %[1]s, id %[1]s
	          LIMIT $3`, dir, nulls)

	var rows []documentRow
	if err := p.db.SelectContext(ctx, &rows, query, q.Collection, q.OrderBy, limit); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", q.Collection, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (p *Postgres) DeleteBatch(ctx context.Context, collection string, ids []string) error {
	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	if len(unique) == 0 {
		return nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = ANY($2)`, collection, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(unique) {
		return fmt.Errorf("delete from %s: %d of %d documents missing: %w", collection, len(unique)-int(n), len(unique), ErrNotFound)
	}
	return tx.Commit()
}

func (p *Postgres) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (CancelFunc, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}
	onError := func(err error) {
		p.logger.Error("Subscription query failed", zap.String("collection", q.Collection), zap.Error(err))
	}
	return p.hub.start(ctx, newSubscription(q, fn, p.List, onError)), nil
}

func (p *Postgres) Close() error {
	p.hub.closeAll()
	close(p.done)
	if err := p.listener.Close(); err != nil {
		p.logger.Warn("Failed to close change feed listener", zap.Error(err))
	}
	return p.db.Close()
}

func (r documentRow) document() (Document, error) {
	data := map[string]any{}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return Document{}, fmt.Errorf("failed to decode %s/%s: %w", r.Collection, r.ID, err)
		}
	}
	return Document{ID: r.ID, Collection: r.Collection, Data: data, CreatedAt: r.CreatedAt}, nil
}

// encodeValues prepares data for JSON storage: server timestamps are resolved
// and all times become TimeLayout strings.
func encodeValues(data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = encodeValue(v, now)
	}
	return out
}

func encodeValue(v any, now time.Time) any {
	switch val := v.(type) {
	case serverTimestamp:
		return FormatTime(now)
	case time.Time:
		return FormatTime(val)
	case Increment:
		return float64(val)
	case map[string]any:
		return encodeValues(val, now)
	default:
		return v
	}
}
