package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"epicollect/api/internal/rbac"
	"epicollect/api/internal/storage"
	"epicollect/api/internal/uniqueness"
)

var ErrNotFound = errors.New("not found")

type tables struct {
	entries string
	docs    string
	key     string
	columns string
}

var (
	entryTables = tables{
		entries: "entries",
		docs:    "entries_json",
		key:     "entry",
		columns: `id, project_id, uuid, form_ref, parent_uuid, parent_form_ref, 0, '', '', user_id, device_id, platform, title, created_at, uploaded_at`,
	}
	branchTables = tables{
		entries: "branch_entries",
		docs:    "branch_entries_json",
		key:     "branch_entry",
		columns: `id, project_id, uuid, form_ref, '', '', owner_entry_id, owner_uuid, owner_input_ref, user_id, device_id, platform, title, created_at, uploaded_at`,
	}
)

func tablesFor(branch bool) tables {
	if branch {
		return branchTables
	}
	return entryTables
}

// queries holds the statements shared by the store and its transactions.
type queries struct {
	db dbtx
}

type PostgresStore struct {
	queries
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{queries: queries{db: db}, db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx is a transaction holding the advisory lock of one entry uuid.
type Tx struct {
	queries
}

// WithinEntryLock runs fn in a transaction that holds an advisory lock on
// (projectID, uuid). Concurrent uploads of the same uuid queue on the lock, so
// the lookup, merge and write inside fn never interleave. The transaction is
// rolled back on every exit that did not commit, panics included.
func (s *PostgresStore) WithinEntryLock(ctx context.Context, projectID int64, uuid string, fn func(*Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entry tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(projectID, uuid)); err != nil {
		return fmt.Errorf("lock entry %s: %w", uuid, err)
	}
	if err = fn(&Tx{queries: queries{db: tx}}); err != nil {
		return err
	}
	committed = true
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit entry tx: %w", err)
	}
	return nil
}

func lockKey(projectID int64, uuid string) string {
	return fmt.Sprintf("entry:%d:%s", projectID, uuid)
}

func (q queries) GetProjectBySlug(ctx context.Context, slug string) (Project, error) {
	var p Project
	err := q.db.QueryRowContext(ctx, `
		SELECT id, ref, slug, name, access, structure, updated_at
		FROM projects
		WHERE slug = $1
	`, slug).Scan(&p.ID, &p.Ref, &p.Slug, &p.Name, &p.Access, &p.Structure, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("project %s: %w", slug, ErrNotFound)
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project %s: %w", slug, err)
	}
	return p, nil
}

// UpsertProject creates the project or replaces its name, access and
// structure. It returns the stored row.
func (q queries) UpsertProject(ctx context.Context, p Project) (Project, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO projects (ref, slug, name, access, structure)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name, access = EXCLUDED.access, structure = EXCLUDED.structure, updated_at = NOW()
		RETURNING id, updated_at
	`, p.Ref, p.Slug, p.Name, p.Access, string(p.Structure)).Scan(&p.ID, &p.UpdatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("upsert project %s: %w", p.Slug, err)
	}
	return p, nil
}

// RoleFor returns the user's role in the project, RoleNone when unassigned.
func (q queries) RoleFor(ctx context.Context, projectID, userID int64) (rbac.Role, error) {
	var role string
	err := q.db.QueryRowContext(ctx, `SELECT role FROM project_roles WHERE project_id = $1 AND user_id = $2`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.RoleNone, nil
	}
	if err != nil {
		return rbac.RoleNone, fmt.Errorf("read role: %w", err)
	}
	return rbac.Normalize(role), nil
}

func (q queries) GrantRole(ctx context.Context, projectID, userID int64, role rbac.Role) error {
	if rbac.Normalize(string(role)) == rbac.RoleNone {
		return fmt.Errorf("grant role: unknown role %q", role)
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO project_roles (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, projectID, userID, string(role))
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// FindEntry reads an entry row without locking it.
func (q queries) FindEntry(ctx context.Context, projectID int64, uuid string, branch bool) (Entry, error) {
	return q.findEntry(ctx, projectID, uuid, branch, "")
}

// LockEntry reads an entry row with FOR UPDATE.
func (q queries) LockEntry(ctx context.Context, projectID int64, uuid string, branch bool) (Entry, error) {
	return q.findEntry(ctx, projectID, uuid, branch, " FOR UPDATE")
}

func (q queries) findEntry(ctx context.Context, projectID int64, uuid string, branch bool, suffix string) (Entry, error) {
	t := tablesFor(branch)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE project_id = $1 AND uuid = $2%s`, t.columns, t.entries, suffix)

	e := Entry{Branch: branch}
	err := q.db.QueryRowContext(ctx, query, projectID, uuid).Scan(
		&e.ID, &e.ProjectID, &e.UUID, &e.FormRef,
		&e.ParentUUID, &e.ParentFormRef,
		&e.OwnerEntryID, &e.OwnerUUID, &e.OwnerInputRef,
		&e.UserID, &e.DeviceID, &e.Platform, &e.Title,
		&e.CreatedAt, &e.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%s %s: %w", t.key, uuid, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("find %s %s: %w", t.key, uuid, err)
	}
	return e, nil
}

// InsertEntry stores a new row with empty document columns and sets e.ID.
func (q queries) InsertEntry(ctx context.Context, e *Entry) error {
	var err error
	if e.Branch {
		err = q.db.QueryRowContext(ctx, `
			INSERT INTO branch_entries (project_id, uuid, form_ref, owner_entry_id, owner_uuid, owner_input_ref,
				user_id, device_id, platform, title, created_at, uploaded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`, e.ProjectID, e.UUID, e.FormRef, e.OwnerEntryID, e.OwnerUUID, e.OwnerInputRef,
			e.UserID, e.DeviceID, e.Platform, e.Title, e.CreatedAt, e.UploadedAt).Scan(&e.ID)
	} else {
		err = q.db.QueryRowContext(ctx, `
			INSERT INTO entries (project_id, uuid, form_ref, parent_uuid, parent_form_ref,
				user_id, device_id, platform, title, created_at, uploaded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`, e.ProjectID, e.UUID, e.FormRef, e.ParentUUID, e.ParentFormRef,
			e.UserID, e.DeviceID, e.Platform, e.Title, e.CreatedAt, e.UploadedAt).Scan(&e.ID)
	}
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", tablesFor(e.Branch).key, e.UUID, err)
	}
	return nil
}

// UpdateEntry rewrites the mutable row columns. Placement columns are never
// touched.
func (q queries) UpdateEntry(ctx context.Context, e Entry) error {
	t := tablesFor(e.Branch)
	query := fmt.Sprintf(`
		UPDATE %s
		SET user_id = $2, device_id = $3, platform = $4, title = $5, uploaded_at = $6
		WHERE id = $1
	`, t.entries)
	res, err := q.db.ExecContext(ctx, query, e.ID, e.UserID, e.DeviceID, e.Platform, e.Title, e.UploadedAt)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", t.key, e.UUID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %s: %w", t.key, e.UUID, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s %s: %w", t.key, e.UUID, ErrNotFound)
	}
	return nil
}

func (q queries) ReadColumns(ctx context.Context, ref storage.Ref) (storage.Columns, error) {
	t := tablesFor(ref.Branch)
	query := fmt.Sprintf(`
		SELECT e.entry_data, e.geo_json_data, j.entry_data, j.geo_json_data
		FROM %s e
		LEFT JOIN %s j ON j.entry_id = e.id
		WHERE e.id = $1
	`, t.entries, t.docs)

	var cols storage.Columns
	err := q.db.QueryRowContext(ctx, query, ref.EntryID).Scan(&cols.InlineEntry, &cols.InlineGeo, &cols.SideEntry, &cols.SideGeo)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Columns{}, fmt.Errorf("%s row %d: %w", t.key, ref.EntryID, ErrNotFound)
	}
	if err != nil {
		return storage.Columns{}, fmt.Errorf("read %s documents: %w", t.key, err)
	}
	return cols, nil
}

func (q queries) WriteSide(ctx context.Context, ref storage.Ref, entryData, geoData []byte) error {
	t := tablesFor(ref.Branch)
	query := fmt.Sprintf(`
		INSERT INTO %s (entry_id, entry_data, geo_json_data)
		VALUES ($1, $2, $3)
		ON CONFLICT (entry_id) DO UPDATE SET entry_data = EXCLUDED.entry_data, geo_json_data = EXCLUDED.geo_json_data
	`, t.docs)
	if _, err := q.db.ExecContext(ctx, query, ref.EntryID, string(entryData), string(geoData)); err != nil {
		return fmt.Errorf("write %s: %w", t.docs, err)
	}
	return nil
}

func (q queries) ClearInline(ctx context.Context, ref storage.Ref) error {
	t := tablesFor(ref.Branch)
	query := fmt.Sprintf(`UPDATE %s SET entry_data = NULL, geo_json_data = NULL WHERE id = $1`, t.entries)
	if _, err := q.db.ExecContext(ctx, query, ref.EntryID); err != nil {
		return fmt.Errorf("clear inline %s document: %w", t.key, err)
	}
	return nil
}

// HasDuplicate looks for another entry of the same form (or branch input)
// whose stored answer for q.InputRef equals q.Value. The answer is read from
// whichever representation holds the document. Jumped answers never collide.
func (q queries) HasDuplicate(ctx context.Context, dq uniqueness.Query) (bool, error) {
	t := tablesFor(dq.Branch)
	scopeColumn := "parent_uuid"
	args := []any{dq.ProjectID, dq.FormRef, dq.ExcludeUUID, dq.ScopeUUID, dq.InputRef, dq.Value}
	extra := ""
	if dq.Branch {
		scopeColumn = "owner_uuid"
		extra = " AND e.owner_input_ref = $7"
		args = append(args, dq.OwnerInputRef)
	}
	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1
			FROM %s e
			LEFT JOIN %s j ON j.entry_id = e.id
			WHERE e.project_id = $1
				AND e.form_ref = $2
				AND e.uuid <> $3
				AND ($4 = '' OR e.%s = $4)
				AND COALESCE(j.entry_data, e.entry_data) -> '%[4]s' -> 'answers' -> $5 ->> 'answer' = $6
				AND NOT COALESCE((COALESCE(j.entry_data, e.entry_data) -> '%[4]s' -> 'answers' -> $5 ->> 'was_jumped')::boolean, false)%[5]s
		)
	`, t.entries, t.docs, scopeColumn, t.key, extra)

	var exists bool
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check duplicate %s: %w", dq.InputRef, err)
	}
	return exists, nil
}

// SearchTitles is the database fallback for entry search.
func (q queries) SearchTitles(ctx context.Context, projectID int64, text string, limit int) ([]TitleHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT uuid, form_ref, title, FALSE FROM entries WHERE project_id = $1 AND title ILIKE $2
		UNION ALL
		SELECT uuid, form_ref, title, TRUE FROM branch_entries WHERE project_id = $1 AND title ILIKE $2
		ORDER BY 3, 1
		LIMIT $3
	`, projectID, likePattern(text), limit)
	if err != nil {
		return nil, fmt.Errorf("search titles: %w", err)
	}
	defer rows.Close()

	var hits []TitleHit
	for rows.Next() {
		var h TitleHit
		if err := rows.Scan(&h.UUID, &h.FormRef, &h.Title, &h.Branch); err != nil {
			return nil, fmt.Errorf("scan title hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func likePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(text)) + "%"
}
