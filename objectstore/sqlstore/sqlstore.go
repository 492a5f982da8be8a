// Package sqlstore 基于 SQL 表的对象存储（默认 sqlite）
//
// 所有容器共用一张表，主键为 (container, subpath, id)。全量替换在单个事务内完成。
package sqlstore

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"

	_ "modernc.org/sqlite"

	core "rebind/data/db"
	"rebind/data/db/basic"
	"rebind/data/db/dialect"
	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/objectstore"
)

// DefaultTable 默认表名
const DefaultTable = "rebind_objects"

var columns = []string{"container", "subpath", "id", "payload"}

// Store SQL 对象存储
type Store struct {
	objectstore.Base

	db        core.IDatabase
	dialect   dialect.Dialect
	table     string
	container string
	ownsDB    bool
	log       logging.ILogger
}

// New 在已有数据库上创建存储并确保表存在
func New(ctx context.Context, database core.IDatabase, table, container string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !dialect.ValidIdentifier(table) {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "invalid table name %q", table)
	}
	if container == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "sql store container is empty")
	}
	s := &Store{
		db:        database,
		dialect:   dialect.FromDatabase(database),
		table:     table,
		container: container,
		log:       logging.ComponentLogger("objectstore.sql"),
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Open 打开 sqlite 数据库并创建存储，Close 时一并关闭数据库
func Open(ctx context.Context, dsn, table, container string) (*Store, error) {
	database, err := basic.New(core.DBConfig{Driver: "sqlite", Database: dsn, MaxOpenConns: 1})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "open sqlite "+dsn)
	}
	s, err := New(ctx, database, table, container)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	q := s.dialect.QuoteIdentifier
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	PRIMARY KEY (%s, %s, %s)
)`, q(s.table), q("container"), q("subpath"), q("id"), q("payload"), q("container"), q("subpath"), q("id"))
	_, err := s.db.Exec(ctx, ddl)
	return s.wrap(err, "create table")
}

func (s *Store) SummaryName() string {
	return fmt.Sprintf("sql:%s/%s", s.table, s.container)
}

func (s *Store) PrepareForSharedUse(persistMode ha.PersistMode, haMode ha.HighAvailabilityMode) error {
	return s.PrepareWith(s.SummaryName(), persistMode, haMode, func(ctx context.Context) error {
		return s.deleteContainer(ctx, s.db)
	})
}

func (s *Store) List(ctx context.Context, subpath string) ([]string, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ? ORDER BY %s",
		s.q("id"), s.q(s.table), s.q("container"), s.q("subpath"), s.q("id")), s.container, subpath)
	if err != nil {
		return nil, s.wrap(err, "list "+subpath)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.wrap(err, "scan "+subpath)
		}
		ids = append(ids, id)
	}
	return ids, s.wrap(rows.Err(), "list "+subpath)
}

func (s *Store) Get(ctx context.Context, subpath, id string) (string, error) {
	var payload string
	err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ? AND %s = ?",
		s.q("payload"), s.q(s.table), s.q("container"), s.q("subpath"), s.q("id")),
		s.container, subpath, id).Scan(&payload)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return "", objectstore.NotFound(subpath, id)
	}
	if err != nil {
		return "", s.wrap(err, "get "+subpath+"/"+id)
	}
	return payload, nil
}

func (s *Store) Put(ctx context.Context, subpath, id, payload string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	if err := objectstore.ValidateName(subpath, id); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, s.upsertSQL(), s.container, subpath, id, payload)
	return s.wrap(err, "put "+subpath+"/"+id)
}

func (s *Store) Delete(ctx context.Context, subpath, id string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ? AND %s = ?",
		s.q(s.table), s.q("container"), s.q("subpath"), s.q("id")), s.container, subpath, id)
	return s.wrap(err, "delete "+subpath+"/"+id)
}

func (s *Store) ReplaceAll(ctx context.Context, contents objectstore.Contents) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	for sub, objs := range contents {
		for id := range objs {
			if err := objectstore.ValidateName(sub, id); err != nil {
				return err
			}
		}
	}

	count := 0
	err := core.WithTx(ctx, s.db, func(tx core.ITransaction) error {
		if err := s.deleteContainer(ctx, tx); err != nil {
			return err
		}
		upsert := s.upsertSQL()
		for sub, objs := range contents {
			for id, payload := range objs {
				if _, err := tx.Exec(ctx, upsert, s.container, sub, id, payload); err != nil {
					return err
				}
				count++
			}
		}
		return nil
	})
	if err != nil {
		return s.wrap(err, "replace all")
	}
	s.log.Debug(ctx, "[SQLStore] 全量替换完成", logging.String("store", s.SummaryName()), logging.Int("objects", count))
	return nil
}

func (s *Store) DeleteCompletely(ctx context.Context) error {
	return s.wrap(s.deleteContainer(ctx, s.db), "delete container")
}

func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *Store) deleteContainer(ctx context.Context, database core.IDatabase) error {
	_, err := database.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", s.q(s.table), s.q("container")), s.container)
	return err
}

func (s *Store) upsertSQL() string {
	return s.dialect.Upsert(s.table, columns, columns[:3])
}

func (s *Store) q(name string) string { return s.dialect.QuoteIdentifier(name) }

func (s *Store) wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.WrapError(err, errors.ErrCodeDatabase, s.SummaryName()+": "+op)
}

// Provider 以一个共享数据库作为持久化位置，容器对应表中的 container 列
type Provider struct {
	DB    core.IDatabase
	Table string
}

func (p Provider) NewObjectStore(container string) (objectstore.ObjectStore, error) {
	return New(context.Background(), p.DB, p.Table, container)
}

var (
	_ objectstore.ObjectStore = (*Store)(nil)
	_ objectstore.Provider    = Provider{}
)
