// Package file 基于目录的对象存储
//
// 布局：<root>/<container>/<subpath>/<id>[.lz4|.zst]，名称经 URL 路径转义。
// 单对象写入使用临时文件 + rename；全量替换先写入暂存目录，再通过目录 rename 切换，
// 切换过程中崩溃时下次访问会从 .old 目录恢复。
package file

import (
	"context"
	stdErrors "errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/objectstore"
)

const (
	oldSuffix     = ".old"
	stagingSuffix = ".staging-"
	tmpPrefix     = ".tmp-"

	dirPerm  = 0o750
	filePerm = 0o640
)

// Store 目录对象存储
type Store struct {
	objectstore.Base

	dir         string
	compression objectstore.Compression
	log         logging.ILogger

	mu sync.RWMutex
}

// New 创建目录存储，目录在首次写入时创建
func New(root, container string, compression objectstore.Compression) (*Store, error) {
	if root == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "file store root is empty")
	}
	if container == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "file store container is empty")
	}
	clean := filepath.Clean(filepath.FromSlash(container))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "container %q escapes store root", container)
	}
	return &Store{
		dir:         filepath.Join(root, clean),
		compression: compression,
		log:         logging.ComponentLogger("objectstore.file"),
	}, nil
}

// Dir 存储目录
func (s *Store) Dir() string { return s.dir }

func (s *Store) SummaryName() string {
	if s.compression == objectstore.CompressionNone {
		return "file:" + s.dir
	}
	return "file:" + s.dir + " (" + s.compression.String() + ")"
}

func (s *Store) PrepareForSharedUse(persistMode ha.PersistMode, haMode ha.HighAvailabilityMode) error {
	return s.PrepareWith(s.SummaryName(), persistMode, haMode, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.recoverLocked(ctx); err != nil {
			return err
		}
		return s.wrap(ctx, os.RemoveAll(s.dir), "wipe")
	})
}

func (s *Store) List(ctx context.Context, subpath string) ([]string, error) {
	s.mu.Lock()
	err := s.recoverLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(filepath.Join(s.dir, encodeName(subpath)))
	if stdErrors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, s.wrap(ctx, err, "list "+subpath)
	}
	suffix := s.compression.Suffix()
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if suffix != "" {
			if !strings.HasSuffix(name, suffix) {
				continue
			}
			name = strings.TrimSuffix(name, suffix)
		}
		id, err := url.PathUnescape(name)
		if err != nil {
			s.log.Warn(ctx, "[FileStore] 忽略无法解析的文件名", logging.String("name", e.Name()))
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Get(ctx context.Context, subpath, id string) (string, error) {
	if err := objectstore.ValidateName(subpath, id); err != nil {
		return "", err
	}
	s.mu.Lock()
	err := s.recoverLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.objectPath(s.dir, subpath, id))
	if stdErrors.Is(err, fs.ErrNotExist) {
		return "", objectstore.NotFound(subpath, id)
	}
	if err != nil {
		return "", s.wrap(ctx, err, "read "+subpath+"/"+id)
	}
	data, err = s.compression.Decompress(data)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) Put(ctx context.Context, subpath, id, payload string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	if err := objectstore.ValidateName(subpath, id); err != nil {
		return err
	}
	data, err := s.compression.Compress([]byte(payload))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recoverLocked(ctx); err != nil {
		return err
	}
	return s.wrap(ctx, writeFileAtomic(s.objectPath(s.dir, subpath, id), data), "write "+subpath+"/"+id)
}

func (s *Store) Delete(ctx context.Context, subpath, id string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	if err := objectstore.ValidateName(subpath, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recoverLocked(ctx); err != nil {
		return err
	}
	err := os.Remove(s.objectPath(s.dir, subpath, id))
	if err == nil || stdErrors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return s.wrap(ctx, err, "delete "+subpath+"/"+id)
}

func (s *Store) ReplaceAll(ctx context.Context, contents objectstore.Contents) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recoverLocked(ctx); err != nil {
		return err
	}

	staging := s.dir + stagingSuffix + uuid.NewString()
	if err := s.writeTree(staging, contents); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	old := s.dir + oldSuffix
	hadPrevious := true
	if err := os.Rename(s.dir, old); err != nil {
		if !stdErrors.Is(err, fs.ErrNotExist) {
			_ = os.RemoveAll(staging)
			return s.wrap(ctx, err, "move previous content aside")
		}
		hadPrevious = false
	}
	if err := os.Rename(staging, s.dir); err != nil {
		if hadPrevious {
			_ = os.Rename(old, s.dir)
		}
		_ = os.RemoveAll(staging)
		return s.wrap(ctx, err, "swap in new content")
	}
	if hadPrevious {
		if err := os.RemoveAll(old); err != nil {
			s.log.Warn(ctx, "[FileStore] 删除旧内容失败", logging.String("dir", old), logging.Error(err))
		}
	}
	return nil
}

func (s *Store) DeleteCompletely(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.dir + oldSuffix); err != nil {
		return s.wrap(ctx, err, "delete old content")
	}
	return s.wrap(ctx, os.RemoveAll(s.dir), "delete store")
}

func (s *Store) Close() error { return nil }

func (s *Store) writeTree(root string, contents objectstore.Contents) error {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return s.wrap(context.Background(), err, "create staging directory")
	}
	for sub, objs := range contents {
		for id, payload := range objs {
			if err := objectstore.ValidateName(sub, id); err != nil {
				return err
			}
			data, err := s.compression.Compress([]byte(payload))
			if err != nil {
				return err
			}
			if err := writeFileAtomic(s.objectPath(root, sub, id), data); err != nil {
				return s.wrap(context.Background(), err, "stage "+sub+"/"+id)
			}
		}
	}
	return nil
}

// recoverLocked 上次切换在两次 rename 之间中断时恢复旧内容
func (s *Store) recoverLocked(ctx context.Context) error {
	old := s.dir + oldSuffix
	if _, err := os.Stat(old); err != nil {
		return nil
	}
	if _, err := os.Stat(s.dir); err == nil {
		// 切换已完成，只剩旧目录未删除
		return s.wrap(ctx, os.RemoveAll(old), "remove stale old content")
	}
	s.log.Warn(ctx, "[FileStore] 检测到中断的全量替换，恢复旧内容", logging.String("dir", s.dir))
	return s.wrap(ctx, os.Rename(old, s.dir), "restore old content")
}

func (s *Store) objectPath(root, subpath, id string) string {
	return filepath.Join(root, encodeName(subpath), encodeName(id)+s.compression.Suffix())
}

func (s *Store) wrap(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.WrapStorageError(ctx, errors.Normalize(err), s.SummaryName()+": "+op)
}

// encodeName 转义为单个安全的路径段；以 . 开头的名称保留给临时文件
func encodeName(name string) string {
	e := url.PathEscape(name)
	if strings.HasPrefix(e, ".") {
		e = "%2E" + e[1:]
	}
	return e
}

// writeFileAtomic 写入同目录临时文件、fsync 后 rename
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Provider 以本地目录作为持久化位置
type Provider struct {
	Root        string
	Compression objectstore.Compression
}

func (p Provider) NewObjectStore(container string) (objectstore.ObjectStore, error) {
	return New(p.Root, container, p.Compression)
}

var (
	_ objectstore.ObjectStore = (*Store)(nil)
	_ objectstore.Provider    = Provider{}
)
