// Package memory 进程内对象存储
package memory

import (
	"context"
	"sort"
	"sync"

	"rebind/ha"
	"rebind/objectstore"
)

// Store 进程内对象存储，ReplaceAll 通过整体替换内部映射实现原子切换
type Store struct {
	objectstore.Base

	name   string
	mu     sync.RWMutex
	data   objectstore.Contents
	closed bool
}

// New 创建内存存储
func New(name string) *Store {
	return &Store{name: name, data: make(objectstore.Contents)}
}

func (s *Store) SummaryName() string { return "memory:" + s.name }

func (s *Store) PrepareForSharedUse(persistMode ha.PersistMode, haMode ha.HighAvailabilityMode) error {
	return s.PrepareWith(s.SummaryName(), persistMode, haMode, func(ctx context.Context) error {
		s.mu.Lock()
		s.data = make(objectstore.Contents)
		s.mu.Unlock()
		return nil
	})
}

func (s *Store) List(ctx context.Context, subpath string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, objectstore.ErrClosed
	}
	ids := make([]string, 0, len(s.data[subpath]))
	for id := range s.data[subpath] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Get(ctx context.Context, subpath, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", objectstore.ErrClosed
	}
	p, ok := s.data[subpath][id]
	if !ok {
		return "", objectstore.NotFound(subpath, id)
	}
	return p, nil
}

func (s *Store) Put(ctx context.Context, subpath, id, payload string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	if err := objectstore.ValidateName(subpath, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return objectstore.ErrClosed
	}
	objs, ok := s.data[subpath]
	if !ok {
		objs = make(map[string]string)
		s.data[subpath] = objs
	}
	objs[id] = payload
	return nil
}

func (s *Store) Delete(ctx context.Context, subpath, id string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return objectstore.ErrClosed
	}
	delete(s.data[subpath], id)
	return nil
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
	next := contents.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return objectstore.ErrClosed
	}
	s.data = next
	return nil
}

func (s *Store) DeleteCompletely(ctx context.Context) error {
	s.mu.Lock()
	s.data = make(objectstore.Contents)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ objectstore.ObjectStore = (*Store)(nil)
