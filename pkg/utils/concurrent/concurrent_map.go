package concurrent

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// 默认分片数量
const DEFAULT_SHARD_COUNT = 32

type Option[K comparable, V any] func(*Map[K, V])

// WithShardCount 允许用户自定义分片数量
func WithShardCount[K comparable, V any](count uint32) Option[K, V] {
	return func(m *Map[K, V]) {
		m.shardCount = count
	}
}

// Map is a sharded map safe for concurrent use. It is used for the
// connection cache and for the inventory sections of refhosts.yml.
type Map[K comparable, V any] struct {
	shards     []*shard[K, V]
	hashFunc   func(K) uint32
	shardCount uint32
}

type shard[K comparable, V any] struct {
	items map[K]V
	sync.RWMutex
}

// NewMap 创建一个新的并发 Map
func NewMap[K comparable, V any](hashFunc func(K) uint32, opts ...Option[K, V]) *Map[K, V] {
	m := &Map[K, V]{
		shardCount: DEFAULT_SHARD_COUNT,
		hashFunc:   hashFunc,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.init()
	return m
}

// init allocates the shards. A Map decoded straight from YAML has no hash
// function yet, so it falls back to hashing the printed key.
func (m *Map[K, V]) init() {
	if m.shardCount == 0 {
		m.shardCount = DEFAULT_SHARD_COUNT
	}
	if m.hashFunc == nil {
		m.hashFunc = func(k K) uint32 { return HashString(fmt.Sprint(k)) }
	}
	m.shards = make([]*shard[K, V], m.shardCount)
	for i := range m.shardCount {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
}

func (m *Map[K, V]) getShard(key K) *shard[K, V] {
	return m.shards[m.hashFunc(key)%m.shardCount]
}

func (m *Map[K, V]) Set(key K, value V) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	s.items[key] = value
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.getShard(key)
	s.RLock()
	defer s.RUnlock()
	val, ok := s.items[key]
	return val, ok
}

func (m *Map[K, V]) Remove(key K) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	delete(s.items, key)
}

// Pop 删除一个 Key，并返回它被删除之前的值
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	val, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return val, ok
}

func (m *Map[K, V]) Count() int {
	count := 0
	for _, s := range m.shards {
		s.RLock()
		count += len(s.items)
		s.RUnlock()
	}
	return count
}

func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0)
	for _, s := range m.shards {
		s.RLock()
		for k := range s.items {
			keys = append(keys, k)
		}
		s.RUnlock()
	}
	return keys
}

// IterCb 遍历所有元素; fn 返回 false 时停止遍历
func (m *Map[K, V]) IterCb(fn func(key K, v V) bool) {
	for _, s := range m.shards {
		s.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.RUnlock()
				return
			}
		}
		s.RUnlock()
	}
}

// Clear 清空 Map 中的所有数据
func (m *Map[K, V]) Clear() {
	for _, s := range m.shards {
		s.Lock()
		s.items = make(map[K]V)
		s.Unlock()
	}
}

// Snapshot copies the current content into a plain map.
func (m *Map[K, V]) Snapshot() map[K]V {
	tmp := make(map[K]V)
	for _, s := range m.shards {
		s.RLock()
		maps.Copy(tmp, s.items)
		s.RUnlock()
	}
	return tmp
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m *Map[K, V]) []K {
	keys := m.Keys()
	slices.Sort(keys)
	return keys
}

func (m *Map[K, V]) MarshalYAML() (interface{}, error) {
	return m.Snapshot(), nil
}

func (m *Map[K, V]) UnmarshalYAML(value *yaml.Node) error {
	tmp := make(map[K]V)
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	if m.shards == nil {
		m.init()
	}
	for k, v := range tmp {
		m.Set(k, v)
	}
	return nil
}
