package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry struct {
	key        string
	value      []byte
	expiration time.Time
}

// MemoryCache is a bounded LRU cache with per-entry expiry. Expired entries
// are dropped when they are read or when they reach the back of the list.
type MemoryCache struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	lock     sync.Mutex
	now      func() time.Time
}

func NewMemory(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	element, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}

	e := element.Value.(*entry)
	if !e.expiration.IsZero() && c.now().After(e.expiration) {
		c.removeElement(element)
		return nil, false, nil
	}

	c.ll.MoveToFront(element)
	return e.value, true, nil
}

// Set stores value under key. A zero ttl never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	var expiration time.Time
	if ttl > 0 {
		expiration = c.now().Add(ttl)
	}

	if element, ok := c.items[key]; ok {
		e := element.Value.(*entry)
		e.value = value
		e.expiration = expiration
		c.ll.MoveToFront(element)
		return nil
	}

	element := c.ll.PushFront(&entry{key: key, value: value, expiration: expiration})
	c.items[key] = element

	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
	}
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element)
	return nil
}

func (c *MemoryCache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

// removeElement assumes the lock is held.
func (c *MemoryCache) removeElement(element *list.Element) {
	c.ll.Remove(element)
	delete(c.items, element.Value.(*entry).key)
}
