// Package conditioncache caches compiled expr-lang programs so that an
// attribute's CalculateExpr is parsed once per distinct expression text,
// not once per evaluation.
package conditioncache

import (
	"container/list"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Cache is a thread-safe LRU cache for compiled expression programs.
type Cache struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

// New creates a condition cache with the given capacity. A non-positive
// capacity falls back to a default of 100.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 100
	}

	return &Cache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Get retrieves a compiled program from the cache.
func (c *Cache) Get(expression string) (*vm.Program, bool) {
	// A hit reorders the LRU list, so Get takes the write lock.
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, found := c.cache[expression]; found {
		c.lruList.MoveToFront(element)
		entry := element.Value.(*cacheEntry)
		return entry.program, true
	}

	return nil, false
}

// Put stores a compiled program in the cache, evicting the least recently
// used entry if the cache is over capacity.
func (c *Cache) Put(expression string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, found := c.cache[expression]; found {
		c.lruList.MoveToFront(element)
		element.Value.(*cacheEntry).program = program
		return
	}

	entry := &cacheEntry{key: expression, program: program}
	element := c.lruList.PushFront(entry)
	c.cache[expression] = element

	if c.lruList.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	oldest := c.lruList.Back()
	if oldest != nil {
		c.lruList.Remove(oldest)
		entry := oldest.Value.(*cacheEntry)
		delete(c.cache, entry.key)
	}
}

// Len returns the current number of cached programs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lruList.Len()
}

// Clear removes every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.lruList = list.New()
}

// CompileAndCache compiles expression against env if it is not already
// cached, and returns the compiled program either way. Expressions here
// must evaluate to a number (an attribute's derived value), unlike the
// boolean edge conditions this cache design was grounded on.
func (c *Cache) CompileAndCache(expression string, env any) (*vm.Program, error) {
	if program, found := c.Get(expression); found {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return nil, err
	}

	c.Put(expression, program)

	return program, nil
}
