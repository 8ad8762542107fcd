package file

import (
	"container/list"

	"github.com/benoitkugler/pdfcore/model"
)

// objectCache keeps resolved objects, keyed by (number, generation),
// with a least-recently-used eviction policy. Eviction never affects
// correctness, only latency: an evicted object is parsed again from
// the file on the next request.
type objectCache struct {
	entries map[model.ObjIndirectRef]*list.Element
	order   *list.List // front is the most recently used
	maxSize int        // 0 means unbounded, negative disables caching
}

type cacheItem struct {
	key model.ObjIndirectRef
	obj model.Object
}

func newObjectCache(maxSize int) *objectCache {
	if maxSize == 0 {
		maxSize = defaultObjectCacheSize
	}
	return &objectCache{
		entries: make(map[model.ObjIndirectRef]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

func (c *objectCache) get(key model.ObjIndirectRef) (model.Object, bool) {
	el, has := c.entries[key]
	if !has {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(cacheItem).obj, true
}

func (c *objectCache) put(key model.ObjIndirectRef, obj model.Object) {
	if c.maxSize < 0 {
		return
	}
	if el, has := c.entries[key]; has {
		el.Value = cacheItem{key: key, obj: obj}
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(cacheItem{key: key, obj: obj})
	for c.maxSize > 0 && c.order.Len() > c.maxSize {
		last := c.order.Back()
		delete(c.entries, last.Value.(cacheItem).key)
		c.order.Remove(last)
	}
}
