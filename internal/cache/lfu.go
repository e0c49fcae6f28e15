package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type lfuNode struct {
	key       string
	value     []byte
	frequency int
	expiresAt time.Time // 零值表示不过期
}

// LFUCache 内存 LFU 缓存；频率相同时淘汰最早进入该频率的条目
type LFUCache struct {
	capacity   int
	minFreq    int
	keyToNode  map[string]*lfuNode
	freqToList map[int]*list.List
	nodeToElem map[*lfuNode]*list.Element
	now        func() time.Time
	mu         sync.Mutex
}

// NewLFUCache 创建 LFU 缓存，capacity 小于 1 时按 1 处理
func NewLFUCache(capacity int) *LFUCache {
	if capacity < 1 {
		capacity = 1
	}
	return &LFUCache{
		capacity:   capacity,
		keyToNode:  make(map[string]*lfuNode),
		freqToList: make(map[int]*list.List),
		nodeToElem: make(map[*lfuNode]*list.Element),
		now:        time.Now,
	}
}

func (lfu *LFUCache) Backend() string { return "memory" }

// Get 获取缓存，命中时增加频率；过期条目视为未命中并删除
func (lfu *LFUCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	lfu.mu.Lock()
	defer lfu.mu.Unlock()

	node, ok := lfu.keyToNode[key]
	if !ok {
		return nil, false, nil
	}
	if !node.expiresAt.IsZero() && !lfu.now().Before(node.expiresAt) {
		lfu.remove(node)
		return nil, false, nil
	}
	lfu.increaseFrequency(node)
	return node.value, true, nil
}

// Set 写入缓存，已存在时覆盖值并增加频率
func (lfu *LFUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	lfu.mu.Lock()
	defer lfu.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = lfu.now().Add(ttl)
	}

	if node, ok := lfu.keyToNode[key]; ok {
		node.value = value
		node.expiresAt = expiresAt
		lfu.increaseFrequency(node)
		return nil
	}

	if len(lfu.keyToNode) >= lfu.capacity {
		lfu.evict()
	}

	node := &lfuNode{key: key, value: value, frequency: 1, expiresAt: expiresAt}
	lfu.keyToNode[key] = node
	lfu.addToFreqList(node)
	lfu.minFreq = 1
	return nil
}

// Len 当前条目数
func (lfu *LFUCache) Len() int {
	lfu.mu.Lock()
	defer lfu.mu.Unlock()
	return len(lfu.keyToNode)
}

func (lfu *LFUCache) increaseFrequency(node *lfuNode) {
	old := node.frequency
	lfu.removeFromFreqList(node)
	node.frequency++
	lfu.addToFreqList(node)

	if old == lfu.minFreq {
		if l := lfu.freqToList[old]; l == nil || l.Len() == 0 {
			lfu.minFreq = node.frequency
		}
	}
}

func (lfu *LFUCache) addToFreqList(node *lfuNode) {
	l := lfu.freqToList[node.frequency]
	if l == nil {
		l = list.New()
		lfu.freqToList[node.frequency] = l
	}
	lfu.nodeToElem[node] = l.PushBack(node)
}

func (lfu *LFUCache) removeFromFreqList(node *lfuNode) {
	l := lfu.freqToList[node.frequency]
	elem := lfu.nodeToElem[node]
	if l == nil || elem == nil {
		return
	}
	l.Remove(elem)
	delete(lfu.nodeToElem, node)
	if l.Len() == 0 {
		delete(lfu.freqToList, node.frequency)
	}
}

func (lfu *LFUCache) remove(node *lfuNode) {
	lfu.removeFromFreqList(node)
	delete(lfu.keyToNode, node.key)
	if len(lfu.keyToNode) == 0 {
		lfu.minFreq = 0
	}
}

// evict 淘汰最不常用的条目
func (lfu *LFUCache) evict() {
	l := lfu.freqToList[lfu.minFreq]
	if l == nil || l.Len() == 0 {
		// minFreq 可能因过期删除而失效，退回全量查找
		lfu.minFreq = 0
		for freq, fl := range lfu.freqToList {
			if fl.Len() > 0 && (lfu.minFreq == 0 || freq < lfu.minFreq) {
				lfu.minFreq = freq
			}
		}
		if l = lfu.freqToList[lfu.minFreq]; l == nil {
			return
		}
	}
	lfu.remove(l.Front().Value.(*lfuNode))
}
