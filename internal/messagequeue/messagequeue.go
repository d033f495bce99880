// Package messagequeue implements the Message Queue (§4.14): a bounded
// priority queue with admission checks (schema, dedup, semantic
// combination, category cooldown, capacity) and rate-limited dispatch.
// Combination templates are table-driven per §9's explicit flag,
// grounded in shape on the teacher's prompts.go PromptTemplate table.
package messagequeue

import (
	"container/heap"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/psybedev/coachtrace/internal/ratelimit"
	"github.com/samber/lo"
)

const (
	DefaultCapacity           = 64
	DefaultCategoryCooldown   = 8 * time.Second
	DefaultCombinationWindow  = 3 * time.Second
	DefaultDedupFrontendS     = 12 * time.Second
	DefaultDedupBackendS      = 8 * time.Second
	DefaultHistorySize        = 100
	CriticalPriorityThreshold = 8
)

// combinationTemplate is a table-driven, category-keyed template for
// combining several queued messages of the same category into one.
type combinationTemplate struct {
	Keywords []string
	Combine  func(texts []string) string
}

var combinationTemplates = map[model.Category]combinationTemplate{
	model.CategoryThrottle: {
		Keywords: []string{"throttle", "rotate", "patience", "balance", "exit"},
		Combine: func(texts []string) string {
			return "Work on throttle timing: " + strings.Join(texts, " ")
		},
	},
	model.CategoryBraking: {
		Keywords: []string{"brake", "braking", "trail"},
		Combine: func(texts []string) string {
			return "Braking feedback: " + strings.Join(texts, " ")
		},
	},
	model.CategoryRacingLine: {
		Keywords: []string{"apex", "line", "rotate"},
		Combine: func(texts []string) string {
			return "Racing line feedback: " + strings.Join(texts, " ")
		},
	},
	model.CategoryConsistency: {
		Keywords: []string{"consistent", "variance", "lap to lap"},
		Combine: func(texts []string) string {
			return "Consistency feedback: " + strings.Join(texts, " ")
		},
	},
}

type queued struct {
	msg        model.CoachingMessage
	enqueuedAt time.Time
	index      int
}

// priorityHeap orders by (priority desc, timestamp asc) per §4.14.
type priorityHeap []*queued

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority > h[j].msg.Priority
	}
	return h[i].msg.Timestamp.Before(h[j].msg.Timestamp)
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *priorityHeap) Push(x interface{}) {
	q := x.(*queued)
	q.index = len(*h)
	*h = append(*h, q)
}
func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the admission + dispatch engine. Per §5, exactly one consumer
// task is expected to call Dispatch in a loop.
type Queue struct {
	mu sync.Mutex

	heap priorityHeap

	capacity          int
	categoryCooldown  map[model.Category]time.Duration
	defaultCooldown   time.Duration
	combinationWindow time.Duration
	dedupFrontend     time.Duration
	dedupBackend      time.Duration

	lastCategoryDispatch map[model.Category]time.Time
	lastTextDispatch     map[string]time.Time
	recentByCategory     map[model.Category][]*queued // within combination window, not yet dispatched

	history    []model.CoachingMessage
	historyCap int

	limiter *ratelimit.Limiter
	now     func() time.Time
	newID   func() string
}

func New(capacity int, limiter *ratelimit.Limiter) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if limiter == nil {
		limiter = ratelimit.New(1, 3, 2*time.Second)
	}
	return &Queue{
		capacity:             capacity,
		categoryCooldown:     make(map[model.Category]time.Duration),
		defaultCooldown:      DefaultCategoryCooldown,
		combinationWindow:    DefaultCombinationWindow,
		dedupFrontend:        DefaultDedupFrontendS,
		dedupBackend:         DefaultDedupBackendS,
		lastCategoryDispatch: make(map[model.Category]time.Time),
		lastTextDispatch:     make(map[string]time.Time),
		recentByCategory:     make(map[model.Category][]*queued),
		historyCap:           DefaultHistorySize,
		limiter:              limiter,
		now:                  time.Now,
		newID:                func() string { return uuid.NewString() },
	}
}

// SetCategoryCooldown overrides the cooldown for one category.
func (q *Queue) SetCategoryCooldown(cat model.Category, d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.categoryCooldown[cat] = d
}

var knownCategories = map[model.Category]bool{
	model.CategoryBraking: true, model.CategoryThrottle: true, model.CategoryCornering: true,
	model.CategoryRacingLine: true, model.CategoryConsistency: true, model.CategoryTires: true,
	model.CategoryFuel: true, model.CategoryStrategy: true, model.CategorySafety: true,
	model.CategoryBaseline: true, model.CategoryTechnique: true, model.CategoryGeneral: true,
}

// Enqueue runs the full §4.14 admission pipeline. Returns false if the
// message was suppressed (dedup, cooldown) or rejected (schema).
func (q *Queue) Enqueue(insight model.CoachingInsight) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	// 1. schema check
	if insight.Text == "" || !knownCategories[insight.Category] {
		return false
	}

	now := q.now()
	critical := insight.Priority >= CriticalPriorityThreshold

	// 2. duplicate suppression
	if !critical {
		if last, ok := q.lastTextDispatch[insight.Text]; ok {
			window := q.dedupBackend
			if now.Sub(last) < window {
				return false
			}
		}
	}

	msg := model.CoachingMessage{
		ID:         q.newID(),
		Text:       insight.Text,
		Category:   insight.Category,
		Priority:   insight.Priority,
		Confidence: insight.Confidence,
		Timestamp:  now,
	}
	item := &queued{msg: msg, enqueuedAt: now}

	// 3. semantic combination
	if combined := q.tryCombine(insight.Category, item); combined {
		return true
	}

	// 4. category cooldown
	if !critical {
		cooldown := q.defaultCooldown
		if d, ok := q.categoryCooldown[insight.Category]; ok {
			cooldown = d
		}
		if last, ok := q.lastCategoryDispatch[insight.Category]; ok && now.Sub(last) < cooldown {
			return false
		}
	}

	q.admit(item)
	return true
}

// tryCombine folds item together with the recent messages of the same
// category within the combination window, when item and each such message
// each mention >=2 of the category's keywords (see keywordCount).
func (q *Queue) tryCombine(cat model.Category, item *queued) bool {
	tmpl, ok := combinationTemplates[cat]
	if !ok {
		return false
	}
	recent := q.recentByCategory[cat]
	now := item.enqueuedAt

	var kept []*queued
	for _, r := range recent {
		if now.Sub(r.enqueuedAt) <= q.combinationWindow {
			kept = append(kept, r)
		}
	}
	q.recentByCategory[cat] = kept

	if keywordCount(item.msg.Text, tmpl.Keywords) < 2 {
		q.recentByCategory[cat] = append(q.recentByCategory[cat], item)
		return false
	}

	matchCount := 0
	for _, r := range kept {
		if keywordCount(r.msg.Text, tmpl.Keywords) >= 2 {
			matchCount++
		}
	}
	if matchCount == 0 {
		q.recentByCategory[cat] = append(q.recentByCategory[cat], item)
		return false
	}

	texts := []string{}
	maxPriority := item.msg.Priority
	sumConfidence := item.msg.Confidence
	count := 1
	var survivors []*queued
	for _, r := range kept {
		if keywordCount(r.msg.Text, tmpl.Keywords) >= 2 {
			texts = append(texts, r.msg.Text)
			if r.msg.Priority > maxPriority {
				maxPriority = r.msg.Priority
			}
			sumConfidence += r.msg.Confidence
			count++
			q.removeFromHeap(r)
		} else {
			survivors = append(survivors, r)
		}
	}
	texts = append(texts, item.msg.Text)

	combined := &queued{
		msg: model.CoachingMessage{
			ID:         q.newID(),
			Text:       tmpl.Combine(texts),
			Category:   cat,
			Priority:   maxPriority,
			Confidence: sumConfidence / float64(count),
			Timestamp:  item.enqueuedAt,
		},
		enqueuedAt: item.enqueuedAt,
	}
	q.recentByCategory[cat] = append(survivors, combined)
	q.admit(combined)
	return true
}

// keywordCount reports how many of the category's keywords appear in
// text. A pair of messages is combinable when each, independently,
// mentions at least 2 of the category's keywords — not when the two
// texts happen to share 2 identical words.
func keywordCount(text string, keywords []string) int {
	lt := strings.ToLower(text)
	return len(lo.Filter(keywords, func(k string, _ int) bool {
		return strings.Contains(lt, k)
	}))
}

func (q *Queue) removeFromHeap(item *queued) {
	for i, h := range q.heap {
		if h == item {
			heap.Remove(&q.heap, i)
			return
		}
	}
}

// admit pushes item onto the priority heap, enforcing capacity by
// dropping the lowest-priority oldest message when full.
func (q *Queue) admit(item *queued) {
	if len(q.heap) >= q.capacity {
		worst := q.worstIndex()
		if worst >= 0 {
			heap.Remove(&q.heap, worst)
		}
	}
	heap.Push(&q.heap, item)
}

func (q *Queue) worstIndex() int {
	if len(q.heap) == 0 {
		return -1
	}
	worst := 0
	for i, h := range q.heap {
		cur := q.heap[worst]
		if h.msg.Priority < cur.msg.Priority ||
			(h.msg.Priority == cur.msg.Priority && h.msg.Timestamp.Before(cur.msg.Timestamp)) {
			worst = i
		}
	}
	return worst
}

// Dispatch pops and returns the next message to deliver, bounded by the
// configured token-bucket dispatch rate. Returns (msg, false) if the
// bucket is empty or the queue has nothing pending.
func (q *Queue) Dispatch() (model.CoachingMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return model.CoachingMessage{}, false
	}
	if !q.limiter.Allow() {
		return model.CoachingMessage{}, false
	}

	item := heap.Pop(&q.heap).(*queued)
	now := q.now()
	q.lastCategoryDispatch[item.msg.Category] = now
	q.lastTextDispatch[item.msg.Text] = now

	q.history = append(q.history, item.msg)
	if len(q.history) > q.historyCap {
		q.history = q.history[len(q.history)-q.historyCap:]
	}

	return item.msg, true
}

// History returns up to count of the most recent dispatched messages.
func (q *Queue) History(count int) []model.CoachingMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if count <= 0 || count > len(q.history) {
		count = len(q.history)
	}
	out := make([]model.CoachingMessage, count)
	copy(out, q.history[len(q.history)-count:])
	return out
}

// Drain clears all pending (not yet dispatched) messages, used on
// session change per §5's ordering guarantee.
func (q *Queue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heap = nil
	q.recentByCategory = make(map[model.Category][]*queued)
}

// Len reports the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
