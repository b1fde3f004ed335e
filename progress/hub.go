package progress

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Wildcard subscribes to events of every task.
const Wildcard = "*"

// HubConfig 配置进度广播中心
type HubConfig struct {
	InboxSize        int `json:"inbox_size" yaml:"inbox_size"`
	SubscriberBuffer int `json:"subscriber_buffer" yaml:"subscriber_buffer"`
}

// DefaultHubConfig 返回默认配置
func DefaultHubConfig() HubConfig {
	return HubConfig{InboxSize: 256, SubscriberBuffer: 32}
}

// Subscription receives events for one task id or Wildcard.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	taskID string
	hub    *Hub
	once   sync.Once
}

// Close detaches the subscription. C is closed by the hub afterwards.
func (s *Subscription) Close() {
	s.once.Do(func() {
		select {
		case s.hub.unsubscribe <- s:
		case <-s.hub.done:
		}
	})
}

// Hub 单 goroutine 广播中心：Emit 永不阻塞，慢订阅者丢弃进度事件。
// 终态事件不会被丢弃：入口满时进入溢出队列，投递时挤掉订阅者缓冲中最旧的事件。
type Hub struct {
	inbox       chan Event
	overflowMu  sync.Mutex
	overflow    []Event
	wake        chan struct{}
	subscribe   chan *Subscription
	unsubscribe chan *Subscription
	done        chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once

	bufSize int
	dropped atomic.Uint64
	logger  *zap.Logger
}

// NewHub creates a hub and starts its dispatch goroutine.
func NewHub(cfg HubConfig, logger *zap.Logger) *Hub {
	def := DefaultHubConfig()
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = def.InboxSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		inbox:       make(chan Event, cfg.InboxSize),
		wake:        make(chan struct{}, 1),
		subscribe:   make(chan *Subscription),
		unsubscribe: make(chan *Subscription),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		bufSize:     cfg.SubscriberBuffer,
		logger:      logger.With(zap.String("component", "progress_hub")),
	}
	go h.run()
	return h
}

// Emit queues an event for broadcast without blocking. When the inbox is
// full progress events are dropped and terminal events overflow into a
// side queue that the hub drains after the inbox, so order is kept.
func (h *Hub) Emit(e Event) {
	select {
	case <-h.done:
		return
	default:
	}

	h.overflowMu.Lock()
	defer h.overflowMu.Unlock()
	if len(h.overflow) == 0 {
		select {
		case h.inbox <- e:
			return
		default:
		}
	}
	if e.Type == EventProgress {
		h.dropped.Add(1)
		return
	}
	h.overflow = append(h.overflow, e)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers interest in taskID (or Wildcard).
// On a closed hub the returned subscription's channel is already closed.
func (h *Hub) Subscribe(taskID string) *Subscription {
	ch := make(chan Event, h.bufSize)
	sub := &Subscription{C: ch, ch: ch, taskID: taskID, hub: h}
	select {
	case h.subscribe <- sub:
	case <-h.done:
		close(ch)
	}
	return sub
}

// Dropped returns how many events were discarded.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close stops the hub and closes every subscription channel.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
	<-h.stopped
}

func (h *Hub) run() {
	defer close(h.stopped)
	subs := make(map[string]map[*Subscription]struct{})

	for {
		select {
		case s := <-h.subscribe:
			if subs[s.taskID] == nil {
				subs[s.taskID] = make(map[*Subscription]struct{})
			}
			subs[s.taskID][s] = struct{}{}

		case s := <-h.unsubscribe:
			if set, ok := subs[s.taskID]; ok {
				if _, ok := set[s]; ok {
					delete(set, s)
					close(s.ch)
				}
				if len(set) == 0 {
					delete(subs, s.taskID)
				}
			}

		case e := <-h.inbox:
			h.broadcast(subs, e)

		case <-h.wake:
			// everything in the inbox was emitted before the overflow began
			for drained := false; !drained; {
				select {
				case e := <-h.inbox:
					h.broadcast(subs, e)
				default:
					drained = true
				}
			}
			h.overflowMu.Lock()
			pending := h.overflow
			h.overflow = nil
			h.overflowMu.Unlock()
			for _, e := range pending {
				h.broadcast(subs, e)
			}

		case <-h.done:
			for _, set := range subs {
				for s := range set {
					close(s.ch)
				}
			}
			return
		}
	}
}

func (h *Hub) broadcast(subs map[string]map[*Subscription]struct{}, e Event) {
	h.deliver(subs[e.TaskID], e)
	if e.TaskID != Wildcard {
		h.deliver(subs[Wildcard], e)
	}
}

func (h *Hub) deliver(set map[*Subscription]struct{}, e Event) {
	for s := range set {
		select {
		case s.ch <- e:
			continue
		default:
		}
		if e.Type != EventProgress {
			// the hub is the only sender, so evicting one event frees a slot
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- e:
			default:
			}
		}
		h.dropped.Add(1)
		h.logger.Debug("subscriber lagging, event dropped",
			zap.String("task_id", e.TaskID), zap.String("subscription", s.taskID))
	}
}
