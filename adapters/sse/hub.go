package sse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"pulsantiera/auction"
)

// feed 是單一拍賣會的上游訂閱與下游廣播的配對
type feed struct {
	channel *Channel[auction.Session]
	cancel  func()
	done    chan struct{}
}

// Hub 將儲存層的即時快照訂閱集散到各個SSE連線。
// 每場拍賣會只維護一條上游訂閱，不論有多少瀏覽器連著；
// 最後一個訂閱者離開時上游訂閱會被釋放。
type Hub struct {
	source ISnapshotSource
	logger *slog.Logger

	mu     sync.Mutex
	active bool
	feeds  map[string]*feed
}

// NewHub 建立一個新的連線集散器
func NewHub(source ISnapshotSource, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		source: source,
		logger: logger.With(slog.String("caller", "Hub")),
		feeds:  make(map[string]*feed),
		active: true,
	}
}

// Subscribe 訂閱指定拍賣會的狀態快照，第一則一定是當前快照。
// 同一場拍賣會的第一個訂閱者會建立上游訂閱，之後的訂閱者共用，
// 並在加入時補收最近一次廣播的快照。
func (h *Hub) Subscribe(auctionID string) (<-chan auction.Session, error) {
	const op = "Hub.Subscribe"
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active {
		return nil, context.Canceled
	}

	if f, ok := h.feeds[auctionID]; ok {
		return f.channel.Subscribe(), nil
	}

	updates, cancel, err := h.source.Subscribe(auctionID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to subscribe upstream, err=%w", op, err)
	}
	f := &feed{
		channel: NewChannel[auction.Session](),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	h.feeds[auctionID] = f

	// 先掛上第一個訂閱者再啟動轉送，初始快照才不會被漏掉
	sub := f.channel.Subscribe()
	go func() {
		defer close(f.done)
		for snapshot := range updates {
			f.channel.Broadcast(snapshot)
		}
	}()
	h.logger.Debug("upstream feed opened", slog.String("auctionId", auctionID))
	return sub, nil
}

// Unsubscribe 取消訂閱；該拍賣會已無訂閱者時同時釋放上游訂閱
func (h *Hub) Unsubscribe(auctionID string, ch <-chan auction.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[auctionID]
	if !ok {
		return
	}
	f.channel.Unsubscribe(ch)
	if f.channel.IsIdle() {
		f.cancel()
		<-f.done
		delete(h.feeds, auctionID)
		h.logger.Debug("upstream feed closed", slog.String("auctionId", auctionID))
	}
}

// Close 停止集散器並釋放所有上游訂閱
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active {
		return
	}
	h.active = false
	for id, f := range h.feeds {
		f.cancel()
		<-f.done
		f.channel.UnsubscribeAll()
		delete(h.feeds, id)
	}
}
