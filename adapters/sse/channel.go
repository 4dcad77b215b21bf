package sse

import (
	"sync"
)

// subscriberBuffer 是每個訂閱通道的緩衝大小
const subscriberBuffer = 8

// Channel 管理單一主題的所有訂閱者，並將收到的訊息廣播給每一位。
// 最近一則訊息會保留下來，在新訂閱者加入時先補發給它，
// 讓拍賣會閒置期間連上的瀏覽器也能立刻拿到當前狀態。
// 每則訊息都是完整快照，讀取慢的訂閱者緩衝滿了就略過這一則，
// 等它跟上之後收到的下一則快照仍是完整狀態。
type Channel[T any] struct {
	subscribers map[<-chan T]chan<- T
	last        T
	hasLast     bool
	mu          sync.RWMutex
}

// NewChannel 建立一個新的 SSE 頻道
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{
		subscribers: make(map[<-chan T]chan<- T),
	}
}

// Subscribe 建立一個新的訂閱並回傳唯讀通道給呼叫者。
// 已經廣播過訊息時，最近一則會先放進新通道。
func (c *Channel[T]) Subscribe() <-chan T {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan T, subscriberBuffer)
	if c.hasLast {
		ch <- c.last
	}
	c.subscribers[ch] = ch
	return ch
}

// Unsubscribe 從訂閱清單移除指定的通道並關閉它
func (c *Channel[T]) Unsubscribe(ch <-chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if writeCh, exists := c.subscribers[ch]; exists {
		delete(c.subscribers, ch)
		close(writeCh)
	}
}

// UnsubscribeAll 關閉所有訂閱者的通道並清空訂閱清單
func (c *Channel[T]) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, writeCh := range c.subscribers {
		close(writeCh)
	}
	clear(c.subscribers)
}

// Broadcast 將訊息廣播給所有仍在訂閱清單中的通道，
// 並保留它作為之後新訂閱者的補發內容
func (c *Channel[T]) Broadcast(message T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = message
	c.hasLast = true
	for _, writeCh := range c.subscribers {
		select {
		case writeCh <- message:
		default:
		}
	}
}

// IsIdle 判斷是否已無任何訂閱者
func (c *Channel[T]) IsIdle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers) == 0
}
