package telegram

import (
	"sync"
	"time"
)

const (
	// releaseGap is the standard spacing between privileged calls to
	// the same chat.
	releaseGap = time.Second
	// blockGap reserves the chat slot for a pending multi-step call.
	blockGap = 100 * time.Second
)

// ChatLimiter keeps a per-chat "next allowed send" clock. Privileged
// calls follow the pattern Wait, Block, perform the call, Release: at
// most one in-flight privileged call per chat, with at least one
// second between completions.
type ChatLimiter struct {
	mu   sync.Mutex
	next map[int64]time.Time
}

func NewChatLimiter() *ChatLimiter {
	return &ChatLimiter{next: make(map[int64]time.Time)}
}

// Wait suspends the caller until the chat's slot opens. The deadline is
// read under the lock; the sleep happens outside it.
func (l *ChatLimiter) Wait(chat int64) {
	l.mu.Lock()
	deadline := l.next[chat]
	l.mu.Unlock()
	if d := time.Until(deadline); d > 0 {
		time.Sleep(d)
	}
}

// Block reserves the chat slot for a pending call.
func (l *ChatLimiter) Block(chat int64) {
	l.set(chat, blockGap)
}

// Release frees the chat slot after the standard gap.
func (l *ChatLimiter) Release(chat int64) {
	l.set(chat, releaseGap)
}

func (l *ChatLimiter) set(chat int64, gap time.Duration) {
	l.mu.Lock()
	l.next[chat] = time.Now().Add(gap)
	l.mu.Unlock()
}
