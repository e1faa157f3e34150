// Package notify はコンポーネント内の変更を購読者へ同期的に通知する。
package notify

import (
	"log/slog"
	"sync"
)

// Handler は通知を受け取る関数。
type Handler[T any] func(T)

// Bus は型付きの通知チャネル。
// Publishは購読者一覧のスナップショットを取ってからロック外で配信するため、
// ハンドラー内からSubscribe/Unsubscribeや発行元の操作を呼んでもデッドロックしない。
type Bus[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]Handler[T]
	order    []uint64
	logger   *slog.Logger
}

// NewBus はBusを生成する。loggerがnilの場合はslog.Default()を使用する。
func NewBus[T any](logger *slog.Logger) *Bus[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus[T]{
		handlers: make(map[uint64]Handler[T]),
		logger:   logger,
	}
}

// Subscribe はハンドラーを登録し、登録解除用の関数を返す。
// 解除関数は複数回呼んでも安全。
func (b *Bus[T]) Subscribe(h Handler[T]) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish は登録順に全ハンドラーへ値を配信する。
// ハンドラーのpanicは回復してログに記録し、残りの購読者への配信を続ける。
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	snapshot := make([]Handler[T], 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.handlers[id])
	}
	b.mu.Unlock()

	for _, h := range snapshot {
		b.deliver(h, v)
	}
}

func (b *Bus[T]) deliver(h Handler[T], v T) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("通知ハンドラーでpanicが発生しました",
				slog.Any("panic", rec),
			)
		}
	}()
	h(v)
}

// Len は現在の購読者数を返す。
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}
