package log

import (
	"context"

	"go.uber.org/atomic"
)

var (
	_ WithLogger   = &Binder{}
	_ LoggerBinder = &Binder{}
)

// WithLogger 由持有专属 Logger 的组件实现。
type WithLogger interface {
	Logger() *MLogger
}

// LoggerBinder 由允许外部注入 Logger 的组件实现。
type LoggerBinder interface {
	SetLogger(logger *MLogger)
}

// Binder 嵌入到引擎、Keeper 等组件中，保存其专属 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// Logger 返回绑定的 Logger，未绑定时退回全局 Logger。
func (w *Binder) Logger() *MLogger {
	if l := w.logger.Load(); l != nil {
		return l
	}
	return With()
}

// Attach 把绑定的 Logger 放到 ctx 上，供 Ctx(ctx) 在调用链下游取用。
func (w *Binder) Attach(ctx context.Context) context.Context {
	return WithCtxLogger(ctx, w.Logger())
}
