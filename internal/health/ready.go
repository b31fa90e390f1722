package health

import "sync/atomic"

// Readiness 启动阶段就绪标记（DB 迁移完成、HTTP 路由挂载完成）
type Readiness struct {
	dbReady   atomic.Bool
	httpReady atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetDBReady(v bool)   { r.dbReady.Store(v) }
func (r *Readiness) SetHTTPReady(v bool) { r.httpReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.dbReady.Load() && r.httpReady.Load()
}
