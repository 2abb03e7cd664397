package monitor

// 便捷函数供外部调用，无需访问 Metrics 实例

// IncCacheHit 增加缓存命中计数
func IncCacheHit(cacheType string) {
	GetMetrics().IncCacheHit(cacheType)
}

// IncCacheMiss 增加缓存未命中计数
func IncCacheMiss(cacheType string) {
	GetMetrics().IncCacheMiss(cacheType)
}

// IncProviderFailure 增加数据源失败计数
func IncProviderFailure(service, kind string) {
	GetMetrics().IncProviderFailure(service, kind)
}

// SetBreakerState 设置熔断器状态
func SetBreakerState(service string, state int) {
	GetMetrics().SetBreakerState(service, state)
}

// SetActivePositions 设置当前持仓数
func SetActivePositions(count int) {
	GetMetrics().SetActivePositions(count)
}

// IncPositionClosed 增加平仓计数
func IncPositionClosed(reason string) {
	GetMetrics().IncPositionClosed(reason)
}

// IncSignalGenerated 增加信号生成计数
func IncSignalGenerated(kind string) {
	GetMetrics().IncSignalGenerated(kind)
}

// ObserveAssessmentDuration 观察评估周期耗时
func ObserveAssessmentDuration(seconds float64) {
	GetMetrics().ObserveAssessmentDuration(seconds)
}

// SetStreamQueueSize 设置价格流队列大小
func SetStreamQueueSize(size int) {
	GetMetrics().SetStreamQueueSize(size)
}

// IncStreamDropped 增加价格流丢弃计数
func IncStreamDropped() {
	GetMetrics().IncStreamDropped()
}

// SetNATSConnected 设置 NATS 连接状态
func SetNATSConnected(connected bool) {
	GetMetrics().SetNATSConnected(connected)
}
