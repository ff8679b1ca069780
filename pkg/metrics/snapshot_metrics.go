package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const snapshotMetricSubsystem = "snapshot"

var (
	SnapshotOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: scenekeepNamespace,
			Subsystem: snapshotMetricSubsystem,
			Name:      "operations_total",
			Help:      "快照相关操作次数，按操作与结果分类",
		}, []string{opLabelName, resultLabelName})

	SnapshotLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: scenekeepNamespace,
			Subsystem: snapshotMetricSubsystem,
			Name:      "latency_ms",
			Help:      "快照相关操作耗时，单位毫秒",
			Buckets:   buckets,
		}, []string{opLabelName})

	SnapshotObjects = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: scenekeepNamespace,
			Subsystem: snapshotMetricSubsystem,
			Name:      "objects",
			Help:      "单次操作涉及的对象数量（节点与属性包）",
			Buckets:   objectBuckets,
		}, []string{opLabelName})

	SnapshotDiagnostics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: scenekeepNamespace,
			Subsystem: snapshotMetricSubsystem,
			Name:      "diagnostics_total",
			Help:      "重建过程中产生的诊断条目数量，按类型分类",
		}, []string{kindLabelName})

	RecordBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: scenekeepNamespace,
			Name:      "record_bytes",
			Help:      "编码后的选择记录大小，单位字节",
			Buckets:   sizeBuckets,
		})
)

// RegisterSnapshotMetrics 将快照相关的指标注册到 Prometheus Registerer 中。
func RegisterSnapshotMetrics(r prometheus.Registerer) {
	r.MustRegister(SnapshotOperations)
	r.MustRegister(SnapshotLatency)
	r.MustRegister(SnapshotObjects)
	r.MustRegister(SnapshotDiagnostics)
	r.MustRegister(RecordBytes)
}
