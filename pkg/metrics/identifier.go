package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IdentifierMetrics 记录内容识别任务的进度
type IdentifierMetrics struct {
	files        *prometheus.CounterVec
	units        prometheus.Counter
	unitSize     prometheus.Histogram
	objects      *prometheus.CounterVec
	stepDuration prometheus.Histogram
}

// NewIdentifierMetrics 在全局注册表上创建指标；未启用时返回 nil
func NewIdentifierMetrics() *IdentifierMetrics {
	if !IsEnabled() {
		return nil
	}
	return NewIdentifierMetricsWith(GetRegistry())
}

// NewIdentifierMetricsWith 在指定注册表上创建指标 (测试用独立的注册表)
func NewIdentifierMetricsWith(reg prometheus.Registerer) *IdentifierMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &IdentifierMetrics{
		files: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileident_files_total",
				Help: "Orphan file paths analyzed, by outcome",
			},
			[]string{"outcome"},
		),
		units: f.NewCounter(prometheus.CounterOpts{
			Name: "fileident_units_dispatched_total",
			Help: "Work units dispatched to the object processor",
		}),
		unitSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fileident_unit_size",
			Help:    "Number of file paths per dispatched work unit",
			Buckets: []float64{1, 10, 50, 100, 200, 500, 1000},
		}),
		objects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileident_objects_total",
				Help: "Content objects touched by the object processor, by action",
			},
			[]string{"action"},
		),
		stepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name: "fileident_step_duration_milliseconds",
			Help: "Duration of one scan/identify/dispatch step in milliseconds",
			Buckets: []float64{
				10,    // 空页
				100,   // 小文件
				1000,  // 1s
				5000,  // 5s
				30000, // 大文件哈希
				120000,
			},
		}),
	}
}

// ObserveFiles 记录一步中各结果的文件数
func (m *IdentifierMetrics) ObserveFiles(identified, skipped, failed int) {
	if m == nil {
		return
	}
	m.files.WithLabelValues("identified").Add(float64(identified))
	m.files.WithLabelValues("skipped").Add(float64(skipped))
	m.files.WithLabelValues("failed").Add(float64(failed))
}

// ObserveUnit 记录一个已派发的单元
func (m *IdentifierMetrics) ObserveUnit(size int) {
	if m == nil {
		return
	}
	m.units.Inc()
	m.unitSize.Observe(float64(size))
}

// ObserveObjects 记录新建和复用的对象数
func (m *IdentifierMetrics) ObserveObjects(created, linked int) {
	if m == nil {
		return
	}
	m.objects.WithLabelValues("created").Add(float64(created))
	m.objects.WithLabelValues("linked").Add(float64(linked))
}

// ObserveStep 记录一步的耗时
func (m *IdentifierMetrics) ObserveStep(d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.Observe(float64(d.Milliseconds()))
}
