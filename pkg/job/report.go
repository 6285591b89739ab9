package job

import (
	"time"

	"fileident/pkg/types"
)

// Report 是一次运行的结果
// 没有致命错误即为成功，Errors 中的记录应当作为警告展示
type Report struct {
	LocationID types.LocationID
	Phase      Phase
	Stats      Stats
	Errors     []NonCriticalError
	Duration   time.Duration
}

// Succeeded 判断是否正常完成
func (r *Report) Succeeded() bool {
	return r.Phase == PhaseCompleted
}

// HasWarnings 判断是否有非致命错误
func (r *Report) HasWarnings() bool {
	return len(r.Errors) > 0
}
