package job

import (
	"bytes"
	"fmt"

	"fileident/pkg/batch"
	"fileident/pkg/core"
	"fileident/pkg/meta"
	"fileident/pkg/types"
)

// stateMagic 是断点 Blob 的文件头
var stateMagic = []byte("FIJS")

// StateVersion 是当前的断点格式版本
// 新增字段只能追加 (新的整数 key)，旧 Blob 解码时缺失的字段保持零值
const StateVersion = 1

// Phase 是任务状态机的阶段
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseExtracting
	PhaseBatching
	PhaseDispatching
	PhaseAwaitingResults
	PhaseCompleted
	PhaseFailed
	PhaseInterrupted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseExtracting:
		return "extracting"
	case PhaseBatching:
		return "batching"
	case PhaseDispatching:
		return "dispatching"
	case PhaseAwaitingResults:
		return "awaiting_results"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Options 是一次运行的输入参数
type Options struct {
	LocationID types.LocationID `cbor:"1,keyasint"`
	// SubPath 为空表示整个 Location (Shallow 模式下表示根目录)
	SubPath   string        `cbor:"2,keyasint,omitempty"`
	Mode      meta.ScanMode `cbor:"3,keyasint"`
	ChunkSize int           `cbor:"4,keyasint"`
	PageSize  int           `cbor:"5,keyasint"`
	// WithPriority 会传递给每一个派发出去的工作单元
	WithPriority bool `cbor:"6,keyasint"`
}

// Stats 是运行过程中累计的统计数据
type Stats struct {
	// Orphans: 扫描器返回的记录数
	Orphans int `cbor:"1,keyasint"`
	// Identified: 成功计算出 CasID 的记录数
	Identified int `cbor:"2,keyasint"`
	// Skipped: 磁盘上为空文件，没有 CasID
	Skipped int `cbor:"3,keyasint"`
	// Failed: 产生了非致命错误的记录数
	Failed int `cbor:"4,keyasint"`

	Units           int `cbor:"5,keyasint"`
	CreatedObjects  int `cbor:"6,keyasint"`
	LinkedObjects   int `cbor:"7,keyasint"`
	LinkedFilePaths int `cbor:"8,keyasint"`
	Steps           int `cbor:"9,keyasint"`
}

// ResumableState 是两个步骤之间的完整检查点
// 只有 Job 会修改它，并且只在一个步骤的所有单元都确认完成之后才提交
type ResumableState struct {
	Version int              `cbor:"1,keyasint"`
	Options Options          `cbor:"2,keyasint"`
	Phase   Phase            `cbor:"3,keyasint"`
	Cursor  types.FilePathID `cbor:"4,keyasint"`
	// Pending 是上一步累积但尚未派发的记录
	Pending batch.Batch        `cbor:"5,keyasint,omitempty"`
	Stats   Stats              `cbor:"6,keyasint"`
	Errors  []NonCriticalError `cbor:"7,keyasint,omitempty"`
}

// EncodeState 编码为 "FIJS" + 规范化 CBOR
func EncodeState(s *ResumableState) ([]byte, error) {
	s.Version = StateVersion
	payload, err := core.EncodeCanonical(s)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(stateMagic)+len(payload))
	out = append(out, stateMagic...)
	return append(out, payload...), nil
}

// DecodeState 解码断点 Blob；任何格式问题都是 KindCorruptState 致命错误
func DecodeState(data []byte) (*ResumableState, error) {
	if !bytes.HasPrefix(data, stateMagic) {
		return nil, fatal(KindCorruptState, fmt.Errorf("bad magic header"))
	}

	var s ResumableState
	if err := core.DecodeObject(data[len(stateMagic):], &s); err != nil {
		return nil, fatal(KindCorruptState, fmt.Errorf("failed to decode state: %w", err))
	}

	if s.Version < 1 || s.Version > StateVersion {
		return nil, fatal(KindCorruptState, fmt.Errorf("unsupported state version %d", s.Version))
	}
	if s.Options.LocationID == 0 {
		return nil, fatal(KindCorruptState, fmt.Errorf("state has no location"))
	}
	return &s, nil
}
