package job

import (
	"errors"
	"fmt"
)

// ErrInterrupted 表示任务在步骤边界被暂停或取消，上一次的检查点仍然有效
var ErrInterrupted = errors.New("file identifier job interrupted")

// ErrorKind 是致命错误的种类
type ErrorKind int

const (
	// KindCorruptState: 断点状态无法解码
	KindCorruptState ErrorKind = iota + 1
	// KindDatabase: 存储层连接或查询失败
	KindDatabase
	// KindSubPath: 子路径不在 Location 内、不存在或不是目录
	KindSubPath
	// KindMissingField: 数据库记录缺少必需的字段
	KindMissingField
)

func (k ErrorKind) String() string {
	switch k {
	case KindCorruptState:
		return "corrupt_state"
	case KindDatabase:
		return "database"
	case KindSubPath:
		return "sub_path"
	case KindMissingField:
		return "missing_field"
	default:
		return "unknown"
	}
}

// Error 是致命错误：任务立即进入 Failed，不再处理后续记录
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("file identifier %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fatal(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf 提取致命错误的种类
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// NonCriticalKind 是单条记录失败的种类
type NonCriticalKind string

const (
	FailedToExtractFileMetadata         NonCriticalKind = "failed_to_extract_file_metadata"
	FailedToExtractOnDemandMetadata     NonCriticalKind = "failed_to_extract_metadata_from_on_demand_file"
	FailedToExtractIsolatedFilePathData NonCriticalKind = "failed_to_extract_isolated_file_path_data"
)

// NonCriticalError 只记录不抛出，记录保持孤儿状态，下次运行时重试
type NonCriticalError struct {
	Kind    NonCriticalKind `cbor:"1,keyasint"`
	Path    string          `cbor:"2,keyasint,omitempty"`
	Message string          `cbor:"3,keyasint"`
}

func (e NonCriticalError) String() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: <path='%s'> %s", e.Kind, e.Path, e.Message)
}
