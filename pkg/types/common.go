// pkg/types/common.go
package types

// CasID 是文件内容的唯一标识符 (SHA256 Hex String)
// 相同的字节内容 + 相同的长度 => 相同的 CasID
// 空文件没有 CasID
type CasID string

func (c CasID) String() string { return string(c) }

// 验证 CasID 合法性
func (c CasID) IsZero() bool  { return c == "" }
func (c CasID) IsValid() bool { return len(c) == 64 } // 简单的长度检查

// Short 返回前 8 位，方便日志输出
func (c CasID) Short() string {
	if len(c) < 8 {
		return string(c)
	}
	return string(c[:8])
}

// LocationID 对应 locations 表主键
type LocationID int64

// FilePathID 对应 file_paths 表主键，扫描游标也使用它
type FilePathID int64

// ObjectID 对应 objects 表主键
type ObjectID int64
