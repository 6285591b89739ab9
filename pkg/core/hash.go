package core

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// 定义规范化 (Canonical) 的 CBOR 编码选项
// 断点状态 (Resumable State) 是一个需要跨版本可解码的二进制 Blob，
// 所以编码必须是确定性的：同样的状态 => 同样的字节
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// Batch 是 map[CasID][]..., 不排序的话每次编码结果都不一样
	Sort: cbor.SortCanonical,

	// 2. 时间格式化为 Unix 整数，不生成 Tag 0/1
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 3. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS 攻击) ---
	// 断点文件可能来自磁盘或 S3，不能完全信任
	MaxArrayElements: 1_000_000,
	MaxMapPairs:      1_000_000,
	MaxNestedLevels:  32,

	IndefLength: cbor.IndefLengthForbidden,

	// 重复 Key 直接报错，避免两个版本的同一条记录被静默合并
	DupMapKey: cbor.DupMapKeyEnforcedAPF,

	TimeTag: cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// EncodeCanonical 使用规范化 CBOR 编码任意值
func EncodeCanonical(v any) ([]byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	return data, nil
}

// DecodeObject 通用的解码函数 (供外部使用)
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}
