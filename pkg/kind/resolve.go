package kind

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FromExtension 仅根据扩展名推断类型，不读取文件内容
// 扩展名有冲突，或唯一候选也要求嗅探校验时返回 (Unknown, false)，需要调用 ResolveConflicting
func FromExtension(ext string) (ObjectKind, bool) {
	candidates := extensionTable[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if len(candidates) != 1 || candidates[0].family != nil {
		return Unknown, false
	}
	return candidates[0].kind, true
}

// ResolveConflicting 推断文件的内容类型
// 1. 扩展名唯一对应一个类型 -> 直接返回
// 2. 扩展名对应多个类型 -> 嗅探文件头，按表中顺序取第一个匹配的候选
// 3. 无扩展名 / 未知扩展名 / 嗅探失败 / 无候选匹配 -> Unknown
// 该函数永远不会返回错误：分类失败不是致命问题
func ResolveConflicting(path string) ObjectKind {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return Unknown
	}

	candidates, ok := extensionTable[ext]
	if !ok || len(candidates) == 0 {
		return Unknown
	}
	if len(candidates) == 1 && candidates[0].family == nil {
		return candidates[0].kind
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return Unknown
	}

	for _, c := range candidates {
		if matchesFamily(mtype, c.family) {
			return c.kind
		}
	}
	return Unknown
}

// matchesFamily 沿着 mimetype 的继承链检查前缀
// 例如 "text/x-typescript" 的父节点是 "text/plain"
func matchesFamily(m *mimetype.MIME, family []string) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		for _, prefix := range family {
			if strings.HasPrefix(cur.String(), prefix) {
				return true
			}
		}
	}
	return false
}
