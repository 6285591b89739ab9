// Package ignore 决定索引器跳过哪些路径。
package ignore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是用户自定义规则文件的名字，放在 Location 根目录
const FileName = ".fiignore"

// defaultRules 是强制生效的系统级规则
var defaultRules = []string{
	// --- 关键系统目录 ---
	".fi",  // 索引数据库和断点目录，索引它会让数据库文件不断变成孤儿
	".git", // 忽略 Git 仓库数据

	// --- 安全 ---
	".env",

	// --- 常见垃圾文件 ---
	".DS_Store",   // macOS
	"Thumbs.db",   // Windows
	"desktop.ini", // Windows
	"*.partial",   // 未下载完成的文件
}

// Matcher 判断一个相对路径是否应该被忽略
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 读取 rootPath 下的 .fiignore (可选) 并与默认规则合并
func NewMatcher(rootPath string) (*Matcher, error) {
	ignoreFilePath := filepath.Join(rootPath, FileName)

	_, err := os.Stat(ignoreFilePath)
	switch {
	case err == nil:
		ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFilePath, defaultRules...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", ignoreFilePath, err)
		}
		return &Matcher{ignorer: ignorer}, nil
	case errors.Is(err, os.ErrNotExist):
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(defaultRules...)}, nil
	default:
		return nil, err
	}
}

// Matches 检查相对于 Location 根目录的路径 (例如 "photos/cat.jpg")
// 目录需要带上尾部斜杠才能匹配 "build/" 这类只针对目录的规则，isDir 负责补上
func (m *Matcher) Matches(rel string, isDir bool) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isDir && !strings.HasSuffix(rel, "/") {
		rel += "/"
	}
	return m.ignorer.MatchesPath(rel)
}
