package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	// 1. 空目录 (没有 .fiignore)
	matcher, err := NewMatcher(t.TempDir())
	require.NoError(t, err)

	// 2. 验证默认规则
	tests := []struct {
		path     string
		isDir    bool
		shouldIg bool
	}{
		{".fi", true, true},
		{".fi/index.db", false, true}, // 子路径也应该被忽略
		{".git", true, true},
		{".DS_Store", false, true},
		{"photos/Thumbs.db", false, true},
		{"movie.mkv.partial", false, true},
		{"main.go", false, false}, // 普通文件不应忽略
		{"data/model.bin", false, false},
		{"photos", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path, tt.isDir), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_WithUserFile(t *testing.T) {
	tmpDir := t.TempDir()

	ignoreContent := `
# 这是注释
*.log
temp
build/
!important.log
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, FileName), []byte(ignoreContent), 0644))

	matcher, err := NewMatcher(tmpDir)
	require.NoError(t, err)

	tests := []struct {
		path     string
		isDir    bool
		shouldIg bool
	}{
		// --- 默认规则依然要生效 ---
		{".fi", true, true},

		// --- 用户规则生效 ---
		{"app.log", false, true},
		{"logs/error.log", false, true},
		{"temp", true, true},
		{"temp/file", false, true},
		{"build", true, true},
		{"build/out.bin", false, true},

		// --- 正常文件 ---
		{"main.go", false, false},

		// --- 负向规则 ---
		{"important.log", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path, tt.isDir), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Matches("anything", false))
}
