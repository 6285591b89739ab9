//go:build windows

package identifier

import (
	"errors"
	"syscall"
)

// 云盘占位文件 (OneDrive "Files On-Demand" 等) 在提供程序不可用时
// 无法直接读取元数据，Windows 返回以下错误码
const (
	errorCloudFileProviderNotRunning syscall.Errno = 362
	errorCloudFileMetadataCorrupt    syscall.Errno = 363
	errorCloudFileUnsuccessful       syscall.Errno = 389
	errorCloudFileAccessDenied       syscall.Errno = 395
)

// IsOnDemandError 判断错误是否来自按需下载的占位文件
func IsOnDemandError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case errorCloudFileProviderNotRunning, errorCloudFileMetadataCorrupt,
		errorCloudFileUnsuccessful, errorCloudFileAccessDenied:
		return true
	}
	return false
}
