//go:build !windows

package identifier

// IsOnDemandError 在非 Windows 平台上永远为 false
func IsOnDemandError(error) bool { return false }
