package core

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"fileident/pkg/types"
)

// 流式读取的缓冲区大小
const readBufferSize = 64 * 1024

var ErrSizeMismatch = errors.New("file size changed while hashing")

// GenerateCasID 计算文件的内容标识符
// 算法: SHA-256( size(8 字节小端) || 文件全部字节 )
// 把长度混入哈希，保证 "内容 + 长度" 共同决定 CasID
func GenerateCasID(ctx context.Context, path string, size uint64) (types.CasID, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return HashContent(ctx, f, size)
}

// HashContent 对任意 Reader 计算 CasID，读取的字节数必须恰好等于 size
func HashContent(ctx context.Context, r io.Reader, size uint64) (types.CasID, error) {
	hasher := sha256.New()

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], size)
	hasher.Write(sizeBuf[:])

	buf := make([]byte, readBufferSize)
	var read uint64
	for {
		// 大文件哈希可能很慢，每个缓冲区检查一次取消信号
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := r.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			read += uint64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	if read != size {
		return "", fmt.Errorf("%w: expected %d bytes, read %d", ErrSizeMismatch, size, read)
	}

	return types.CasID(hex.EncodeToString(hasher.Sum(nil))), nil
}
