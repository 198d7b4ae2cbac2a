package sftp

const (
	DefaultConcurrentFiles = 5
	DefaultChunkSize       = 32 * 1024 // 32KB SFTP 默认包大小
)

// TransferConfig 定义传输配置
type TransferConfig struct {
	ConcurrentFiles int // 同时传输的文件数
	ChunkSize       int // 拷贝缓冲区大小
}

func DefaultConfig() TransferConfig {
	return TransferConfig{
		ConcurrentFiles: DefaultConcurrentFiles,
		ChunkSize:       DefaultChunkSize,
	}
}

// ProgressCallback 进度回调，n 为本次增量传输的字节数
// 此函数必须是并发安全的
type ProgressCallback func(n int)
