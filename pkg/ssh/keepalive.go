package ssh

import (
	"context"
	"time"

	"golang.org/x/crypto/ssh"
)

// startKeepAlive 定期发送心跳, 失败时关闭连接并回调 onDead
func startKeepAlive(ctx context.Context, client *ssh.Client, interval time.Duration, onDead func(err error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			// "keepalive@openssh.com" 是 OpenSSH 标准的心跳请求类型
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				client.Close()
				if onDead != nil {
					onDead(err)
				}
				return
			}
		}
	}()
}
