package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"example.com/mtui/pkg/models"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// authMethods 根据 Identity 构建认证方式
func authMethods(id models.Identity) ([]ssh.AuthMethod, error) {
	switch id.AuthType {
	case "password":
		if id.Password == "" {
			return nil, fmt.Errorf("auth type is password but password is empty")
		}
		return []ssh.AuthMethod{ssh.Password(id.Password)}, nil

	case "key":
		if id.KeyPath == "" {
			return nil, fmt.Errorf("auth type is key but key_path is empty")
		}
		signer, err := loadKey(expandHomeDir(id.KeyPath), id.Passphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case "agent", "":
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, errors.New("auth type is agent but SSH_AUTH_SOCK is not set")
		}
		// 连接在进程生命周期内保持打开, 由 agent 客户端复用
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, fmt.Errorf("failed to reach ssh agent: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, nil

	default:
		return nil, fmt.Errorf("unsupported auth type: %s", id.AuthType)
	}
}

func loadKey(path, passphrase string) (ssh.Signer, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// hostKeyCallback checks ~/.ssh/known_hosts when present. Reference hosts
// are reinstalled often, so a missing file means keys are not pinned.
func hostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ssh.InsecureIgnoreHostKey(), nil
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	if _, err := os.Stat(path); err != nil {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(path)
}

// expandHomeDir 简单的路径处理辅助函数
func expandHomeDir(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + path[1:]
		}
	}
	return path
}
