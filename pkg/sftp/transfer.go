package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Upload 上传入口：支持文件或目录
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, progress ProgressCallback) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat local path failed: %w", err)
	}
	if info.IsDir() {
		return c.uploadDirectory(ctx, localPath, remotePath, progress)
	}
	// 远程路径是目录时拼接文件名
	if st, err := c.sftpClient.Stat(remotePath); err == nil && st.IsDir() {
		remotePath = c.JoinPath(remotePath, filepath.Base(localPath))
	}
	if err := c.sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("create remote dir failed: %w", err)
	}
	return c.uploadFile(ctx, localPath, remotePath, info.Mode(), progress)
}

// Download 下载入口：支持文件或目录
func (c *Client) Download(ctx context.Context, remotePath, localPath string, progress ProgressCallback) error {
	info, err := c.sftpClient.Stat(remotePath)
	if err != nil {
		return fmt.Errorf("stat remote path failed: %w", err)
	}
	if info.IsDir() {
		return c.downloadDirectory(ctx, remotePath, localPath, progress)
	}
	if st, err := os.Stat(localPath); err == nil && st.IsDir() {
		localPath = filepath.Join(localPath, info.Name())
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return c.downloadFile(ctx, remotePath, localPath, info.Mode(), progress)
}

// Remove deletes a remote file. A missing file is not an error.
func (c *Client) Remove(remotePath string) error {
	err := c.sftpClient.Remove(remotePath)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (c *Client) uploadFile(ctx context.Context, localPath, remotePath string, mode os.FileMode, progress ProgressCallback) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := c.sftpClient.Create(remotePath)
	if err != nil {
		return err
	}
	defer dst.Close()

	if err := c.copy(ctx, dst, src, progress); err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	// 保留可执行位, 脚本上传后需要直接运行
	return c.sftpClient.Chmod(remotePath, mode.Perm())
}

func (c *Client) downloadFile(ctx context.Context, remotePath, localPath string, mode os.FileMode, progress ProgressCallback) error {
	src, err := c.sftpClient.Open(remotePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer dst.Close()

	if err := c.copy(ctx, dst, src, progress); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return nil
}

func (c *Client) copy(ctx context.Context, w io.Writer, r io.Reader, progress ProgressCallback) error {
	buf := make([]byte, c.config.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, wErr := w.Write(buf[:n]); wErr != nil {
				return wErr
			}
			if progress != nil {
				progress(n)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *Client) uploadDirectory(ctx context.Context, localDir, remoteDir string, progress ProgressCallback) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ConcurrentFiles)

	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		dest := c.JoinPath(remoteDir, filepath.ToSlash(rel))
		// 目录顺序创建，文件并发传输
		if d.IsDir() {
			return c.sftpClient.MkdirAll(dest)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return c.uploadFile(ctx, p, dest, info.Mode(), progress)
		})
		return nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

func (c *Client) downloadDirectory(ctx context.Context, remoteDir, localDir string, progress ProgressCallback) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ConcurrentFiles)

	walker := c.sftpClient.Walk(remoteDir)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			_ = g.Wait()
			return err
		}
		if ctx.Err() != nil {
			break
		}
		rel, err := filepath.Rel(remoteDir, walker.Path())
		if err != nil {
			continue
		}
		dest := filepath.Join(localDir, rel)
		info := walker.Stat()
		if info.IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				_ = g.Wait()
				return err
			}
			continue
		}
		src := walker.Path()
		g.Go(func() error {
			return c.downloadFile(ctx, src, dest, info.Mode(), progress)
		})
	}
	return g.Wait()
}
