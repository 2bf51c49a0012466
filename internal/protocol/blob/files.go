package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/dep2p/go-nest/pkg/types"
)

// SendFile 发送本地文件，文件名取路径的最后一段
func (c *Client) SendFile(ctx context.Context, peer types.PeerID, path string) (types.BlobID, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if fi.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	id, err := c.Send(ctx, peer, filepath.Base(path), uint64(fi.Size()), f)
	if err != nil {
		f.Close()
		return 0, err
	}
	return id, nil
}

// AcceptToFile 接受传输并写入新文件，目标已存在时返回 ErrFileExists
//
// 传输失败时删除未写完的文件。
func (c *Client) AcceptToFile(ctx context.Context, peer types.PeerID, id types.BlobID, path string) error {
	fi, err := os.Stat(path)
	switch {
	case err == nil && fi.IsDir():
		return fmt.Errorf("%w: %s", ErrIsDirectory, path)
	case err == nil:
		return fmt.Errorf("%w: %s", ErrFileExists, path)
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return err
	}

	sink := &fileSink{f: f}
	if err := c.Accept(ctx, peer, id, sink); err != nil {
		sink.Abort()
		return err
	}
	return nil
}

// fileSink 写入本地文件的接收端
type fileSink struct {
	f *os.File
}

func (s *fileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Close 同步并关闭文件
func (s *fileSink) Close() error {
	return multierr.Append(s.f.Sync(), s.f.Close())
}

// Abort 关闭并删除文件
func (s *fileSink) Abort() error {
	err := s.f.Close()
	if errors.Is(err, os.ErrClosed) {
		err = nil
	}
	return multierr.Append(err, os.Remove(s.f.Name()))
}
