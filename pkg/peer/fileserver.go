package peer

import (
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/dsdl"
)

// FileServer answers file.Read requests from files under Root. Paths
// are always resolved inside Root.
type FileServer struct {
	Root string
}

// Read returns up to dsdl.FileReadMaxData bytes at offset, or a file
// error code.
func (s *FileServer) Read(name string, offset uint64) ([]byte, int16) {
	fn := filepath.Join(s.Root, filepath.FromSlash(path.Clean("/"+name)))
	f, err := os.Open(fn)
	if err != nil {
		return nil, fileErrorCode(err)
	}
	defer f.Close()
	if info, err := f.Stat(); err != nil {
		return nil, fileErrorCode(err)
	} else if info.IsDir() {
		return nil, dsdl.FileIsDirectory
	}
	buf := make([]byte, dsdl.FileReadMaxData)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		glog.Warningf("read %s at %d: %v", fn, offset, err)
		return nil, dsdl.FileIOError
	}
	return buf[:n], dsdl.FileOK
}

func fileErrorCode(err error) int16 {
	switch {
	case os.IsNotExist(err):
		return dsdl.FileNotFound
	case os.IsPermission(err):
		return dsdl.FileAccessDenied
	}
	return dsdl.FileIOError
}
