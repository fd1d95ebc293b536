package node

import (
	"os"
)

// FileImage writes a pulled image to Path. Chunks go to a temporary
// file which replaces Path on Commit.
type FileImage struct {
	Path string

	file *os.File
}

// WriteChunk implements ImageSink.
func (i *FileImage) WriteChunk(offset uint64, data []byte) error {
	if i.file == nil || offset == 0 {
		if i.file != nil {
			i.file.Close()
		}
		f, err := os.OpenFile(i.Path+".part", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		i.file = f
	}
	_, err := i.file.WriteAt(data, int64(offset))
	return err
}

// Commit implements ImageSink.
func (i *FileImage) Commit(size uint64) error {
	if i.file == nil {
		f, err := os.Create(i.Path + ".part")
		if err != nil {
			return err
		}
		i.file = f
	}
	f := i.file
	i.file = nil
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), i.Path)
}

// Abort implements ImageAborter, the partial file is removed.
func (i *FileImage) Abort() error {
	if i.file != nil {
		i.file.Close()
		i.file = nil
	}
	if err := os.Remove(i.Path + ".part"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
