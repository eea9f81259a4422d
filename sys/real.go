package sys

import (
	"os"
	"path/filepath"
)

var _ FileHandle = (*RealFile)(nil)
var _ FileSystem = OS{}

// OS is the FileSystem backed by the local operating system.
type OS struct{}

func (OS) Open(name string) (FileHandle, error) {
	f, err := ROpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (OS) Create(name string) (FileHandle, error) {
	if err := ensureDir(name); err != nil {
		return nil, err
	}
	f, err := ROpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func ensureDir(name string) error {
	if dir := filepath.Dir(name); dir != "" {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func (OS) Stat(name string) (int64, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

type RealFile struct {
	f *os.File
}

func ROpenFile(name string, flag int, perm os.FileMode) (*RealFile, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &RealFile{f: f}, nil
}

func (rf *RealFile) Write(p []byte) (n int, err error) {
	return rf.f.Write(p)
}

func (rf *RealFile) Read(p []byte) (n int, err error) {
	return rf.f.Read(p)
}

func (rf *RealFile) Seek(offset int64, whence int) (int64, error) {
	return rf.f.Seek(offset, whence)
}

func (rf *RealFile) Name() string {
	return rf.f.Name()
}

func (rf *RealFile) Sync() error {
	return rf.f.Sync()
}

func (rf *RealFile) Close() error {
	return rf.f.Close()
}
