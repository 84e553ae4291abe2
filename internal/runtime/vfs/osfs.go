package vfs

import (
	"io/fs"
	"os"
)

// OSFS reads from the host file system.
type OSFS struct{}

func NewOS() *OSFS { return &OSFS{} }

func (OSFS) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
