//go:build !unix

package subkey

import "os"

func checkKeyFilePerms(path string, fi os.FileInfo, opts LoadOptions) error { return nil }

func checkDirPerms(dir string, opts LoadOptions) error { return nil }
