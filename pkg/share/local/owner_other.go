//go:build !unix

package local

import "io/fs"

func owner(fs.FileInfo) (uid, gid int) { return 0, 0 }
