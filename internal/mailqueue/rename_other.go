//go:build unix && !linux

package mailqueue

func renameNoReplace(oldpath, newpath string) error {
	return linkRename(oldpath, newpath)
}
