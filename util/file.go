// Package util wraps file access behind viant/afs so that graph files,
// workdirs and manifests can live on any registered storage scheme
// (local paths or s3:// URLs) without the callers caring.
package util

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/option"
	_ "github.com/viant/afsc/s3"
)

var FileSystem = afs.New()

func ReadFileBytes(filename string) (out []byte, err error) {
	file, err := FileSystem.OpenURL(context.Background(), filename)
	if err != nil {
		return nil, err
	}
	defer func(file io.Closer) {
		err = errors.Join(err, file.Close())
	}(file)

	buf := &bytes.Buffer{}
	if _, err = io.Copy(buf, file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFileBytes overwrites filename with the given content.
func WriteFileBytes(filename string, content []byte) error {
	return FileSystem.Upload(context.Background(), filename, 0o644, bytes.NewReader(content), option.NewSkipChecksum(true))
}

func FileExists(filename string) (bool, error) {
	return FileSystem.Exists(context.Background(), filename)
}

func CreateDir(dirname string) error {
	return FileSystem.Create(context.Background(), dirname, os.ModePerm, true)
}

func DeleteFile(filename string) error {
	return FileSystem.Delete(context.Background(), filename)
}

func GetPathType(path string) string {
	if strings.HasPrefix(path, "s3://") {
		return "S3"
	}
	return "os"
}

// PathJoinSafe wrapper around filepath.Join to ensure that paths are correctly constructed
// if the path is a normal OS path, just use filepath.Join
// if the path is S3, trim any trailing slashes and construct it manually from the components
// so that double slashes (e.g. s3://) are preserved.
func PathJoinSafe(elem ...string) string {
	var path string

	switch GetPathType(elem[0]) {
	case "S3":
		basePath := strings.TrimSuffix(elem[0], "/")
		path = basePath + string(filepath.Separator) + filepath.Join(elem[1:]...)
	default:
		path = filepath.Join(elem...)
	}
	return path
}
