package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ImageFile represents one image file read from a directory.
type ImageFile struct {
	// Path is the full path to the image file.
	Path string
	// Name is the file name with extension.
	Name string
	// Data is the raw bytes of the image file.
	Data []byte
}

// imageExts lists the decodable image extensions.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// LoadDirectoryImageFiles reads every image file from a directory, ordered
// by file name. Non-image files and subdirectories are skipped.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", dir)
	}

	var imgs []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if !imageExts[strings.ToLower(filepath.Ext(file.Name()))] {
			continue
		}

		path := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		imgs = append(imgs, ImageFile{
			Path: path,
			Name: file.Name(),
			Data: data,
		})
	}

	sort.Slice(imgs, func(i, j int) bool {
		return imgs[i].Name < imgs[j].Name
	})
	return imgs, nil
}
