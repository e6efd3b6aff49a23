package client

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// ImageFile is a local file queued for upload.
type ImageFile struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
}

// ParseArgs checks that every argument is a readable regular file and
// infers the declared content type from its extension. The server decides
// whether the type is acceptable.
func ParseArgs(args []string) ([]ImageFile, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []ImageFile

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}
		if !info.Mode().IsRegular() {
			return nil, &ValidationError{Arg: raw, Cause: "not a regular file"}
		}

		out = append(out, ImageFile{
			Path:        p,
			Name:        filepath.Base(p),
			Size:        info.Size(),
			ContentType: contentTypeFor(p),
		})
	}

	return out, nil
}

func contentTypeFor(path string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
