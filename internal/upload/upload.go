// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package upload turns user-chosen files into SelectedFile values, applying
// the accepted-type, file-count, and size filters before anything reaches
// the conversion workflow.
package upload

import (
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/mdconvert/pkg/types"
)

const (
	// DefaultMaxFiles is the largest selection accepted at once.
	DefaultMaxFiles = 10
	// DefaultMaxFileSize is the largest single file accepted, in bytes.
	DefaultMaxFileSize int64 = 50 * 1024 * 1024
)

// acceptedTypes maps lower-case extensions to the media type sent upstream.
var acceptedTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".html": "text/html",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "text/xml",
	".zip":  "application/zip",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
}

// Extensions returns the accepted extensions in sorted order.
func Extensions() []string {
	exts := make([]string, 0, len(acceptedTypes))
	for ext := range acceptedTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// MimeType returns the media type for name and whether the type is accepted.
func MimeType(name string) (string, bool) {
	mt, ok := acceptedTypes[strings.ToLower(filepath.Ext(name))]
	return mt, ok
}

// Limits bounds a selection.
type Limits struct {
	MaxFiles    int
	MaxFileSize int64
}

// DefaultLimits returns the limits the upload widget enforced.
func DefaultLimits() Limits {
	return Limits{MaxFiles: DefaultMaxFiles, MaxFileSize: DefaultMaxFileSize}
}

// LimitsFrom fills zero fields of cfg with defaults.
func LimitsFrom(cfg types.UploadConfig) Limits {
	l := DefaultLimits()
	if cfg.MaxFiles > 0 {
		l.MaxFiles = cfg.MaxFiles
	}
	if cfg.MaxFileSize > 0 {
		l.MaxFileSize = cfg.MaxFileSize
	}
	return l
}

// Rejection names a file the filter refused and why.
type Rejection struct {
	Name   string `json:"name" msgpack:"name"`
	Reason string `json:"reason" msgpack:"reason"`
}

// Selection is the outcome of filtering: accepted files in input order and
// the rejected ones.
type Selection struct {
	Files    []types.SelectedFile
	Rejected []Rejection
}

// source is one candidate file before filtering.
type source struct {
	name string
	size int64
	open func() (io.ReadCloser, error)
}

// FromPaths reads the files at paths.
func FromPaths(paths []string, lim Limits) Selection {
	srcs := make([]source, 0, len(paths))
	var sel Selection
	for _, p := range paths {
		p := p
		info, err := os.Stat(p)
		if err != nil {
			sel.Rejected = append(sel.Rejected, Rejection{Name: filepath.Base(p), Reason: err.Error()})
			continue
		}
		if info.IsDir() {
			sel.Rejected = append(sel.Rejected, Rejection{Name: filepath.Base(p), Reason: "is a directory"})
			continue
		}
		srcs = append(srcs, source{
			name: filepath.Base(p),
			size: info.Size(),
			open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}
	filtered := filter(srcs, lim)
	filtered.Rejected = append(sel.Rejected, filtered.Rejected...)
	return filtered
}

// FromMultipart reads the uploaded parts of a multipart form.
func FromMultipart(headers []*multipart.FileHeader, lim Limits) Selection {
	srcs := make([]source, len(headers))
	for i, fh := range headers {
		fh := fh
		srcs[i] = source{
			name: filepath.Base(fh.Filename),
			size: fh.Size,
			open: func() (io.ReadCloser, error) { return fh.Open() },
		}
	}
	return filter(srcs, lim)
}

func filter(srcs []source, lim Limits) Selection {
	var sel Selection
	for _, src := range srcs {
		mt, ok := MimeType(src.name)
		switch {
		case !ok:
			sel.Rejected = append(sel.Rejected, Rejection{Name: src.name, Reason: "unsupported file type"})
			continue
		case lim.MaxFileSize > 0 && src.size > lim.MaxFileSize:
			sel.Rejected = append(sel.Rejected, Rejection{
				Name:   src.name,
				Reason: fmt.Sprintf("file is larger than %s", FormatSize(lim.MaxFileSize)),
			})
			continue
		case lim.MaxFiles > 0 && len(sel.Files) >= lim.MaxFiles:
			sel.Rejected = append(sel.Rejected, Rejection{
				Name:   src.name,
				Reason: fmt.Sprintf("too many files (max %d)", lim.MaxFiles),
			})
			continue
		}

		data, err := readAll(src)
		if err != nil {
			sel.Rejected = append(sel.Rejected, Rejection{Name: src.name, Reason: err.Error()})
			continue
		}
		sel.Files = append(sel.Files, types.SelectedFile{
			Name:     src.name,
			Size:     int64(len(data)),
			MimeType: mt,
			Data:     data,
		})
	}
	return sel
}

func readAll(src source) ([]byte, error) {
	rc, err := src.open()
	if err != nil {
		return nil, fmt.Errorf("opening: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}
	return data, nil
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count the way the upload list shows it:
// "0 Bytes", "1.5 KB", "50 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	v, i := float64(bytes), 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
