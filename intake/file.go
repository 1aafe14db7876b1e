package intake

import (
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
)

const sniffLen = 512

// File is one uploaded part awaiting validation and storage.
type File struct {
	Category     string
	OriginalName string
	ContentType  string
	Size         int64
	Open         func() (io.ReadCloser, error)
}

func (f File) displayName() string {
	if f.OriginalName != "" {
		return f.OriginalName
	}
	return f.Category
}

// FilesFromForm flattens the file parts of a parsed multipart form. Known
// categories come first in form order, then any other keys alphabetically.
func FilesFromForm(form *multipart.Form) []File {
	if form == nil {
		return nil
	}
	keys := make([]string, 0, len(form.File))
	for k := range form.File {
		keys = append(keys, k)
	}
	rank := make(map[string]int)
	for i, c := range Categories() {
		rank[c] = i + 1
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank[keys[i]], rank[keys[j]]
		switch {
		case ri > 0 && rj > 0:
			return ri < rj
		case ri > 0 || rj > 0:
			return ri > 0
		default:
			return keys[i] < keys[j]
		}
	})

	var files []File
	for _, key := range keys {
		for _, fh := range form.File[key] {
			fh := fh
			files = append(files, File{
				Category:     key,
				OriginalName: fh.Filename,
				ContentType:  fh.Header.Get("Content-Type"),
				Size:         fh.Size,
				Open:         func() (io.ReadCloser, error) { return fh.Open() },
			})
		}
	}
	return files
}

// resolveContentType fills in the type of parts declared as generic binary by
// sniffing their first bytes.
func resolveContentType(f *File) error {
	ct := NormalizeContentType(f.ContentType)
	if ct != "" && ct != "application/octet-stream" {
		f.ContentType = ct
		return nil
	}
	if f.Open == nil {
		f.ContentType = ct
		return nil
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	f.ContentType = NormalizeContentType(http.DetectContentType(buf[:n]))
	if f.ContentType == "application/octet-stream" && isHEIF(buf[:n]) {
		f.ContentType = "image/heic"
	}
	return nil
}

// isHEIF recognises the ISO base media "ftyp" box of HEIC/HEIF photos,
// which http.DetectContentType does not know.
func isHEIF(b []byte) bool {
	if len(b) < 12 || string(b[4:8]) != "ftyp" {
		return false
	}
	brand := strings.ToLower(string(b[8:12]))
	switch brand {
	case "heic", "heix", "hevc", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}
