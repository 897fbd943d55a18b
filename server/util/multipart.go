package util

import (
	"errors"
	"mime/multipart"
	"net/http"
)

type MultipartFile struct {
	Field  string
	File   multipart.File
	Header *multipart.FileHeader
}

type ParsedMultipart struct {
	Values map[string]string
	Files  []MultipartFile
}

func (pm *ParsedMultipart) CloseFiles() {
	for _, mf := range pm.Files {
		if mf.File != nil {
			mf.File.Close()
		}
	}
}

// FileByKey returns the first file posted under key, or nil.
func (pm *ParsedMultipart) FileByKey(key string) *MultipartFile {
	for i := range pm.Files {
		if pm.Files[i].Field == key {
			return &pm.Files[i]
		}
	}

	return nil
}

func (pm *ParsedMultipart) Value(key string) string {
	return pm.Values[key]
}

// IsTooLarge reports whether err came from the request body exceeding the
// payload limit given to ParseMultipart.
func IsTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// ParseMultipart reads a multipart form of at most maxPayload bytes, keeping
// up to maxMemory of it in memory and spilling the rest to disk. Only the
// first value of each field is kept.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxPayload, maxMemory int64) (*ParsedMultipart, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayload)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, err
	}

	pm := &ParsedMultipart{Values: make(map[string]string)}
	for key, arr := range r.MultipartForm.Value {
		if len(arr) > 0 {
			pm.Values[key] = arr[0]
		}
	}

	for key, fhs := range r.MultipartForm.File {
		for _, fh := range fhs {
			f, err := fh.Open()
			if err != nil {
				pm.CloseFiles()
				return nil, err
			}
			pm.Files = append(pm.Files, MultipartFile{Field: key, File: f, Header: fh})
		}
	}

	return pm, nil
}
