package entries

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("upload would exceed the user's upload limit")
)
