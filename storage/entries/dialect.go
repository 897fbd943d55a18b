package entries

import (
	"fmt"
	"strings"
)

type placeholderStyle int

const (
	placeholderQuestion placeholderStyle = iota
	placeholderDollar
)

// dialect captures the few places the supported databases disagree.
type dialect struct {
	driverName  string
	placeholder placeholderStyle
	idColumn    string
	// returning means inserted ids come back through RETURNING rather than
	// LastInsertId.
	returning bool
}

func resolveDialect(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres":
		return dialect{
			driverName:  "pgx",
			placeholder: placeholderDollar,
			idColumn:    "id BIGSERIAL PRIMARY KEY",
			returning:   true,
		}, nil
	case "mysql":
		return dialect{
			driverName:  "mysql",
			placeholder: placeholderQuestion,
			idColumn:    "id BIGINT AUTO_INCREMENT PRIMARY KEY",
		}, nil
	case "sqlite":
		return dialect{
			driverName:  "sqlite",
			placeholder: placeholderQuestion,
			idColumn:    "id INTEGER PRIMARY KEY AUTOINCREMENT",
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// placeholders returns n comma-separated placeholders starting at index from.
func (d dialect) placeholders(from, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.placeholderFor(from + i)
	}
	return strings.Join(out, ", ")
}

func (d dialect) placeholderFor(index int) string {
	if d.placeholder == placeholderDollar {
		return fmt.Sprintf("$%d", index)
	}

	return "?"
}
