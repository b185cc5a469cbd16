package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timeLayout is how SQLite stores timestamps: fixed width UTC, so string
// order matches time order.
const timeLayout = "2006-01-02T15:04:05Z"

type dialect struct {
	name       string
	schema     []string
	positional bool
	textTime   bool
}

var (
	sqliteDialect = dialect{
		name:     "sqlite",
		schema:   sqliteSchema,
		textTime: true,
	}
	postgresDialect = dialect{
		name:       "pgx",
		schema:     postgresSchema,
		positional: true,
	}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case sqliteDialect.name:
		return sqliteDialect, nil
	case postgresDialect.name:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// rebind rewrites ? placeholders to $1..$n for Postgres. Queries here never
// contain a literal question mark.
func (d dialect) rebind(q string) string {
	if !d.positional {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// timeArg converts t into the driver's timestamp parameter.
func (d dialect) timeArg(t time.Time) any {
	if d.textTime {
		return t.UTC().Format(timeLayout)
	}
	return t.UTC()
}

// scanTime converts a scanned timestamp column. ok is false for NULL.
func scanTime(v any) (time.Time, bool, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return t.UTC(), true, nil
	case string:
		return parseTimeText(t)
	case []byte:
		return parseTimeText(string(t))
	default:
		return time.Time{}, false, fmt.Errorf("repository: unexpected time type %T", v)
	}
}

func parseTimeText(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("repository: unparseable time %q", s)
}

// nullID maps the zero id to SQL NULL.
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
