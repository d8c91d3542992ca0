package snapshot

import (
	"errors"
	"strings"
)

// KeySeparator joins key-column values into a RowKey.
const KeySeparator = "|"

var ErrNoKeyColumns = errors.New("key columns must not be empty")

// Key derives the composite identity of row from keyColumns.
//
// A missing key column contributes the empty string, so two rows that both
// lack the same key column collide. Upstream data occasionally omits
// identifying fields and that collision is accepted.
func Key(row Row, keyColumns []string) (string, error) {
	if len(keyColumns) == 0 {
		return "", ErrNoKeyColumns
	}
	if len(keyColumns) == 1 {
		return row.Get(keyColumns[0]).keyPart(), nil
	}
	var b strings.Builder
	for i, c := range keyColumns {
		if i > 0 {
			b.WriteString(KeySeparator)
		}
		b.WriteString(row.Get(c).keyPart())
	}
	return b.String(), nil
}
