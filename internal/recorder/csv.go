package recorder

import (
	"encoding/json"
	"fmt"
	"sort"
)

// csvRow derives a CSV header/row pair from v's JSON field names,
// sorted for a deterministic column order across every row written to
// the same stream.
func csvRow(v interface{}) (row []string, fields []string, err error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("recorder: marshal for csv: %w", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		// Not an object (e.g. a bare scalar): one unnamed column.
		return []string{string(b)}, []string{"value"}, nil
	}

	fields = make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	row = make([]string, len(fields))
	for i, k := range fields {
		var v interface{}
		if err := json.Unmarshal(m[k], &v); err == nil {
			row[i] = fmt.Sprint(v)
		} else {
			row[i] = string(m[k])
		}
	}
	return row, fields, nil
}
