package sqlstore

import (
	"errors"
	"strings"
)

var errConnReset = errors.New("connection reset by peer")

func rowColumns() []string {
	cols := strings.Split(columns, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}
