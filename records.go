package imagecurate

import (
	"context"
	"path"
	"strconv"
	"strings"
)

// RecordStore is the external per-asset bookkeeping store.
type RecordStore interface {
	MarkProcessed(ctx context.Context, id int64) error
}

// ParseAssetID extracts the external integer id from a file name: the leading
// decimal digits of the name without its extension ("123.jpg" → 123,
// "123_cat.png" → 123). Names without leading digits carry no id.
func ParseAssetID(name string) (int64, bool) {
	stem := strings.TrimSuffix(path.Base(name), path.Ext(name))
	end := 0
	for end < len(stem) && stem[end] >= '0' && stem[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(stem[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
