package cache

import (
	"context"
	"errors"
	"os"
	"time"
)

// TableInfo describes one table file found by Verify.
type TableInfo struct {
	Name    string
	Entries int
	Size    int64
	ModTime time.Time
	Err     error // Non-nil if the table failed to decode
}

// Verify decodes every table in the location. It returns one TableInfo per
// table and a joined error covering the tables that failed.
func (s *FileStore) Verify(ctx context.Context) ([]TableInfo, error) {
	names, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]TableInfo, 0, len(names))
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return infos, err
		}
		info := TableInfo{Name: name}
		if fi, err := os.Stat(s.tablePath(name)); err == nil {
			info.Size = fi.Size()
			info.ModTime = fi.ModTime()
		}

		data, err := os.ReadFile(s.tablePath(name))
		if err == nil {
			var t *tableData
			t, _, err = decodeTable(data)
			if err == nil {
				info.Entries = len(t.Entries)
			}
		}
		if err != nil {
			info.Err = storageErr("verify", name, err)
			errs = append(errs, info.Err)
		}
		infos = append(infos, info)
	}
	return infos, errors.Join(errs...)
}
