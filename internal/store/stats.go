package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
)

// Stats holds storage statistics.
type Stats struct {
	Backend      string      `json:"backend"`
	Path         string      `json:"path"`
	SizeBytes    int64       `json:"size_bytes"`
	TotalSites   int         `json:"total_sites"`
	TotalEntries int         `json:"total_entries"`
	Sites        []SiteStats `json:"sites"`
}

// SiteStats holds per-site counts.
type SiteStats struct {
	Site    string `json:"site"`
	File    string `json:"file,omitempty"`
	Entries int    `json:"entries"`
	Corrupt bool   `json:"corrupt,omitempty"`
}

// Stats walks the site files. The site name is taken from the url field of
// the stored entries, so an empty or corrupt file reports its file name only.
func (s *FileStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Backend: BackendFile, Path: s.dir}

	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return st, err
	}
	sort.Strings(files)

	for _, f := range files {
		ss := SiteStats{File: filepath.Base(f)}
		if info, err := os.Stat(f); err == nil {
			st.SizeBytes += info.Size()
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return st, err
		}
		m, err := decodeMap(data)
		if err != nil {
			ss.Corrupt = true
		}
		for _, k := range m {
			ss.Site = k.URL
			break
		}
		ss.Entries = len(m)
		st.TotalEntries += ss.Entries
		st.Sites = append(st.Sites, ss)
	}
	st.TotalSites = len(st.Sites)
	return st, nil
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Backend: BackendSQLite, Path: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.SizeBytes = info.Size()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT site, COUNT(*) AS cnt
		FROM knowledge
		GROUP BY site ORDER BY site`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ss SiteStats
		if err := rows.Scan(&ss.Site, &ss.Entries); err != nil {
			return st, err
		}
		st.TotalEntries += ss.Entries
		st.Sites = append(st.Sites, ss)
	}
	st.TotalSites = len(st.Sites)
	return st, rows.Err()
}
