package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// DefaultExportName is the base name used when the caller gives none.
func DefaultExportName(at time.Time) string {
	return "query_export_" + at.Format("20060102_150405")
}

// BuildExportKey places an export under a date partition:
// date=2026-02-19/sales_report.csv.
func BuildExportKey(baseName, ext string, at time.Time) (string, error) {
	if err := ValidateName(baseName); err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return "", fmt.Errorf("file extension is required")
	}
	ts := at.UTC()
	return path.Join(
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		baseName+"."+ext,
	), nil
}

// ValidateName rejects export names that could escape the export root.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid export name: %q", name)
	}
	return nil
}
