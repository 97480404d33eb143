package utils

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// OutputManager lays out partitioned output files under a base directory.
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// PartitionPrefix returns the hive-style prefix for one hour of data,
// e.g. "year=2024/month=12/day=13/hour=08".
func PartitionPrefix(year, month, day, hour int) string {
	return fmt.Sprintf("year=%04d/month=%02d/day=%02d/hour=%02d", year, month, day, hour)
}

// CreatePartitionDir creates the directory for a partition prefix if it does
// not exist yet and returns its path.
func (om *OutputManager) CreatePartitionDir(prefix string) (string, error) {
	dir := filepath.Join(om.BaseOutputDir, filepath.FromSlash(prefix))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create partition directory: %w", err)
	}
	return dir, nil
}

// GetOutputFilePath generates a full path for an output file inside a
// partition, creating the partition directory on the way.
func (om *OutputManager) GetOutputFilePath(prefix, fileName string) (string, error) {
	dir, err := om.CreatePartitionDir(prefix)
	if err != nil {
		return "", err
	}
	// Clean the filename to remove any path separators
	return filepath.Join(dir, filepath.Base(fileName)), nil
}

// GetFileType determines the file type based on extension
func GetFileType(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".parquet":
		return "parquet"
	case ".csv":
		return "csv"
	case ".json", ".jsonl", ".ndjson":
		return "json"
	default:
		return "unknown"
	}
}

// HasExtension reports whether key ends with one of the given extensions,
// compared case-insensitively. Extensions may be given with or without the
// leading dot.
func HasExtension(key string, extensions []string) bool {
	ext := strings.ToLower(path.Ext(key))
	if ext == "" {
		return false
	}
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == e {
			return true
		}
	}
	return false
}
