package filewatch

import (
	"path/filepath"
	"regexp"
	"strings"
)

const fromGliderDirName = "from-glider"

var eligibleExtensions = map[string]bool{
	".dcd": true, ".ecd": true, ".mcd": true, ".ncb": true,
	".scd": true, ".tcd": true, ".mcg": true, ".ncg": true, ".ccc": true,
}

var (
	dataFileRe  = regexp.MustCompile(`(?i)^\d{8}\.(dcd|ecd|mcd|ncd|scd|tcd)$`)
	logFileRe   = regexp.MustCompile(`(?i)^\d{8}\.(mcg|ncg)$`)
	cacheFileRe = regexp.MustCompile(`(?i)^[0-9a-fA-F]{8}\.(ccc)$`)
)

// eligible reports whether path should be handed to the decompressor: its
// extension is one of the recognized set, its parent directory is named
// "from-glider", and its basename matches one of the data/log/cache name
// patterns.
func eligible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !eligibleExtensions[ext] {
		return false
	}
	if filepath.Base(filepath.Dir(path)) != fromGliderDirName {
		return false
	}
	base := filepath.Base(path)
	return dataFileRe.MatchString(base) || logFileRe.MatchString(base) || cacheFileRe.MatchString(base)
}

// isCacheFile reports whether path's basename matches the cache-file
// pattern, in which case the Renamer is skipped after decompression.
func isCacheFile(path string) bool {
	return cacheFileRe.MatchString(filepath.Base(path))
}
