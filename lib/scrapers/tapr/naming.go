// Package tapr contains the building blocks for pulling data files out
// of the TAPR advanced download portal: the file naming conventions the
// portal uses, a presence check for already-downloaded files, a watcher
// for in-flight downloads and the post-download rename/convert steps.
package tapr

import (
	"fmt"
	"os"
	"path/filepath"
)

// Level is the administrative granularity of a report, identified by
// the single-letter code the portal's sumlev radio group uses.
type Level string

const (
	LevelCampus   Level = "C"
	LevelDistrict Level = "D"
	LevelRegion   Level = "R"
	LevelState    Level = "S"
)

var levelNames = map[Level]string{
	LevelCampus:   "Campus",
	LevelDistrict: "District",
	LevelRegion:   "Region",
	LevelState:    "State",
}

var levelPrefixes = map[Level]string{
	LevelCampus:   "CAMP",
	LevelDistrict: "DIST",
	LevelRegion:   "REGN",
	LevelState:    "STATE",
}

// ParseLevel accepts either a single-letter code ("D") or a display
// name ("District").
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if _, ok := levelNames[l]; ok {
		return l, nil
	}
	for code, name := range levelNames {
		if name == s {
			return code, nil
		}
	}
	return "", fmt.Errorf("invalid level %q, must be one of: C, D, R, S", s)
}

func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

func (l Level) Name() string {
	return levelNames[l]
}

// Prefix is the file name token the portal uses for most files at this
// level, e.g. DIST for district-level files.
func (l Level) Prefix() string {
	return levelPrefixes[l]
}

// The portal switched from fixed-format .dat files to plain .csv
// starting with the 2021 school year.
const eraCutoffYear = 2021

const (
	extDat = ".dat"
	extCsv = ".csv"
)

// EraExt is the extension the portal serves for the given year.
func EraExt(year int) string {
	if year < eraCutoffYear {
		return extDat
	}
	return extCsv
}

// CanonicalName is the stable post-rename file name for a variable.
// REF files carry the level token, everything else the level's prefix.
func CanonicalName(level Level, variable string, year int, ext string) string {
	if variable == "REF" {
		return fmt.Sprintf("%s%s_%d%s", level, variable, year, ext)
	}
	return fmt.Sprintf("%s%s_%d%s", level.Prefix(), variable, year, ext)
}

// CandidateNames are the on-disk names under which a variable's file
// may already exist. The portal is inconsistent about whether it emits
// the prefix or the level token, so both spellings count in both
// extensions.
func CandidateNames(level Level, variable string, year int) []string {
	return []string{
		fmt.Sprintf("%s%s_%d%s", level.Prefix(), variable, year, extCsv),
		fmt.Sprintf("%s%s_%d%s", level.Prefix(), variable, year, extDat),
		fmt.Sprintf("%s%s_%d%s", level, variable, year, extDat),
		fmt.Sprintf("%s%s_%d%s", level, variable, year, extCsv),
	}
}

// ExpectedDownloadName is the name a freshly downloaded file arrives
// under, before it is renamed to its canonical name.
func ExpectedDownloadName(level Level, variable string, year int) string {
	if variable == "REF" {
		return fmt.Sprintf("%sREF%s", level, EraExt(year))
	}
	return fmt.Sprintf("%s%s%s", level.Prefix(), variable, EraExt(year))
}

// AlreadyPresent reports whether any candidate spelling of the
// variable's file exists in dir as a regular file.
func AlreadyPresent(dir string, level Level, variable string, year int) bool {
	for _, name := range CandidateNames(level, variable, year) {
		info, err := os.Stat(filepath.Join(dir, name))
		if err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}
