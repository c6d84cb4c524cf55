package tapr

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taprscrape/lib/progress"
)

// RenameCanonical renames a freshly downloaded file for the variable to
// its canonical name. Both extensions (.csv first, then .dat) and both
// pre-rename spellings (prefix first, then level) are tried; the first
// existing file wins and no second file is touched, since only one
// era-appropriate file is expected per variable and year. Returns false
// when nothing matched.
func RenameCanonical(dir string, level Level, variable string, year int) (bool, error) {
	for _, ext := range []string{extCsv, extDat} {
		oldNames := []string{
			fmt.Sprintf("%s%s%s", level.Prefix(), variable, ext),
			fmt.Sprintf("%s%s%s", level, variable, ext),
		}
		for _, oldName := range oldNames {
			oldPath := filepath.Join(dir, oldName)
			if _, err := os.Stat(oldPath); err != nil {
				continue
			}
			newPath := filepath.Join(dir, CanonicalName(level, variable, year, ext))
			if err := os.Rename(oldPath, newPath); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// ConvertDatFiles writes a .csv sibling for every .dat file in dir,
// preserving rows and columns. A file that fails to parse is reported
// and skipped; the rest are still converted.
func ConvertDatFiles(dir string, sink progress.Sink) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		sink.Write(fmt.Sprintf("Directory '%s' does not exist.", dir))
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, extDat) {
			continue
		}
		csvName := strings.TrimSuffix(name, extDat) + extCsv
		err := convertDatFile(filepath.Join(dir, name), filepath.Join(dir, csvName))
		if err != nil {
			sink.Write(fmt.Sprintf("Error converting %s: %v", name, err))
			continue
		}
		sink.Write(fmt.Sprintf("Converted: %s -> %s", name, csvName))
	}
}

func convertDatFile(datPath, csvPath string) error {
	data, err := os.ReadFile(datPath)
	if err != nil {
		return err
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = sniffDelimiter(string(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return err
	}

	out, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	defer out.Close()

	writer := csv.NewWriter(out)
	err = writer.WriteAll(rows)
	if err != nil {
		return err
	}
	return out.Sync()
}

// sniffDelimiter picks the delimiter occurring most often in the first
// non-empty line. Legacy portal files are usually comma-delimited but
// tab, semicolon and pipe have all been seen in the wild.
func sniffDelimiter(data string) rune {
	line := data
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best := ','
	bestCount := 0
	for _, candidate := range []rune{',', '\t', ';', '|'} {
		count := strings.Count(line, string(candidate))
		if count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}
