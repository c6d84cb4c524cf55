package tapr

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"taprscrape/lib/progress"

	"github.com/stretchr/testify/require"
)

func TestRenameCanonicalPrefixSpelling(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DISTGRAD.csv")

	renamed, err := RenameCanonical(dir, LevelDistrict, "GRAD", 2021)
	require.NoError(t, err)
	require.True(t, renamed)

	require.FileExists(t, filepath.Join(dir, "DISTGRAD_2021.csv"))
	require.NoFileExists(t, filepath.Join(dir, "DISTGRAD.csv"))
}

func TestRenameCanonicalLevelSpelling(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DGRAD.dat")

	renamed, err := RenameCanonical(dir, LevelDistrict, "GRAD", 2019)
	require.NoError(t, err)
	require.True(t, renamed)
	require.FileExists(t, filepath.Join(dir, "DISTGRAD_2019.dat"))
}

func TestRenameCanonicalRef(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DREF.dat")

	renamed, err := RenameCanonical(dir, LevelDistrict, "REF", 2019)
	require.NoError(t, err)
	require.True(t, renamed)
	require.FileExists(t, filepath.Join(dir, "DREF_2019.dat"))
}

func TestRenameCanonicalFirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DISTGRAD.csv")
	touch(t, dir, "DISTGRAD.dat")

	renamed, err := RenameCanonical(dir, LevelDistrict, "GRAD", 2021)
	require.NoError(t, err)
	require.True(t, renamed)

	// only the .csv is renamed, the .dat is deliberately left alone
	require.FileExists(t, filepath.Join(dir, "DISTGRAD_2021.csv"))
	require.FileExists(t, filepath.Join(dir, "DISTGRAD.dat"))
	require.NoFileExists(t, filepath.Join(dir, "DISTGRAD_2021.dat"))
}

func TestRenameCanonicalNoMatch(t *testing.T) {
	renamed, err := RenameCanonical(t.TempDir(), LevelDistrict, "GRAD", 2021)
	require.NoError(t, err)
	require.False(t, renamed)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestConvertDatFilesComma(t *testing.T) {
	dir := t.TempDir()
	content := "DISTRICT,DNAME,GRADRATE\n'001902,CAYUGA ISD,98.2\n'001903,ELKHART ISD,97.5\n"
	err := os.WriteFile(filepath.Join(dir, "DISTGRAD_2019.dat"), []byte(content), 0o644)
	require.NoError(t, err)

	rec := &recordedMessages{}
	ConvertDatFiles(dir, rec.sink())

	rows := readCSV(t, filepath.Join(dir, "DISTGRAD_2019.csv"))
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Len(t, row, 3)
	}
	require.Equal(t, []string{"DISTRICT", "DNAME", "GRADRATE"}, rows[0])
	require.Equal(t, 1, rec.count("Converted: DISTGRAD_2019.dat -> DISTGRAD_2019.csv"))
}

func TestConvertDatFilesTabDelimited(t *testing.T) {
	dir := t.TempDir()
	content := "A\tB\tC\n1\t2\t3\n4\t5\t6\n"
	err := os.WriteFile(filepath.Join(dir, "DREF_2019.dat"), []byte(content), 0o644)
	require.NoError(t, err)

	ConvertDatFiles(dir, progress.Discard())

	rows := readCSV(t, filepath.Join(dir, "DREF_2019.csv"))
	require.Equal(t, [][]string{{"A", "B", "C"}, {"1", "2", "3"}, {"4", "5", "6"}}, rows)
}

func TestConvertDatFilesIgnoresOthers(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "district_type2019.csv")

	rec := &recordedMessages{}
	ConvertDatFiles(dir, rec.sink())
	require.Empty(t, rec.lines)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSniffDelimiter(t *testing.T) {
	require.Equal(t, ',', sniffDelimiter("a,b,c\n1,2,3"))
	require.Equal(t, '\t', sniffDelimiter("a\tb\tc"))
	require.Equal(t, ';', sniffDelimiter("a;b;c"))
	require.Equal(t, '|', sniffDelimiter("a|b|c"))
	// single column falls back to comma
	require.Equal(t, ',', sniffDelimiter("justonecolumn"))
}
