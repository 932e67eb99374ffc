package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/monscrape/pkg/survey"
)

// Stdout is the output destination that writes to standard output.
const Stdout = "-"

// ResolveOutput returns where the records of collectorID are written. An
// empty destination means <collectorID>.csv; any other path except Stdout
// has its extension replaced by .csv. A dot that leads or ends the file name
// does not start an extension, so ".report" becomes ".report.csv".
func ResolveOutput(collectorID, dest string) string {
	switch dest {
	case Stdout:
		return Stdout
	case "":
		return collectorID + ".csv"
	}
	base := filepath.Base(dest)
	if i := strings.LastIndex(base, "."); i > 0 && i < len(base)-1 {
		dest = strings.TrimSuffix(dest, base[i:])
	}
	return dest + ".csv"
}

// WriteCSV writes a header row of survey.Columns followed by one row per
// record.
func WriteCSV(w io.Writer, records []survey.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(survey.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
