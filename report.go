package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ReportFormat is an output format for coupling reports.
type ReportFormat string

const (
	FormatCSV    ReportFormat = "csv"
	FormatYAML   ReportFormat = "yaml"
	FormatSQLite ReportFormat = "sqlite"
)

const (
	callReportName      = "method_calls"
	hierarchyReportName = "hierarchy"
	sqliteReportFile    = "coupling.db"
)

// ParseReportFormats validates format names. An empty list means CSV.
func ParseReportFormats(names []string) ([]ReportFormat, error) {
	if len(names) == 0 {
		return []ReportFormat{FormatCSV}, nil
	}
	seen := make(map[ReportFormat]bool)
	var formats []ReportFormat
	for _, n := range names {
		f := ReportFormat(strings.ToLower(strings.TrimSpace(n)))
		switch f {
		case FormatCSV, FormatYAML, FormatSQLite:
		default:
			return nil, fmt.Errorf("unknown report format %q (want csv, yaml or sqlite)", n)
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	return formats, nil
}

// ReportSaver writes analyzer results into an output folder.
type ReportSaver struct {
	Formats []ReportFormat
	Logger  Logger
}

// NewReportSaver returns a saver for the given formats.
func NewReportSaver(log Logger, formats ...ReportFormat) *ReportSaver {
	if log == nil {
		log = NewSilentLogger()
	}
	if len(formats) == 0 {
		formats = []ReportFormat{FormatCSV}
	}
	return &ReportSaver{Formats: formats, Logger: log}
}

type callReport struct {
	Kind    string               `yaml:"kind"`
	Records []CallCouplingRecord `yaml:"records"`
}

type hierarchyReport struct {
	Kind    string                    `yaml:"kind"`
	Records []HierarchyCouplingRecord `yaml:"records"`
}

// SaveMethodCallAnalyzerReport writes the call coupling records.
func (s *ReportSaver) SaveMethodCallAnalyzerReport(outputFolder string, records []CallCouplingRecord) error {
	if err := os.MkdirAll(outputFolder, 0o755); err != nil {
		return fmt.Errorf("creating output folder: %w", err)
	}
	for _, f := range s.Formats {
		var (
			path string
			err  error
		)
		switch f {
		case FormatCSV:
			path = filepath.Join(outputFolder, callReportName+".csv")
			err = writeCSV(path, []string{"class", "coupled_class", "calls"}, callRows(records))
		case FormatYAML:
			path = filepath.Join(outputFolder, callReportName+".yaml")
			err = writeYAML(path, callReport{Kind: "method_calls", Records: records})
		case FormatSQLite:
			path = filepath.Join(outputFolder, sqliteReportFile)
			err = writeSQLite(path, "call_coupling", callRows(records))
		}
		if err != nil {
			return fmt.Errorf("saving method call report (%s): %w", f, err)
		}
		s.Logger.Info("Saved method call report", F("file", path), F("records", len(records)))
	}
	return nil
}

// SaveSuperSubClassReport writes the hierarchy coupling records.
func (s *ReportSaver) SaveSuperSubClassReport(outputFolder string, records []HierarchyCouplingRecord) error {
	if err := os.MkdirAll(outputFolder, 0o755); err != nil {
		return fmt.Errorf("creating output folder: %w", err)
	}
	for _, f := range s.Formats {
		var (
			path string
			err  error
		)
		switch f {
		case FormatCSV:
			path = filepath.Join(outputFolder, hierarchyReportName+".csv")
			err = writeCSV(path, []string{"class", "coupled_class"}, hierarchyRows(records))
		case FormatYAML:
			path = filepath.Join(outputFolder, hierarchyReportName+".yaml")
			err = writeYAML(path, hierarchyReport{Kind: "hierarchy", Records: records})
		case FormatSQLite:
			path = filepath.Join(outputFolder, sqliteReportFile)
			err = writeSQLite(path, "hierarchy_coupling", hierarchyRows(records))
		}
		if err != nil {
			return fmt.Errorf("saving hierarchy report (%s): %w", f, err)
		}
		s.Logger.Info("Saved hierarchy report", F("file", path), F("records", len(records)))
	}
	return nil
}

// reportRow is one flattened (class, coupled class) pair. Calls is -1 for
// hierarchy rows.
type reportRow struct {
	Class   string
	Coupled string
	Calls   int
}

func callRows(records []CallCouplingRecord) []reportRow {
	var rows []reportRow
	for _, r := range records {
		for _, c := range r.Coupled {
			rows = append(rows, reportRow{Class: r.Class, Coupled: c.Class, Calls: c.Calls})
		}
	}
	return rows
}

// hierarchyRows keeps classes without relatives as a row with an empty
// coupled class.
func hierarchyRows(records []HierarchyCouplingRecord) []reportRow {
	var rows []reportRow
	for _, r := range records {
		if len(r.Coupled) == 0 {
			rows = append(rows, reportRow{Class: r.Class, Calls: -1})
			continue
		}
		for _, c := range r.Coupled {
			rows = append(rows, reportRow{Class: r.Class, Coupled: c, Calls: -1})
		}
	}
	return rows
}

func writeCSV(path string, header []string, rows []reportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Class, r.Coupled}
		if len(header) > 2 {
			rec = append(rec, strconv.Itoa(r.Calls))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// writeSQLite replaces table in the report database with rows. Row order is
// kept in the position column.
func writeSQLite(path, table string, rows []reportRow) (err error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ddl := fmt.Sprintf(`DROP TABLE IF EXISTS %[1]s;
CREATE TABLE %[1]s (
	position      INTEGER PRIMARY KEY,
	class         TEXT NOT NULL,
	coupled_class TEXT,
	calls         INTEGER
);
CREATE INDEX idx_%[1]s_class ON %[1]s(class);`, table)
	if err := sqlitex.ExecuteScript(conn, ddl, nil); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer endFn(&err)

	stmt, _, err := conn.PrepareTransient(fmt.Sprintf(
		`INSERT INTO %s (position, class, coupled_class, calls) VALUES (?, ?, ?, ?)`, table))
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Finalize() }()

	for i, r := range rows {
		stmt.BindInt64(1, int64(i))
		stmt.BindText(2, r.Class)
		if r.Coupled == "" {
			stmt.BindNull(3)
		} else {
			stmt.BindText(3, r.Coupled)
		}
		if r.Calls < 0 {
			stmt.BindNull(4)
		} else {
			stmt.BindInt64(4, int64(r.Calls))
		}
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
		if err := stmt.Reset(); err != nil {
			return err
		}
	}
	return nil
}
