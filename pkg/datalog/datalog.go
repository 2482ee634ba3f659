// Package datalog records calibration sessions to numbered CSV files.
//
// Each session gets the next free N.CSV in the log directory. Every pass
// appends one row per sample and a summary comment; lines starting with '#'
// are comments. With charts enabled a PNG of the pass current curve is written
// next to the CSV as N-P.png.
package datalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itohio/goanneal/pkg/config"
	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/trace"
)

// ErrNoSession is returned by Write when Begin has not opened a file.
var ErrNoSession = errors.New("datalog: no open session")

// Header is the column row written at the top of every file.
var Header = []string{"pass", "elapsed_ms", "amps", "volts"}

// Logger implements cycle.Logger on top of a directory.
type Logger struct {
	dir    string
	charts bool

	file    *os.File
	csv     *csv.Writer
	num     int
	session string
}

var _ cycle.Logger = (*Logger)(nil)

// New creates a logger for cfg. Nothing touches the disk until Begin.
func New(cfg config.LogConfig) *Logger {
	return &Logger{
		dir:    cfg.Dir,
		charts: cfg.Charts,
	}
}

// Begin checks that the directory is usable and opens the next numbered file.
func (l *Logger) Begin() error {
	if l.file != nil {
		if err := l.End(); err != nil {
			log.Printf("datalog: closing previous session: %v", err)
		}
	}
	if err := l.ready(); err != nil {
		return err
	}

	num, err := NextNumber(l.dir)
	if err != nil {
		return err
	}

	path := filepath.Join(l.dir, fmt.Sprintf("%d.CSV", num))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	l.file = file
	l.csv = csv.NewWriter(file)
	l.num = num
	l.session = uuid.NewString()

	if _, err := fmt.Fprintf(file, "# session %s started %s\n", l.session, time.Now().Format(time.RFC3339)); err != nil {
		l.abort()
		return fmt.Errorf("failed to write log header: %w", err)
	}
	if err := l.flush(Header); err != nil {
		l.abort()
		return err
	}

	log.Printf("datalog: logging session %s to %s", l.session, path)
	return nil
}

// Write appends one calibration pass.
func (l *Logger) Write(r cycle.Recommendation, samples []trace.Sample) error {
	if l.file == nil {
		return ErrNoSession
	}

	pass := strconv.Itoa(r.Cycle)
	for _, s := range samples {
		l.csv.Write([]string{
			pass,
			strconv.FormatInt(s.Elapsed.Milliseconds(), 10),
			strconv.FormatFloat(float64(s.Amps), 'f', 3, 32),
			strconv.FormatFloat(float64(s.Volts), 'f', 2, 32),
		})
	}
	l.csv.Flush()
	if err := l.csv.Error(); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}

	if _, err := fmt.Fprintf(l.file, "# pass %d peak %d ms %.2f A recommended %.3f s average %.3f s\n",
		r.Cycle, r.Peak.Elapsed.Milliseconds(), r.Peak.Amps, r.Recommended, r.Average); err != nil {
		return fmt.Errorf("failed to write pass summary: %w", err)
	}

	if l.charts && len(samples) > 0 {
		chart := filepath.Join(l.dir, fmt.Sprintf("%d-%d.png", l.num, r.Cycle))
		if err := SaveChart(chart, r, samples); err != nil {
			// The CSV is the record; a missing chart does not end the session
			log.Printf("datalog: %v", err)
		}
	}
	return nil
}

// End closes the session file. It is a no-op without an open session.
func (l *Logger) End() error {
	if l.file == nil {
		return nil
	}
	l.csv.Flush()
	werr := l.csv.Error()
	cerr := l.file.Close()
	l.file = nil
	l.csv = nil

	if werr != nil {
		return fmt.Errorf("failed to flush log: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to close log: %w", cerr)
	}
	return nil
}

// Path returns the file of the open session, or "" between sessions.
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Session returns the id of the last session opened.
func (l *Logger) Session() string {
	return l.session
}

// ready creates the directory if needed and proves it is writable.
func (l *Logger) ready() error {
	if l.dir == "" {
		return errors.New("datalog: no log directory configured")
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("log directory unavailable: %w", err)
	}
	probe, err := os.CreateTemp(l.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("log directory not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

func (l *Logger) flush(row []string) error {
	l.csv.Write(row)
	l.csv.Flush()
	if err := l.csv.Error(); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	return nil
}

func (l *Logger) abort() {
	l.file.Close()
	os.Remove(l.file.Name())
	l.file = nil
	l.csv = nil
}

// NextNumber returns one more than the highest numbered CSV file in dir.
// Names that are not a number followed by .csv (any case) are ignored.
func NextNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list log directory: %w", err)
	}

	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, ".csv") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ext))
		if err != nil || n < 0 {
			continue
		}
		highest = max(highest, n)
	}
	return highest + 1, nil
}
