// Package sink contains destinations for sweep samples: data files, an
// in-memory buffer for live plots, and Prometheus gauges.
package sink

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/cryosweep/sweep"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Columns are the data columns of a CSV file
var Columns = []string{"Temperature (K)", "Resistance (ohm)"}

// CSV writes samples to a comma separated file.  The file begins with the
// run settings as YAML in comment lines, then a header row.  Every row is
// flushed as it is written so a crash loses nothing.
type CSV struct {
	mu sync.Mutex
	w  *csv.Writer
	c  io.Closer
}

// NewCSV writes the header to w and returns a CSV that appends rows to it
func NewCSV(w io.Writer, settings sweep.Settings) (*CSV, error) {
	hdr, err := yaml.Marshal(settings)
	if err != nil {
		return nil, errors.Wrap(err, "sink: encoding settings")
	}
	bw := bufio.NewWriter(w)
	bw.WriteString("# Parameters:\n")
	for _, line := range strings.Split(strings.TrimRight(string(hdr), "\n"), "\n") {
		bw.WriteString("# " + line + "\n")
	}
	if err := bw.Flush(); err != nil {
		return nil, errors.Wrap(err, "sink: writing header")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return nil, errors.Wrap(err, "sink: writing header")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, errors.Wrap(err, "sink: writing header")
	}
	c := &CSV{w: cw}
	if closer, ok := w.(io.Closer); ok {
		c.c = closer
	}
	return c, nil
}

// CreateCSV creates the file at path and writes the header to it
func CreateCSV(path string, settings sweep.Settings) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "sink: creating %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "sink: creating %s", path)
	}
	c, err := NewCSV(f, settings)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// Emit appends one row
func (c *CSV) Emit(s sweep.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := []string{
		strconv.FormatFloat(s.Temperature, 'g', -1, 64),
		strconv.FormatFloat(s.Value, 'g', -1, 64),
	}
	if err := c.w.Write(row); err != nil {
		return errors.Wrap(err, "sink: writing row")
	}
	c.w.Flush()
	return errors.Wrap(c.w.Error(), "sink: writing row")
}

// Close closes the underlying file, if there is one
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if c.c == nil {
		return c.w.Error()
	}
	return c.c.Close()
}

// UniqueFilename returns the first of dir/<prefix><date>_1.csv,
// dir/<prefix><date>_2.csv, ... that does not exist
func UniqueFilename(dir, prefix string, now time.Time) string {
	base := filepath.Join(dir, prefix+now.Format("2006-01-02"))
	for i := 1; ; i++ {
		fn := fmt.Sprintf("%s_%d.csv", base, i)
		if _, err := os.Stat(fn); os.IsNotExist(err) {
			return fn
		}
	}
}
