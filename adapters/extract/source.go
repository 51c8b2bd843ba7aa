package extract

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gooutlier/domain/outlier"
	"gooutlier/ports"
)

// CSVSource reads timestamp,value[,source] rows. A header row is skipped.
type CSVSource struct {
	reader        *csv.Reader
	defaultSource string
	line          int
}

var _ ports.PointSource = (*CSVSource)(nil)

// NewCSVSource reads from r; rows without a source column use defaultSource
func NewCSVSource(r io.Reader, defaultSource string) *CSVSource {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	return &CSVSource{reader: reader, defaultSource: defaultSource}
}

// Next returns the next point or io.EOF
func (s *CSVSource) Next(ctx context.Context) (outlier.DataPoint, error) {
	for {
		if err := ctx.Err(); err != nil {
			return outlier.DataPoint{}, err
		}
		record, err := s.reader.Read()
		if err != nil {
			return outlier.DataPoint{}, err
		}
		s.line++
		if len(record) < 2 {
			return outlier.DataPoint{}, fmt.Errorf("line %d: expected timestamp,value[,source]", s.line)
		}

		ts, tsErr := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		value, valueErr := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if tsErr != nil || valueErr != nil {
			if s.line == 1 {
				continue
			}
			return outlier.DataPoint{}, fmt.Errorf("line %d: %w", s.line, errors.Join(tsErr, valueErr))
		}

		source := s.defaultSource
		if len(record) > 2 && strings.TrimSpace(record[2]) != "" {
			source = strings.TrimSpace(record[2])
		}
		return outlier.NewDataPoint(ts, value, nil, source), nil
	}
}

// JSONLinesSource runs every line of r through an Extractor
type JSONLinesSource struct {
	scanner   *bufio.Scanner
	extractor *Extractor
	pending   []outlier.DataPoint
	line      int
}

var _ ports.PointSource = (*JSONLinesSource)(nil)

// NewJSONLinesSource reads newline-delimited JSON objects
func NewJSONLinesSource(r io.Reader, extractor *Extractor) *JSONLinesSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &JSONLinesSource{scanner: scanner, extractor: extractor}
}

// Next returns the next extracted point or io.EOF
func (s *JSONLinesSource) Next(ctx context.Context) (outlier.DataPoint, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return outlier.DataPoint{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return outlier.DataPoint{}, err
			}
			return outlier.DataPoint{}, io.EOF
		}
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		points, err := s.extractor.Extract([]byte(line))
		if err != nil {
			return outlier.DataPoint{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		s.pending = points
	}
	dp := s.pending[0]
	s.pending = s.pending[1:]
	return dp, nil
}
