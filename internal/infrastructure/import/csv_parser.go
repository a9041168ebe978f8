package csvimport

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pnv/catalog-sync/internal/domain/mapping"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const encodingCheckSize = 4096

// CSVParser reads a header-named, delimiter-separated product export.
type CSVParser struct {
	delimiter  rune
	lazyQuotes bool
	trimSpace  bool
	decoder    encoding.Encoding
	headers    []string
	headerSet  map[string]struct{}
	currentRow int
	totalRows  int
	reader     *csv.Reader
}

// ParserOption is a functional option for CSVParser configuration
type ParserOption func(*CSVParser)

// WithDelimiter sets the field delimiter (default is semicolon)
func WithDelimiter(d rune) ParserOption {
	return func(p *CSVParser) {
		p.delimiter = d
	}
}

// WithLazyQuotes enables lazy quote handling
func WithLazyQuotes(lazy bool) ParserOption {
	return func(p *CSVParser) {
		p.lazyQuotes = lazy
	}
}

// WithTrimSpace enables trimming of leading/trailing spaces from fields
func WithTrimSpace(trim bool) ParserOption {
	return func(p *CSVParser) {
		p.trimSpace = trim
	}
}

// WithEncoding decodes the input from a legacy single-byte encoding before parsing.
func WithEncoding(enc encoding.Encoding) ParserOption {
	return func(p *CSVParser) {
		p.decoder = enc
	}
}

// EncodingByName maps a configured encoding name to a decoder.
// UTF-8 returns nil, meaning no transcoding.
func EncodingByName(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1250", "cp1250":
		return charmap.Windows1250, nil
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, name)
}

// NewCSVParser creates a parser. The PNV export is semicolon separated, UTF-8
// with an optional byte order mark, and has whitespace around cells.
func NewCSVParser(r io.Reader, opts ...ParserOption) (*CSVParser, error) {
	parser := &CSVParser{
		delimiter:  ';',
		lazyQuotes: true,
		trimSpace:  true,
		headerSet:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(parser)
	}

	if parser.decoder != nil {
		r = transform.NewReader(r, parser.decoder.NewDecoder())
	}
	buf := bufio.NewReaderSize(r, encodingCheckSize)

	// UTF-8 BOM: 0xEF, 0xBB, 0xBF
	head, err := buf.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	if err := validateUTF8(buf); err != nil {
		return nil, err
	}

	parser.reader = csv.NewReader(buf)
	parser.reader.Comma = parser.delimiter
	parser.reader.LazyQuotes = parser.lazyQuotes
	parser.reader.TrimLeadingSpace = parser.trimSpace
	parser.reader.FieldsPerRecord = -1
	return parser, nil
}

// validateUTF8 checks the first block of content. A multi-byte rune cut at the
// block boundary is not treated as invalid.
func validateUTF8(r *bufio.Reader) error {
	content, err := r.Peek(encodingCheckSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return fmt.Errorf("failed to read file for encoding validation: %w", err)
	}
	if len(content) == 0 {
		return ErrEmptyFile
	}
	if len(content) == encodingCheckSize {
		for i := len(content) - 1; i >= 0 && i >= len(content)-utf8.UTFMax; i-- {
			if utf8.RuneStart(content[i]) {
				if !utf8.FullRune(content[i:]) {
					content = content[:i]
				}
				break
			}
		}
	}
	if !utf8.Valid(content) {
		return ErrInvalidEncoding
	}
	return nil
}

// ParseHeader reads and parses the header row
func (p *CSVParser) ParseHeader() error {
	record, err := p.reader.Read()
	if err == io.EOF {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	p.headers = make([]string, len(record))
	for i, h := range record {
		if p.trimSpace {
			h = strings.TrimSpace(h)
		}
		if _, dup := p.headerSet[h]; dup && h != "" {
			return &RowError{Row: 1, Column: h, Code: ErrCodeImportDuplicateHeader, Message: "duplicate header"}
		}
		p.headers[i] = h
		p.headerSet[h] = struct{}{}
	}
	p.currentRow = 1
	return nil
}

// Headers returns the parsed header names
func (p *CSVParser) Headers() []string {
	return p.headers
}

// HasHeader checks if a header exists
func (p *CSVParser) HasHeader(name string) bool {
	_, ok := p.headerSet[name]
	return ok
}

// RequireHeaders returns ErrMissingColumns listing every absent column.
func (p *CSVParser) RequireHeaders(required ...string) error {
	var missing []string
	for _, h := range required {
		if !p.HasHeader(h) {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

// Row represents a parsed CSV row with its line number
type Row struct {
	LineNumber int
	Data       mapping.Row
}

// IsEmpty returns true if the row has no non-empty values
func (r *Row) IsEmpty() bool {
	for _, v := range r.Data {
		if v != "" {
			return false
		}
	}
	return true
}

// ReadRow reads the next row from the CSV. Short rows get "" for missing cells.
func (p *CSVParser) ReadRow() (*Row, error) {
	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	p.currentRow++
	if err != nil {
		return nil, &RowError{Row: p.currentRow, Code: ErrCodeImportCSVParsing, Message: err.Error(), Err: err}
	}
	p.totalRows++

	row := &Row{LineNumber: p.currentRow, Data: make(mapping.Row, len(p.headers))}
	for i, header := range p.headers {
		value := ""
		if i < len(record) {
			value = record[i]
			if p.trimSpace {
				value = strings.TrimSpace(value)
			}
		}
		row.Data[header] = value
	}
	return row, nil
}

// ReadAllRows reads all remaining rows, skipping completely empty ones.
func (p *CSVParser) ReadAllRows() ([]mapping.Row, error) {
	var rows []mapping.Row
	for {
		row, err := p.ReadRow()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		if row.IsEmpty() {
			continue
		}
		rows = append(rows, row.Data)
	}
}

// CurrentRow returns the current row number (1-indexed)
func (p *CSVParser) CurrentRow() int {
	return p.currentRow
}

// TotalRows returns the total number of data rows read
func (p *CSVParser) TotalRows() int {
	return p.totalRows
}

// ReadProducts parses a whole export: header, required columns, then every
// non-empty row.
func ReadProducts(r io.Reader, required []string, opts ...ParserOption) ([]mapping.Row, error) {
	parser, err := NewCSVParser(r, opts...)
	if err != nil {
		return nil, err
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, err
	}
	if err := parser.RequireHeaders(required...); err != nil {
		return nil, err
	}
	return parser.ReadAllRows()
}
