package normalize

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding names a text encoding tried during detection.
type Encoding string

const (
	UTF8        Encoding = "utf-8"
	Latin1      Encoding = "iso-8859-1"
	Windows1252 Encoding = "windows-1252"
	Latin9      Encoding = "iso-8859-15"
)

// Encodings is the detection order.
var Encodings = []Encoding{UTF8, Latin1, Windows1252, Latin9}

// Separators is the detection order for field separators.
var Separators = []rune{',', ';', '\t'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var errUndecodable = errors.New("no encoding and separator produced a table")

// table is a decoded source file.
type table struct {
	encoding  Encoding
	separator rune
	header    []string
	rows      [][]string
}

func decode(raw []byte, enc Encoding) (string, error) {
	switch enc {
	case UTF8:
		raw = bytes.TrimPrefix(raw, utf8BOM)
		if !utf8.Valid(raw) {
			return "", errors.New("invalid utf-8")
		}
		return string(raw), nil
	case Latin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		return string(out), err
	case Windows1252:
		out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		return string(out), err
	case Latin9:
		out, err := charmap.ISO8859_15.NewDecoder().Bytes(raw)
		return string(out), err
	default:
		return "", fmt.Errorf("unknown encoding %q", enc)
	}
}

// detectTable tries every encoding and separator in order and returns the
// first combination giving more than one column and at least one data row.
func detectTable(raw []byte) (table, error) {
	for _, enc := range Encodings {
		text, err := decode(raw, enc)
		if err != nil {
			continue
		}
		for _, sep := range Separators {
			header, rows, err := readTable(text, sep)
			if err != nil {
				continue
			}
			return table{encoding: enc, separator: sep, header: header, rows: rows}, nil
		}
	}
	return table{}, errUndecodable
}

func readTable(text string, sep rune) ([]string, [][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if err != nil {
		return nil, nil, err
	}
	if len(header) <= 1 {
		return nil, nil, errors.New("single column")
	}
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(rec) > len(header) {
			return nil, nil, errors.New("row wider than header")
		}
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("no rows")
	}
	return header, rows, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
