// Package pipeline provides helpers for reading and writing price-record
// and index-point streams via stdin/stdout in JSONL format, the canonical
// pipe format.
//
// A price record line is flat and mirrors the scraper's product row:
//
//	{"gtin":"0001","seller":"shopa","sku":"m1","name":"Whole Milk","price":1.19,"observed_at":"2024-03-01T08:00:00Z"}
//
// price may also be a numeric string; observed_at may be RFC 3339, the
// space-separated SQL form, or a bare date.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/util"
)

// recordRow is the JSONL wire form of a price record.
type recordRow struct {
	GTIN       string      `json:"gtin,omitempty"`
	Seller     string      `json:"seller,omitempty"`
	SKU        string      `json:"sku,omitempty"`
	Name       string      `json:"name"`
	Price      interface{} `json:"price"`
	ObservedAt string      `json:"observed_at"`
}

// ReadRecords reads JSONL price records from r. Malformed lines are skipped
// and reported together as a *util.MultiError alongside the records that did
// parse; the caller decides whether that is fatal. I/O failures and empty
// input are returned as plain errors with no records.
func ReadRecords(r io.Reader) ([]model.PriceRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var (
		out  []model.PriceRecord
		bad  util.MultiError
		seen int
	)
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		seen++
		rec, err := DecodeRecord([]byte(line))
		if err != nil {
			bad.Add(fmt.Errorf("line %d: %w", lineNum, err))
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if seen == 0 {
		return nil, fmt.Errorf("no price records read from input (is stdin empty?)")
	}
	return out, bad.Err()
}

// DecodeRecord parses one price record in the wire form described in the
// package comment.
func DecodeRecord(data []byte) (model.PriceRecord, error) {
	var row recordRow
	if err := json.Unmarshal(data, &row); err != nil {
		return model.PriceRecord{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var price float64
	switch v := row.Price.(type) {
	case float64:
		if v < 0 {
			return model.PriceRecord{}, fmt.Errorf("negative price %g", v)
		}
		price = v
	case string:
		p, err := util.ParsePrice(v)
		if err != nil {
			return model.PriceRecord{}, err
		}
		price = p
	case nil:
		return model.PriceRecord{}, fmt.Errorf("missing price")
	default:
		return model.PriceRecord{}, fmt.Errorf("unexpected price type %T", row.Price)
	}

	ts, err := util.ParseTimestamp(row.ObservedAt)
	if err != nil {
		return model.PriceRecord{}, err
	}

	return model.PriceRecord{
		Variant: model.Variant{
			CatalogID: row.GTIN,
			Seller:    row.Seller,
			SKU:       row.SKU,
			Name:      row.Name,
		},
		Price:      price,
		ObservedAt: ts,
	}, nil
}

// WriteRecords writes records as JSONL to w.
func WriteRecords(w io.Writer, records []model.PriceRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		row := recordRow{
			GTIN:       r.Variant.CatalogID,
			Seller:     r.Variant.Seller,
			SKU:        r.Variant.SKU,
			Name:       r.Variant.Name,
			Price:      r.Price,
			ObservedAt: r.ObservedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// WritePoints writes an index series as JSONL {"date","value"} lines.
func WritePoints(w io.Writer, points []model.IndexPoint) error {
	enc := json.NewEncoder(w)
	for _, p := range points {
		if err := enc.Encode(pointRow{Date: util.FormatDate(p.Time), Value: p.Value}); err != nil {
			return err
		}
	}
	return nil
}

// pointRow is the JSONL wire form of an index point. Table-mode output
// carries the value as a rounded string, chart-mode output as a number.
type pointRow struct {
	Date  string      `json:"date"`
	Value interface{} `json:"value"`
}

// ReadPoints reads an index series from JSONL {"date","value"} lines, as
// written by WritePoints or `index --format jsonl`. Points are returned in
// input order; any malformed line is fatal.
func ReadPoints(r io.Reader) ([]model.IndexPoint, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var out []model.IndexPoint
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var row pointRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		t, err := util.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		var v float64
		switch val := row.Value.(type) {
		case float64:
			v = val
		case string:
			if v, err = strconv.ParseFloat(strings.TrimSpace(val), 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid value %q", lineNum, val)
			}
		default:
			return nil, fmt.Errorf("line %d: missing value", lineNum)
		}
		out = append(out, model.IndexPoint{Time: t, Value: v})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no index points read from input (is stdin empty?)")
	}
	return out, nil
}

// IsTTY returns true if the file is a terminal (not a pipe).
func IsTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
