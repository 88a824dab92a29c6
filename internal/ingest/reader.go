package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"golang.org/x/text/encoding/charmap"
)

// ErrUnreadableFile means no candidate encoding produced text containing a
// known delimiter. Raised for empty, binary or non-CSV input; aborts the run.
var ErrUnreadableFile = errors.New("unreadable or empty file")

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Reader parses YooKassa CSV exports into Records, tolerating encoding and
// delimiter variance. The zero value is usable; Log enables header hints.
type Reader struct {
	Log *log.Logger
}

// ReadFile reads and parses the export at path.
func (r *Reader) ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return r.Read(data)
}

// Read parses raw export bytes. Output preserves input row order. Rows
// missing payment id, date or amount are dropped; this is documented
// YooKassa behavior for summary/footer rows, not an error.
func (r *Reader) Read(data []byte) ([]Record, error) {
	text, err := decodeExport(data)
	if err != nil {
		return nil, err
	}

	delim := byte(',')
	if strings.ContainsRune(text, ';') {
		delim = ';'
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = rune(delim)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, ErrUnreadableFile
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF"))
	}

	cols := map[field]int{}
	for f := fieldPaymentID; f <= fieldMethod; f++ {
		cols[f] = resolveColumn(header, f)
	}
	r.hintMissing(header, cols)

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if r.Log != nil {
				r.Log.Warn("skipping malformed row", "err", err)
			}
			continue
		}
		get := func(f field) string {
			idx := cols[f]
			if idx < 0 || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		rec := Record{
			PaymentID:   get(fieldPaymentID),
			RawPaidAt:   get(fieldPaidAt),
			Status:      get(fieldStatus),
			RawAmount:   get(fieldAmount),
			Description: get(fieldDescription),
			Method:      get(fieldMethod),
		}
		if allBlank(row) {
			continue
		}
		if rec.PaymentID == "" || rec.RawPaidAt == "" || rec.RawAmount == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// hintMissing logs a "did you mean" suggestion when a required column did
// not resolve, which usually means a renamed or misspelled export header.
func (r *Reader) hintMissing(header []string, cols map[field]int) {
	if r.Log == nil {
		return
	}
	required := map[field]string{
		fieldPaymentID: "payment id",
		fieldPaidAt:    "payment date",
		fieldAmount:    "amount",
	}
	for f, name := range required {
		if cols[f] >= 0 {
			continue
		}
		if s := suggestHeader(header, f); s != "" {
			r.Log.Warn("required column not found", "field", name, "closest_header", s)
		} else {
			r.Log.Warn("required column not found", "field", name)
		}
	}
}

// decodeExport tries a fixed ordered list of encodings until one decodes
// and the result contains a candidate delimiter.
func decodeExport(data []byte) (string, error) {
	decoders := []func([]byte) (string, bool){
		decodeUTF8Sig,
		decodeWindows1251,
		decodeUTF8,
	}
	for _, dec := range decoders {
		text, ok := dec(data)
		if ok && text != "" && strings.ContainsAny(text, ";,") {
			return text, nil
		}
	}
	return "", ErrUnreadableFile
}

func decodeUTF8Sig(data []byte) (string, bool) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func decodeUTF8(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func decodeWindows1251(data []byte) (string, bool) {
	out, err := charmap.Windows1251.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	return string(out), true
}

func allBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
