package artifact

import (
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind tags the shape of a computed artifact.
type Kind string

const (
	KindTabular Kind = "tabular"
	KindImage   Kind = "image"
	KindOther   Kind = "other"
)

// Table is the tabular artifact payload.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Record is one computed artifact plus its kind tag. Value holds *Table for
// tabular, []byte for image, and a string for everything else.
type Record struct {
	Kind  Kind
	Value any
}

// Transcode renders a record into a text payload embeddable in a chat event:
// tabular becomes CSV, image becomes base64, anything else passes through.
func Transcode(rec Record) (string, error) {
	switch rec.Kind {
	case KindTabular:
		tbl, ok := rec.Value.(*Table)
		if !ok || tbl == nil {
			return "", errors.Errorf("tabular artifact has unexpected payload %T", rec.Value)
		}
		return EncodeTable(tbl)
	case KindImage:
		raw, ok := rec.Value.([]byte)
		if !ok {
			return "", errors.Errorf("image artifact has unexpected payload %T", rec.Value)
		}
		return base64.StdEncoding.EncodeToString(raw), nil
	default:
		switch v := rec.Value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return fmt.Sprintf("%v", rec.Value), nil
		}
	}
}

// EncodeTable serializes a table as CSV, header row first.
func EncodeTable(tbl *Table) (string, error) {
	if tbl == nil {
		return "", errors.New("table is nil")
	}
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if len(tbl.Columns) > 0 {
		if err := w.Write(tbl.Columns); err != nil {
			return "", errors.Wrap(err, "write header")
		}
	}
	for i, row := range tbl.Rows {
		if err := w.Write(row); err != nil {
			return "", errors.Wrapf(err, "write row %d", i)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Wrap(err, "flush csv")
	}
	return sb.String(), nil
}

// DecodeTable parses CSV text produced by EncodeTable back into a table.
func DecodeTable(text string) (*Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	if len(records) == 0 {
		return &Table{}, nil
	}
	return &Table{Columns: records[0], Rows: records[1:]}, nil
}

// DecodeImage reverses the image transcoding.
func DecodeImage(text string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, errors.Wrap(err, "decode base64")
	}
	return raw, nil
}
