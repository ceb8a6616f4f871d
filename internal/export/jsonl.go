package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// header is the first JSONL record written by EncodeJSONL.
type header struct {
	Version string `json:"version"`
	Type    string `json:"type"`
	Snapshot
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EncodeJSONL writes a header line followed by one line per row.
func EncodeJSONL(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{Version: "1", Type: "header", Snapshot: *snap}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for i, row := range snap.Items {
		if err := enc.Encode(record{Type: "row", Data: row}); err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	return nil
}

func marshalJSONL(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJSONL(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// objectName is the file or key name of a snapshot.
func objectName(snap *Snapshot) string {
	return fmt.Sprintf("%s-%s-%s.jsonl", snap.Screen, snap.TakenAt.Format("20060102T150405Z"), snap.ID)
}
