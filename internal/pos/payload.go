// Package pos models the point-of-sale export: the change-record envelope,
// its transaction payload and the line-item variants.
package pos

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Document is one root-level export record. Only the post-image ("after") is
// used downstream; every other field stays in the bronze snapshot.
type Document struct {
	After *Payload `json:"after"`
}

// Payload is the transaction-level body of a document. LineItem and
// ControlType are kept raw so control records are filtered before their line
// items are decoded.
type Payload struct {
	TransactionID       FlexString      `json:"TransactionID"`
	StoreID             FlexString      `json:"StoreID"`
	WorkstationID       FlexString      `json:"WorkstationID"`
	OperatorID          FlexString      `json:"OperatorID"`
	TenderDateTimestamp *EpochMillis    `json:"TenderDateTimestamp"`
	LineItem            json.RawMessage `json:"LineItem"`
	ControlType         json.RawMessage `json:"ControlType"`
}

// IsControl reports whether the payload carries a ControlType marker.
func (p *Payload) IsControl() bool {
	return !isNull(p.ControlType)
}

// HasLineItems reports whether LineItem is a non-empty array.
func (p *Payload) HasLineItems() bool {
	raw := bytes.TrimSpace(p.LineItem)
	if isNull(raw) || len(raw) == 0 || raw[0] != '[' {
		return false
	}
	return !bytes.Equal(bytes.Join(bytes.Fields(raw), nil), []byte("[]"))
}

// LineItems decodes the line-item sequence.
func (p *Payload) LineItems() ([]LineItem, error) {
	if !p.HasLineItems() {
		return nil, nil
	}
	var items []LineItem
	if err := json.Unmarshal(p.LineItem, &items); err != nil {
		return nil, fmt.Errorf("LineItem: %w", err)
	}
	return items, nil
}

// DecodeDocument parses a raw export document.
func DecodeDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FlexString is an identifier that the export encodes either as a JSON string
// or as a JSON number. null decodes to the empty string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		*f = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = FlexString(n.String())
		return nil
	default:
		return fmt.Errorf("identifier must be a string or number, got %s", truncate(data))
	}
}

func (f FlexString) String() string { return string(f) }

// EpochMillis is a millisecond Unix timestamp, accepted as a JSON number or a
// numeric string.
type EpochMillis int64

func (e *EpochMillis) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*e = EpochMillis(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("TenderDateTimestamp must be epoch milliseconds, got %s", truncate(data))
	}
	*e = EpochMillis(int64(f))
	return nil
}

// Int64Ptr returns the timestamp as *int64, nil for a nil receiver.
func (e *EpochMillis) Int64Ptr() *int64 {
	if e == nil {
		return nil
	}
	v := int64(*e)
	return &v
}

func isNull(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func truncate(raw []byte) string {
	const maxLen = 64
	if len(raw) > maxLen {
		return string(raw[:maxLen]) + "..."
	}
	return string(raw)
}
