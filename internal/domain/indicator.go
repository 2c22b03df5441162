package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var jsonNull = []byte("null")

// CountryKind tags which JSON shape the country field arrived in.
type CountryKind int

const (
	CountryMissing CountryKind = iota // null or absent
	CountryPlain                      // "Germany"
	CountryNested                     // {"id":"DE","value":"Germany"}
)

// CountryName is the decoded country field of an indicator record.
type CountryName struct {
	Kind CountryKind
	ID   string // ISO-2 id, nested form only
	Name string
}

// UnmarshalJSON resolves the plain-string and nested-object forms.
func (c *CountryName) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*c = CountryName{}
		return nil
	}

	switch data[0] {
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("decode country: %w", err)
		}
		*c = CountryName{Kind: CountryPlain, Name: name}
	case '{':
		var obj struct {
			ID    string  `json:"id"`
			Value *string `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("decode country: %w", err)
		}
		name := ""
		if obj.Value != nil {
			name = *obj.Value
		}
		*c = CountryName{Kind: CountryNested, ID: obj.ID, Name: name}
	default:
		return fmt.Errorf("decode country: unsupported value %s", snippet(data))
	}
	return nil
}

// Measurement is the raw value field of an indicator record. A measurement
// decoded from null, or never decoded at all, is not present.
type Measurement struct {
	raw json.RawMessage
}

// NewMeasurement wraps a JSON literal. Empty input or null yields a missing measurement.
func NewMeasurement(raw string) Measurement {
	var m Measurement
	_ = m.UnmarshalJSON([]byte(raw))
	return m
}

func (m *Measurement) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		m.raw = nil
		return nil
	}
	m.raw = append(m.raw[:0], data...)
	return nil
}

// Present reports whether the record carries a non-null value.
func (m Measurement) Present() bool {
	return len(m.raw) > 0
}

// Float64 coerces the measurement to a float. JSON numbers and numeric
// strings are accepted; anything else, including NaN and infinities, is an
// error.
func (m Measurement) Float64() (float64, error) {
	if !m.Present() {
		return 0, errors.New("value is missing")
	}

	s := string(m.raw)
	switch m.raw[0] {
	case '"':
		if err := json.Unmarshal(m.raw, &s); err != nil {
			return 0, fmt.Errorf("decode value: %w", err)
		}
		s = strings.TrimSpace(s)
	case '{', '[', 't', 'f':
		return 0, fmt.Errorf("value %s is not numeric", snippet(m.raw))
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not numeric", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %q is not finite", s)
	}
	return v, nil
}

// IndicatorRecord is one raw observation as returned by the source API,
// already projected to the fields the pipeline keeps.
type IndicatorRecord struct {
	CountryISO3 string
	Country     CountryName
	Date        string
	Value       Measurement
}

func (r *IndicatorRecord) UnmarshalJSON(data []byte) error {
	var wire struct {
		CountryISO3 *string         `json:"countryiso3code"`
		Country     CountryName     `json:"country"`
		Date        json.RawMessage `json:"date"`
		Value       Measurement     `json:"value"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	date, err := decodeDate(wire.Date)
	if err != nil {
		return err
	}

	*r = IndicatorRecord{
		Country: wire.Country,
		Date:    date,
		Value:   wire.Value,
	}
	if wire.CountryISO3 != nil {
		r.CountryISO3 = *wire.CountryISO3
	}
	return nil
}

// decodeDate accepts the year as a JSON string or number.
func decodeDate(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode date: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decode date: unsupported value %s", snippet(raw))
	}
	return n.String(), nil
}

// DecodeRecords decodes the data element of an API response. A null or
// empty element decodes to an empty, non-nil slice.
func DecodeRecords(raw json.RawMessage) ([]IndicatorRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return []IndicatorRecord{}, nil
	}

	var records []IndicatorRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if records == nil {
		records = []IndicatorRecord{}
	}
	return records, nil
}

// PageMeta is the pagination element of an API response. The API mixes
// numbers and numeric strings for these fields.
type PageMeta struct {
	Page        int
	Pages       int
	PerPage     int
	Total       int
	LastUpdated string
}

func (m *PageMeta) UnmarshalJSON(data []byte) error {
	var wire struct {
		Page        flexInt `json:"page"`
		Pages       flexInt `json:"pages"`
		PerPage     flexInt `json:"per_page"`
		Total       flexInt `json:"total"`
		LastUpdated string  `json:"lastupdated"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode page meta: %w", err)
	}
	*m = PageMeta{
		Page:        int(wire.Page),
		Pages:       int(wire.Pages),
		PerPage:     int(wire.PerPage),
		Total:       int(wire.Total),
		LastUpdated: wire.LastUpdated,
	}
	return nil
}

// Truncated reports whether the series spans more pages than were fetched.
func (m PageMeta) Truncated() bool {
	return m.Pages > 1
}

// Payload is a fetched API response: metadata plus the undecoded records.
type Payload struct {
	Meta    PageMeta
	Records json.RawMessage
}

type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected integer, got %s", snippet(data))
	}
	*n = flexInt(v)
	return nil
}

func snippet(b []byte) string {
	const limit = 64
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
