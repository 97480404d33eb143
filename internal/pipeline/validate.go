package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/pkg/utils"
)

// RequiredFields must be present (and non-null) in every raw trip event.
var RequiredFields = []string{
	"trip_id",
	"pickup_datetime",
	"dropoff_datetime",
	"passenger_count",
	"fare_amount",
	"payment_type",
}

// Accepted timestamp layouts. Fractional seconds are accepted after the
// seconds field by time.Parse even though no layout spells them out.
var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
}

// Validator turns raw encoded trip events into canonical records.
type Validator struct {
	clock Clock
}

// NewValidator creates a validator; a nil clock uses the system clock.
func NewValidator(clock Clock) *Validator {
	if clock == nil {
		clock = SystemClock
	}
	return &Validator{clock: clock}
}

// Validate decodes one raw record. It never assumes a field is present and
// never returns a partially filled record alongside an error.
func (v *Validator) Validate(raw []byte) (model.TripRecord, error) {
	now := v.clock.Now().UTC()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return model.TripRecord{}, &ValidationError{Reason: "empty record"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		reason := "record is not a JSON object"
		if err != nil {
			reason += ": " + err.Error()
		}
		return model.TripRecord{}, &ValidationError{Reason: reason}
	}

	var missing []string
	for _, f := range RequiredFields {
		if !present(fields, f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return model.TripRecord{}, &ValidationError{Missing: missing}
	}

	tripID, err := stringField(fields, "trip_id")
	if err != nil {
		return model.TripRecord{}, err
	}
	pickup, err := timeField(fields, "pickup_datetime")
	if err != nil {
		return model.TripRecord{}, err
	}
	dropoff, err := timeField(fields, "dropoff_datetime")
	if err != nil {
		return model.TripRecord{}, err
	}
	passengers, err := intField(fields, "passenger_count")
	if err != nil {
		return model.TripRecord{}, err
	}
	fare, err := floatField(fields, "fare_amount")
	if err != nil {
		return model.TripRecord{}, err
	}
	payment, err := intField(fields, "payment_type")
	if err != nil {
		return model.TripRecord{}, err
	}
	pu, err := locationField(fields, "PULocationID", "pulocationid")
	if err != nil {
		return model.TripRecord{}, err
	}
	do, err := locationField(fields, "DOLocationID", "dolocationid")
	if err != nil {
		return model.TripRecord{}, err
	}

	eventTime := now
	if present(fields, "event_time") {
		eventTime, err = timeField(fields, "event_time")
		if err != nil {
			return model.TripRecord{}, err
		}
	}

	return model.TripRecord{
		TripID:          tripID,
		PickupDatetime:  pickup.Format(model.TimestampLayout),
		DropoffDatetime: dropoff.Format(model.TimestampLayout),
		PULocationID:    pu,
		DOLocationID:    do,
		PassengerCount:  passengers,
		FareAmount:      fare,
		PaymentType:     payment,
		EventTime:       eventTime.Format(model.TimestampLayout),
		ReceivedTime:    now.Format(model.TimestampLayout),
		Year:            pickup.Year(),
		Month:           int(pickup.Month()),
		Day:             pickup.Day(),
		Hour:            pickup.Hour(),
	}, nil
}

// ParseTimestamp parses any accepted timestamp layout and returns it in UTC.
// Values without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// NormalizeTimestamp parses s and renders it in the canonical layout.
func NormalizeTimestamp(s string) (string, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	return t.Format(model.TimestampLayout), nil
}

// PartitionKeysFor returns the sink-routing keys of a canonical record.
func PartitionKeysFor(rec model.TripRecord) model.PartitionKeys {
	return model.PartitionKeys{
		Year:  strconv.Itoa(rec.Year),
		Month: strconv.Itoa(rec.Month),
		Day:   strconv.Itoa(rec.Day),
		Hour:  strconv.Itoa(rec.Hour),
	}
}

func present(fields map[string]json.RawMessage, name string) bool {
	raw, ok := fields[name]
	if !ok {
		return false
	}
	return !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeValue(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	v, err := decodeValue(fields[name])
	if err != nil {
		return "", &ValidationError{Field: name, Reason: err.Error()}
	}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s, nil
		}
		return "", &ValidationError{Field: name, Reason: "must not be empty"}
	case json.Number:
		return t.String(), nil
	default:
		return "", &ValidationError{Field: name, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
}

func timeField(fields map[string]json.RawMessage, name string) (time.Time, error) {
	v, err := decodeValue(fields[name])
	if err != nil {
		return time.Time{}, &ValidationError{Field: name, Reason: err.Error()}
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, &ValidationError{Field: name, Reason: fmt.Sprintf("must be a timestamp string, got %T", v)}
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: name, Reason: err.Error()}
	}
	return t, nil
}

func floatField(fields map[string]json.RawMessage, name string) (float64, error) {
	v, err := decodeValue(fields[name])
	if err != nil {
		return 0, &ValidationError{Field: name, Reason: err.Error()}
	}
	f, ok := utils.Numeric(v)
	if !ok {
		return 0, &ValidationError{Field: name, Reason: fmt.Sprintf("must be numeric, got %v", v)}
	}
	return f, nil
}

func intField(fields map[string]json.RawMessage, name string) (int64, error) {
	f, err := floatField(fields, name)
	if err != nil {
		return 0, err
	}
	i, ok := utils.Integral(f)
	if !ok {
		return 0, &ValidationError{Field: name, Reason: fmt.Sprintf("must be an integer, got %v", f)}
	}
	return i, nil
}

// locationField reads an optional zone id under any of its accepted names,
// defaulting to model.LocationUnknown.
func locationField(fields map[string]json.RawMessage, names ...string) (int64, error) {
	for _, name := range names {
		if present(fields, name) {
			return intField(fields, name)
		}
	}
	return model.LocationUnknown, nil
}
