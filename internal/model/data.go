package model

import "time"

// TimestampLayout is the single normalized timestamp format of canonical
// records. Values are always UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// LocationUnknown is written when a pickup or dropoff zone is absent.
const LocationUnknown = -1

// TripRecord is the canonical, fixed-schema form of one trip event. Field
// order is the encoded column order.
type TripRecord struct {
	TripID          string  `json:"trip_id" parquet:"trip_id"`
	PickupDatetime  string  `json:"pickup_datetime" parquet:"pickup_datetime"`
	DropoffDatetime string  `json:"dropoff_datetime" parquet:"dropoff_datetime"`
	PULocationID    int64   `json:"pulocationid" parquet:"pulocationid"`
	DOLocationID    int64   `json:"dolocationid" parquet:"dolocationid"`
	PassengerCount  int64   `json:"passenger_count" parquet:"passenger_count"`
	FareAmount      float64 `json:"fare_amount" parquet:"fare_amount"`
	PaymentType     int64   `json:"payment_type" parquet:"payment_type"`
	EventTime       string  `json:"event_time" parquet:"event_time"`
	ReceivedTime    string  `json:"received_time" parquet:"received_time"`
	Year            int     `json:"year" parquet:"year"`
	Month           int     `json:"month" parquet:"month"`
	Day             int     `json:"day" parquet:"day"`
	Hour            int     `json:"hour" parquet:"hour"`
}

// PartitionKeys are the sink-routing keys derived from the pickup time.
type PartitionKeys struct {
	Year  string `json:"year"`
	Month string `json:"month"`
	Day   string `json:"day"`
	Hour  string `json:"hour"`
}

// Cleansing results.
const (
	ResultOk               = "Ok"
	ResultProcessingFailed = "ProcessingFailed"
)

// CleanseInput is one opaque record handed to the cleansing boundary.
type CleanseInput struct {
	RecordID string `json:"recordId"`
	Data     []byte `json:"data"`
}

// CleanseOutput is the tagged result for one CleanseInput. Ok carries the
// encoded canonical record; ProcessingFailed carries the original payload
// untouched so the record can be replayed.
type CleanseOutput struct {
	RecordID string       `json:"recordId"`
	Result   string       `json:"result"`
	Data     []byte       `json:"data"`
	Metadata *CleanseMeta `json:"metadata,omitempty"`
	Record   *TripRecord  `json:"-"`
	Reason   string       `json:"-"`
}

// EncodedRecord is a CleanseInput as delivered over HTTP: data is base64 text
// and is decoded per record.
type EncodedRecord struct {
	RecordID string `json:"recordId"`
	Data     string `json:"data"`
}

// EncodedOutput is the HTTP form of a CleanseOutput. Ok data is base64 of
// the encoded record; ProcessingFailed data is the string that was sent.
type EncodedOutput struct {
	RecordID string       `json:"recordId"`
	Result   string       `json:"result"`
	Data     string       `json:"data"`
	Metadata *CleanseMeta `json:"metadata,omitempty"`
}

// CleanseMeta carries routing metadata for successfully cleansed records.
type CleanseMeta struct {
	PartitionKeys PartitionKeys `json:"partitionKeys"`
}

// SourceObject is one unit of batch-ingestible data in object storage.
type SourceObject struct {
	Key          string    `json:"key"`
	URI          string    `json:"uri"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
}
