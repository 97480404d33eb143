package warehouse

import "strings"

// Streaming staging mirrors the cleansed parquet files; timestamps arrive as
// canonical strings and are cast during the merge.
const streamingSchema = `
CREATE TABLE IF NOT EXISTS trip_events_staging (
	trip_id          VARCHAR,
	pickup_datetime  VARCHAR,
	dropoff_datetime VARCHAR,
	pulocationid     BIGINT,
	dolocationid     BIGINT,
	passenger_count  BIGINT,
	fare_amount      DOUBLE,
	payment_type     BIGINT,
	event_time       VARCHAR,
	received_time    VARCHAR,
	year             INTEGER,
	month            INTEGER,
	day              INTEGER,
	hour             INTEGER
);

CREATE TABLE IF NOT EXISTS trip_events (
	trip_id          VARCHAR,
	pickup_datetime  TIMESTAMP,
	dropoff_datetime TIMESTAMP,
	pulocationid     BIGINT,
	dolocationid     BIGINT,
	passenger_count  BIGINT,
	fare_amount      DOUBLE,
	payment_type     BIGINT,
	event_time       TIMESTAMP,
	received_time    TIMESTAMP,
	year             INTEGER,
	month            INTEGER,
	day              INTEGER,
	hour             INTEGER
);
`

// Batch staging tables follow the column order of the monthly TLC files;
// they are filled positionally.
const batchSchema = `
CREATE TABLE IF NOT EXISTS yellow_trip_data_staging (
	vendorid              INTEGER,
	pickup_datetime       TIMESTAMP,
	dropoff_datetime      TIMESTAMP,
	passenger_count       DOUBLE,
	trip_distance         DOUBLE,
	ratecodeid            DOUBLE,
	store_and_fwd_flag    VARCHAR,
	pulocationid          INTEGER,
	dolocationid          INTEGER,
	payment_type          BIGINT,
	fare_amount           DOUBLE,
	extra                 DOUBLE,
	mta_tax               DOUBLE,
	tip_amount            DOUBLE,
	tolls_amount          DOUBLE,
	improvement_surcharge DOUBLE,
	total_amount          DOUBLE,
	congestion_surcharge  DOUBLE,
	airport_fee           DOUBLE
);

CREATE TABLE IF NOT EXISTS green_trip_data_staging (
	vendorid              INTEGER,
	pickup_datetime       TIMESTAMP,
	dropoff_datetime      TIMESTAMP,
	store_and_fwd_flag    VARCHAR,
	ratecodeid            DOUBLE,
	pulocationid          INTEGER,
	dolocationid          INTEGER,
	passenger_count       DOUBLE,
	trip_distance         DOUBLE,
	fare_amount           DOUBLE,
	extra                 DOUBLE,
	mta_tax               DOUBLE,
	tip_amount            DOUBLE,
	tolls_amount          DOUBLE,
	ehail_fee             DOUBLE,
	improvement_surcharge DOUBLE,
	total_amount          DOUBLE,
	payment_type          BIGINT,
	trip_type             DOUBLE,
	congestion_surcharge  DOUBLE
);

CREATE TABLE IF NOT EXISTS taxi_trip_data (
	vendorid              INTEGER,
	pickup_datetime       TIMESTAMP,
	dropoff_datetime      TIMESTAMP,
	store_and_fwd_flag    VARCHAR,
	ratecodeid            DOUBLE,
	pulocationid          INTEGER,
	dolocationid          INTEGER,
	passenger_count       DOUBLE,
	trip_distance         DOUBLE,
	fare_amount           DOUBLE,
	extra                 DOUBLE,
	mta_tax               DOUBLE,
	tip_amount            DOUBLE,
	tolls_amount          DOUBLE,
	improvement_surcharge DOUBLE,
	total_amount          DOUBLE,
	payment_type          BIGINT,
	congestion_surcharge  DOUBLE,
	airport_fee           DOUBLE,
	ehail_fee             DOUBLE,
	trip_type             DOUBLE,
	cab_type              VARCHAR
);
`

// SchemaStatements returns the DDL for every trip table, one statement per
// element.
func SchemaStatements() []string {
	var out []string
	for _, block := range []string{streamingSchema, batchSchema} {
		for _, s := range strings.Split(block, ";") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
