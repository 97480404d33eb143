package config

import (
	"go-trip-pipeline/internal/metrics"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/pipeline"
	"go-trip-pipeline/internal/warehouse"
)

// Columns of the cleansed trip events, in parquet order.
var streamingColumns = []string{
	"trip_id", "pickup_datetime", "dropoff_datetime", "pulocationid", "dolocationid",
	"passenger_count", "fare_amount", "payment_type", "event_time", "received_time",
	"year", "month", "day", "hour",
}

// Columns shared by the yellow and green monthly files.
var batchBaseColumns = []string{
	"vendorid", "pickup_datetime", "dropoff_datetime", "store_and_fwd_flag", "ratecodeid",
	"pulocationid", "dolocationid", "passenger_count", "trip_distance", "fare_amount",
	"extra", "mta_tax", "tip_amount", "tolls_amount",
	"improvement_surcharge", "total_amount", "payment_type", "congestion_surcharge",
}

var batchNaturalKey = []string{"vendorid", "pickup_datetime", "pulocationid", "dolocationid"}

// StreamingDataset is the default dataset for cleansed trip events.
func StreamingDataset() model.Dataset {
	return model.Dataset{
		Name:           "trip_events",
		PipelineName:   "streaming_trip_events",
		PipelineType:   model.PipelineTypeStreaming,
		Database:       "trips",
		StagingTable:   "trip_events_staging",
		FinalTable:     "trip_events",
		StagingColumns: append([]string{}, streamingColumns...),
		Columns:        append([]string{}, streamingColumns...),
		Select: map[string]string{
			"pickup_datetime":  "CAST(s.pickup_datetime AS TIMESTAMP)",
			"dropoff_datetime": "CAST(s.dropoff_datetime AS TIMESTAMP)",
			"event_time":       "CAST(s.event_time AS TIMESTAMP)",
			"received_time":    "CAST(s.received_time AS TIMESTAMP)",
		},
		NaturalKey:             []string{"trip_id"},
		SourceFormat:           "parquet",
		ClearStagingAfterMerge: true,
	}
}

// BatchDatasets returns the monthly datasets keyed by cab type. Both merge
// into taxi_trip_data; columns a cab type does not carry are written NULL.
func BatchDatasets() map[string]model.Dataset {
	yellow := model.Dataset{
		Name:         "yellow_tripdata",
		PipelineName: "batch_yellow_tripdata",
		PipelineType: model.PipelineTypeBatch,
		Database:     "trips",
		StagingTable: "yellow_trip_data_staging",
		FinalTable:   "taxi_trip_data",
		Columns:      append(append([]string{}, batchBaseColumns...), "airport_fee", "ehail_fee", "trip_type", "cab_type"),
		Select: map[string]string{
			"ehail_fee": "NULL",
			"trip_type": "NULL",
			"cab_type":  "'yellow'",
		},
		NaturalKey:   append([]string{}, batchNaturalKey...),
		SourceFormat: "parquet",
	}
	green := model.Dataset{
		Name:         "green_tripdata",
		PipelineName: "batch_green_tripdata",
		PipelineType: model.PipelineTypeBatch,
		Database:     "trips",
		StagingTable: "green_trip_data_staging",
		FinalTable:   "taxi_trip_data",
		Columns:      append(append([]string{}, batchBaseColumns...), "ehail_fee", "trip_type", "airport_fee", "cab_type"),
		Select: map[string]string{
			"airport_fee": "NULL",
			"cab_type":    "'green'",
		},
		NaturalKey:   append([]string{}, batchNaturalKey...),
		SourceFormat: "parquet",
	}
	return map[string]model.Dataset{"yellow": yellow, "green": green}
}

// Default returns a configuration that runs locally: SQLite stores, a local
// source tree, an in-process DuckDB file and log-only alerts.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "go-trip-pipeline",
			Environment: "development",
			LogMode:     "dev",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "15s",
		},
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "data/pipeline.db",
		},
		Redis: RedisConfig{
			LedgerPrefix: "trip-pipeline:processed:",
			AlertChannel: "trip-pipeline-alerts",
		},
		Source: SourceConfig{
			Driver:     SourceLocal,
			LocalRoot:  "data/sink",
			Extensions: append([]string{}, pipeline.DefaultExtensions...),
			Lookback:   "5m",
		},
		Warehouse: WarehouseConfig{
			Config: warehouse.Config{
				Path:        "data/warehouse.duckdb",
				ApplySchema: true,
			},
			StatementTimeout: "15m",
			PollInitial:      "250ms",
			PollMax:          "5s",
			PollMultiplier:   2,
		},
		Notify: NotifyConfig{
			Channels: []string{"log"},
			Timeout:  "10s",
		},
		Sink: SinkConfig{
			Dir:       "data/sink",
			Workers:   4,
			BatchSize: 500,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: "5m",
		},
		Metrics:   metrics.Config{Enabled: true, Namespace: "trip_pipeline"},
		Streaming: StreamingDataset(),
		Batch: BatchConfig{
			Pattern:  pipeline.DefaultBatchPattern.String(),
			Datasets: BatchDatasets(),
		},
	}
}
