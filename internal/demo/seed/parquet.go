package seed

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

type EncodeResult struct {
	Data         []byte
	RecordCount  int64
	MinEventTime *time.Time
	MaxEventTime *time.Time
}

func EncodeEvents(events []Event) (EncodeResult, error) {
	if len(events) == 0 {
		return EncodeResult{}, fmt.Errorf("events are required")
	}

	var minTime, maxTime *time.Time
	for _, event := range events {
		eventTime := event.OccurredAt
		if minTime == nil || eventTime.Before(*minTime) {
			t := eventTime
			minTime = &t
		}
		if maxTime == nil || eventTime.After(*maxTime) {
			t := eventTime
			maxTime = &t
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Event](buf)
	if _, err := writer.Write(events); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:         buf.Bytes(),
		RecordCount:  int64(len(events)),
		MinEventTime: minTime,
		MaxEventTime: maxTime,
	}, nil
}
