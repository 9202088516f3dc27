package record

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// FileNameLayout is the timestamp encoded in raw data file names,
	// e.g. "2024-03-07 21-43-06.txt".
	FileNameLayout = "2006-01-02 15-04-05"
	// DeliveryLayout is the timestamp format the Runalyze API expects.
	DeliveryLayout = "2006-01-02T15:04:05Z"
)

var ErrMalformedFileName = errors.New("malformed file name")

type ID struct {
	Identity string
	// Timestamp is the recording start in epoch seconds.
	Timestamp int64
}

// DateTime renders the timestamp for delivery.
func (id ID) DateTime() string {
	return FormatForDelivery(id.Timestamp)
}

// Identity strips directories and the extension from fileName.
func Identity(fileName string) string {
	base := filepath.Base(fileName)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// ParseTimestamp reads the recording time from the file name, interpreting
// it as wall clock time in loc.
func ParseTimestamp(fileName string, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.Local
	}
	name := Identity(fileName)
	t, err := time.ParseInLocation(FileNameLayout, name, loc)
	if err != nil {
		return 0, fmt.Errorf("%w: %q does not match %q", ErrMalformedFileName, name, FileNameLayout)
	}
	return t.Unix(), nil
}

// FormatForDelivery renders epoch seconds as UTC with second precision.
func FormatForDelivery(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).UTC().Format(DeliveryLayout)
}

func Parse(fileName string, loc *time.Location) (ID, error) {
	ts, err := ParseTimestamp(fileName, loc)
	if err != nil {
		return ID{}, err
	}
	return ID{Identity: Identity(fileName), Timestamp: ts}, nil
}
