package runalyze

import "fmt"

// MetricKind names one of the metrics the sync delivers. The value doubles as
// the key in the processed-record log.
type MetricKind string

const (
	KindHRV       MetricKind = "hrv"
	KindRestingHR MetricKind = "resting_hr"
)

// Kinds lists all metric kinds in delivery order.
var Kinds = []MetricKind{KindHRV, KindRestingHR}

// Path returns the endpoint path relative to the API base URL.
func (k MetricKind) Path() (string, error) {
	switch k {
	case KindHRV:
		return "/metrics/hrv", nil
	case KindRestingHR:
		return "/metrics/heartRateRest", nil
	}
	return "", fmt.Errorf("unknown metric kind %q", k)
}

// Sample:
//
//	{
//	    "date_time": "2024-03-07T21:43:06Z",
//	    "measurement_type": "awake",
//	    "rmssd": 11.180339887498949
//	}
type HRV struct {
	DateTime        string  `json:"date_time"`
	MeasurementType string  `json:"measurement_type"`
	RMSSD           float64 `json:"rmssd"`
}

// Sample:
//
//	{
//	    "date_time": "2024-03-08T05:52:35Z",
//	    "heart_rate": 73
//	}
type HeartRateRest struct {
	DateTime  string `json:"date_time"`
	HeartRate int    `json:"heart_rate"`
}
