// Package store keeps the processed-record log: which recordings were
// ingested, the metric payloads computed from them and whether each payload
// has been accepted by the API.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mitch000001/hrv-sync/pkg/runalyze"
)

var ErrStoreIO = errors.New("processed-record store i/o")

type HRVPayload struct {
	runalyze.HRV
	SentToAPI bool `json:"sent_to_api"`
}

type RestingHRPayload struct {
	runalyze.HeartRateRest
	SentToAPI bool `json:"sent_to_api"`
}

// Record holds both payloads computed from one recording.
type Record struct {
	HRV       HRVPayload       `json:"hrv"`
	RestingHR RestingHRPayload `json:"resting_hr"`
}

// Body returns the API body for kind, without the delivery flag, and whether
// it was already delivered.
func (r Record) Body(kind runalyze.MetricKind) (interface{}, bool, error) {
	switch kind {
	case runalyze.KindHRV:
		return r.HRV.HRV, r.HRV.SentToAPI, nil
	case runalyze.KindRestingHR:
		return r.RestingHR.HeartRateRest, r.RestingHR.SentToAPI, nil
	}
	return nil, false, fmt.Errorf("unknown metric kind %q", kind)
}

func (r *Record) setDelivered(kind runalyze.MetricKind) error {
	switch kind {
	case runalyze.KindHRV:
		r.HRV.SentToAPI = true
	case runalyze.KindRestingHR:
		r.RestingHR.SentToAPI = true
	default:
		return fmt.Errorf("unknown metric kind %q", kind)
	}
	return nil
}

// Pending is one payload that still has to be delivered.
type Pending struct {
	Identity string
	Kind     runalyze.MetricKind
	Body     interface{}
}

// Store is a JSON file backed map from record identity to Record. It is not
// safe for concurrent use.
type Store struct {
	path    string
	records map[string]*Record
}

// Load reads the store at path. A missing file yields an empty store. A
// document that is not shaped like a store is rejected with ErrStoreIO.
func Load(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: map[string]*Record{},
	}
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrStoreIO, path, err)
	}
	defer file.Close()
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&s.records); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrStoreIO, path, err)
	}
	if s.records == nil {
		s.records = map[string]*Record{}
	}
	for id, r := range s.records {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: record %q: %w", ErrStoreIO, path, id, err)
		}
	}
	return s, nil
}

func (r *Record) validate() error {
	switch {
	case r == nil:
		return errors.New("empty entry")
	case r.HRV.DateTime == "":
		return errors.New("hrv payload without date_time")
	case r.RestingHR.DateTime == "":
		return errors.New("resting_hr payload without date_time")
	}
	return nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Len() int {
	return len(s.records)
}

func (s *Store) Has(identity string) bool {
	_, ok := s.records[identity]
	return ok
}

func (s *Store) Get(identity string) (Record, bool) {
	r, ok := s.records[identity]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Identities returns all record identities in ascending order.
func (s *Store) Identities() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Upsert replaces the entry for identity, delivery flags included.
func (s *Store) Upsert(identity string, r Record) {
	s.records[identity] = &r
}

// MarkDelivered flags a single payload as accepted by the API.
func (s *Store) MarkDelivered(identity string, kind runalyze.MetricKind) error {
	r, ok := s.records[identity]
	if !ok {
		return fmt.Errorf("unknown record %q", identity)
	}
	return r.setDelivered(kind)
}

// Pending lists undelivered payloads ordered by identity, then by
// runalyze.Kinds.
func (s *Store) Pending() []Pending {
	var pending []Pending
	for _, id := range s.Identities() {
		r := s.records[id]
		for _, kind := range runalyze.Kinds {
			body, sent, err := r.Body(kind)
			if err != nil || sent {
				continue
			}
			pending = append(pending, Pending{Identity: id, Kind: kind, Body: body})
		}
	}
	return pending
}

// Save rewrites the whole store. The new content is written to a temporary
// file next to the target and renamed over it.
func (s *Store) Save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrStoreIO, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".processed-*.json")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrStoreIO, err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod temp file: %w", ErrStoreIO, err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(s.records); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: encoding records: %w", ErrStoreIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", ErrStoreIO, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", ErrStoreIO, s.path, err)
	}
	return nil
}
