// Package mock provides in-memory implementations of the ports interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoArmGo/FaceShare/internal/domain"
)

// CallLog records the order of calls across several mocks.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Add appends a call name.
func (l *CallLog) Add(name string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

const (
	CallPutObject  = "blob.put"
	CallGetObject  = "blob.get"
	CallSavePhoto  = "metadata.save"
	CallGetPhoto   = "metadata.get"
	CallIndexFaces = "recognizer.index"
	CallSearch     = "recognizer.search"
)

// BlobStore is a mock implementation of ports.BlobStore
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	BaseURL string
	Log     *CallLog

	// Error injection
	PutError error
	GetError error
}

// NewBlobStore creates a new mock blob store
func NewBlobStore(log *CallLog) *BlobStore {
	return &BlobStore{
		objects: make(map[string][]byte),
		BaseURL: "https://test-bucket.s3.amazonaws.com",
		Log:     log,
	}
}

func (m *BlobStore) PutObject(ctx context.Context, key string, data []byte) error {
	m.Log.Add(CallPutObject)
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *BlobStore) ObjectURL(key string) string {
	return m.BaseURL + "/" + key
}

func (m *BlobStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	m.Log.Add(CallGetObject)
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

// Keys returns the stored object keys
func (m *BlobStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// MetadataStore is a mock implementation of ports.MetadataStore
type MetadataStore struct {
	mu      sync.RWMutex
	records map[string]domain.PhotoRecord

	Log *CallLog

	// Error injection
	SaveError error
	GetError  error
	GetErrors map[string]error

	// Delays slows down GetPhoto per key to shuffle completion order
	Delays map[string]time.Duration
}

// NewMetadataStore creates a new mock metadata store
func NewMetadataStore(log *CallLog) *MetadataStore {
	return &MetadataStore{
		records:   make(map[string]domain.PhotoRecord),
		GetErrors: make(map[string]error),
		Delays:    make(map[string]time.Duration),
		Log:       log,
	}
}

// AddPhoto adds a record directly, bypassing SaveError
func (m *MetadataStore) AddPhoto(rec domain.PhotoRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ExternalImageID] = rec
}

// Delete removes a record, simulating an external deletion
func (m *MetadataStore) Delete(externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, externalID)
}

// Len returns the number of stored records
func (m *MetadataStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MetadataStore) SavePhoto(ctx context.Context, photo *domain.PhotoRecord) error {
	m.Log.Add(CallSavePhoto)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.AddPhoto(*photo)
	return nil
}

func (m *MetadataStore) GetPhoto(ctx context.Context, externalID string) (*domain.PhotoRecord, error) {
	m.Log.Add(CallGetPhoto)
	m.mu.RLock()
	delay := m.Delays[externalID]
	keyErr := m.GetErrors[externalID]
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.GetError != nil {
		return nil, m.GetError
	}
	if keyErr != nil {
		return nil, keyErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[externalID]
	if !ok {
		return nil, fmt.Errorf("get photo %s: %w", externalID, domain.ErrNotFound)
	}
	return &rec, nil
}

// FaceRecognizer is a mock implementation of ports.FaceRecognizer
type FaceRecognizer struct {
	mu            sync.RWMutex
	registrations map[string]int

	Log *CallLog

	// FacesPerImage is the number of faces IndexFaces reports
	FacesPerImage int
	// Matches is returned by SearchFacesByImage as is
	Matches []domain.FaceMatch

	// Error injection
	IndexError  error
	SearchError error

	// Last search parameters
	LastCollectionID string
	LastMaxFaces     int
	LastThreshold    float64
}

// NewFaceRecognizer creates a new mock recognizer reporting one face per image
func NewFaceRecognizer(log *CallLog) *FaceRecognizer {
	return &FaceRecognizer{
		registrations: make(map[string]int),
		FacesPerImage: 1,
		Log:           log,
	}
}

// Registered returns how many faces were registered under externalID
func (m *FaceRecognizer) Registered(externalID string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.registrations[externalID]
	return n, ok
}

func (m *FaceRecognizer) IndexFaces(ctx context.Context, collectionID string, image []byte, externalID string) (*domain.IndexedFaces, error) {
	m.Log.Add(CallIndexFaces)
	if m.IndexError != nil {
		return nil, m.IndexError
	}

	m.mu.Lock()
	m.LastCollectionID = collectionID
	m.registrations[externalID] += m.FacesPerImage
	m.mu.Unlock()

	result := &domain.IndexedFaces{FaceModelVersion: "7.0"}
	for i := range m.FacesPerImage {
		result.FaceRecords = append(result.FaceRecords, domain.FaceRecord{
			FaceID:          fmt.Sprintf("%s-face-%d", externalID, i),
			ExternalImageID: externalID,
			BoundingBox:     domain.BoundingBox{Width: 0.2, Height: 0.3, Left: 0.1, Top: 0.1},
			Confidence:      99.9,
		})
	}
	return result, nil
}

func (m *FaceRecognizer) SearchFacesByImage(ctx context.Context, collectionID string, image []byte, maxFaces int, threshold float64) ([]domain.FaceMatch, error) {
	m.Log.Add(CallSearch)
	m.mu.Lock()
	m.LastCollectionID = collectionID
	m.LastMaxFaces = maxFaces
	m.LastThreshold = threshold
	m.mu.Unlock()

	if m.SearchError != nil {
		return nil, m.SearchError
	}
	return append([]domain.FaceMatch(nil), m.Matches...), nil
}
