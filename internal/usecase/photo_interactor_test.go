package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoArmGo/FaceShare/internal/core/ports/mock"
	"github.com/GoArmGo/FaceShare/internal/domain"
)

var testWorkflowConfig = WorkflowConfig{
	BlobLocation:     "test-bucket",
	MetadataLocation: "photos",
	CollectionID:     "test-collection",
}

type testDeps struct {
	log        *mock.CallLog
	blobs      *mock.BlobStore
	metadata   *mock.MetadataStore
	recognizer *mock.FaceRecognizer
}

func newTestUseCase(t *testing.T) (*photoUseCase, *testDeps) {
	t.Helper()
	log := &mock.CallLog{}
	deps := &testDeps{
		log:        log,
		blobs:      mock.NewBlobStore(log),
		metadata:   mock.NewMetadataStore(log),
		recognizer: mock.NewFaceRecognizer(log),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := NewPhotoUseCase(deps.blobs, deps.metadata, deps.recognizer, testWorkflowConfig, logger).(*photoUseCase)
	return uc, deps
}

func validUpload() domain.UploadRequest {
	return domain.UploadRequest{
		ImageBytes: []byte("fake jpeg bytes"),
		Filename:   "A.jpg",
		Comment:    "nice",
		Topic:      "wedding",
		PosterName: "Alice",
	}
}

func TestIndexPhoto_Scenario(t *testing.T) {
	uc, deps := newTestUseCase(t)
	fixed := time.Date(2024, 5, 1, 10, 11, 12, 345_000_000, time.UTC)
	uc.now = func() time.Time { return fixed }

	result, err := uc.IndexPhoto(context.Background(), validUpload())
	if err != nil {
		t.Fatalf("IndexPhoto() error = %v", err)
	}

	wantCalls := []string{mock.CallPutObject, mock.CallSavePhoto, mock.CallIndexFaces}
	if got := deps.log.Calls(); !slices.Equal(got, wantCalls) {
		t.Errorf("calls = %v, want %v", got, wantCalls)
	}

	if !strings.HasPrefix(result.ExternalImageID, "A.jpg-") || !strings.HasSuffix(result.ExternalImageID, ".jpg") {
		t.Errorf("unexpected external id %q", result.ExternalImageID)
	}
	if !strings.Contains(result.ImageURL, "A.jpg-") || !strings.HasSuffix(result.ImageURL, result.ExternalImageID) {
		t.Errorf("unexpected image url %q", result.ImageURL)
	}
	if len(result.FaceRecords) != 1 {
		t.Errorf("expected 1 face record, got %d", len(result.FaceRecords))
	}

	rec, err := deps.metadata.GetPhoto(context.Background(), result.ExternalImageID)
	if err != nil {
		t.Fatalf("expected photo record, got error %v", err)
	}
	if rec.Topic != "wedding" || rec.PosterName != "Alice" {
		t.Errorf("unexpected record %+v", rec)
	}
	if !slices.Equal(rec.Comments, []string{"nice"}) {
		t.Errorf("expected comments [nice], got %v", rec.Comments)
	}
	if rec.Timestamp != "2024-05-01T10:11:12.345Z" {
		t.Errorf("unexpected timestamp %q", rec.Timestamp)
	}
	if rec.ImageURL != result.ImageURL {
		t.Errorf("record url %q differs from result url %q", rec.ImageURL, result.ImageURL)
	}

	if n, ok := deps.recognizer.Registered(result.ExternalImageID); !ok || n != 1 {
		t.Errorf("expected one registered face, got %d (registered=%v)", n, ok)
	}
	if deps.recognizer.LastCollectionID != "test-collection" {
		t.Errorf("expected collection test-collection, got %q", deps.recognizer.LastCollectionID)
	}
}

func TestIndexPhoto_ZeroFacesStillSucceeds(t *testing.T) {
	uc, deps := newTestUseCase(t)
	deps.recognizer.FacesPerImage = 0

	result, err := uc.IndexPhoto(context.Background(), validUpload())
	if err != nil {
		t.Fatalf("IndexPhoto() error = %v", err)
	}
	if len(result.FaceRecords) != 0 {
		t.Errorf("expected no face records, got %d", len(result.FaceRecords))
	}
	if _, err := deps.metadata.GetPhoto(context.Background(), result.ExternalImageID); err != nil {
		t.Errorf("expected photo record to exist, got %v", err)
	}
}

func TestIndexPhoto_FailurePolicy(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		setup     func(d *testDeps)
		wantKind  error
		wantOp    string
		wantCalls []string
	}{
		{
			name:      "blob write fails",
			setup:     func(d *testDeps) { d.blobs.PutError = boom },
			wantKind:  domain.ErrStorage,
			wantOp:    domain.OpPutBlob,
			wantCalls: []string{mock.CallPutObject},
		},
		{
			name:      "metadata write fails",
			setup:     func(d *testDeps) { d.metadata.SaveError = boom },
			wantKind:  domain.ErrStorage,
			wantOp:    domain.OpSaveMetadata,
			wantCalls: []string{mock.CallPutObject, mock.CallSavePhoto},
		},
		{
			name:      "face registration fails",
			setup:     func(d *testDeps) { d.recognizer.IndexError = boom },
			wantKind:  domain.ErrRecognition,
			wantOp:    domain.OpRegisterFaces,
			wantCalls: []string{mock.CallPutObject, mock.CallSavePhoto, mock.CallIndexFaces},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, deps := newTestUseCase(t)
			tt.setup(deps)

			result, err := uc.IndexPhoto(context.Background(), validUpload())
			if err == nil {
				t.Fatalf("expected error, got result %+v", result)
			}
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("expected kind %v, got %v", tt.wantKind, err)
			}
			if !errors.Is(err, boom) {
				t.Errorf("expected cause to be wrapped, got %v", err)
			}
			wfErr, ok := domain.AsWorkflowError(err)
			if !ok {
				t.Fatalf("expected WorkflowError, got %T", err)
			}
			if wfErr.Op != tt.wantOp {
				t.Errorf("expected op %q, got %q", tt.wantOp, wfErr.Op)
			}
			if wfErr.ExternalID == "" {
				t.Error("expected external id on error")
			}
			if got := deps.log.Calls(); !slices.Equal(got, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestIndexPhoto_BlobFailureLeavesNoRecord(t *testing.T) {
	uc, deps := newTestUseCase(t)
	deps.blobs.PutError = errors.New("bucket unavailable")

	if _, err := uc.IndexPhoto(context.Background(), validUpload()); err == nil {
		t.Fatal("expected error")
	}
	if deps.metadata.Len() != 0 {
		t.Errorf("expected no metadata records, got %d", deps.metadata.Len())
	}
}

func TestIndexPhoto_EmptyImageRejected(t *testing.T) {
	uc, deps := newTestUseCase(t)
	req := validUpload()
	req.ImageBytes = nil

	_, err := uc.IndexPhoto(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls := deps.log.Calls(); len(calls) != 0 {
		t.Errorf("expected no external calls, got %v", calls)
	}
}

func TestIndexPhoto_MissingFilename(t *testing.T) {
	uc, _ := newTestUseCase(t)
	req := validUpload()
	req.Filename = ""

	result, err := uc.IndexPhoto(context.Background(), req)
	if err != nil {
		t.Fatalf("IndexPhoto() error = %v", err)
	}
	if !strings.HasPrefix(result.ExternalImageID, defaultBaseName+"-") {
		t.Errorf("unexpected external id %q", result.ExternalImageID)
	}
}

func TestIndexPhoto_ConcurrentSameFilenameUnique(t *testing.T) {
	uc, deps := newTestUseCase(t)
	const n = 50

	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := uc.IndexPhoto(context.Background(), validUpload())
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = res.ExternalImageID
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for i, id := range ids {
		if errs[i] != nil {
			t.Fatalf("upload %d failed: %v", i, errs[i])
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate external id %q", id)
		}
		seen[id] = struct{}{}
	}
	if deps.metadata.Len() != n {
		t.Errorf("expected %d records, got %d", n, deps.metadata.Len())
	}
	if len(deps.blobs.Keys()) != n {
		t.Errorf("expected %d blobs, got %d", n, len(deps.blobs.Keys()))
	}
}

func addRecords(deps *testDeps, ids ...string) {
	for _, id := range ids {
		deps.metadata.AddPhoto(domain.PhotoRecord{
			ExternalImageID: id,
			ImageURL:        deps.blobs.ObjectURL(id),
			Comments:        []string{"c-" + id},
			Topic:           "topic",
			PosterName:      "poster",
			Timestamp:       "2024-01-01T00:00:00.000Z",
		})
	}
}

func recordIDs(photos []domain.PhotoRecord) []string {
	ids := make([]string, len(photos))
	for i, p := range photos {
		ids[i] = p.ExternalImageID
	}
	return ids
}

func TestMatchPhoto_SingleMatch(t *testing.T) {
	uc, deps := newTestUseCase(t)
	addRecords(deps, "A.jpg-1.jpg")
	deps.recognizer.Matches = []domain.FaceMatch{
		{ExternalImageID: "A.jpg-1.jpg", FaceID: "f1", Similarity: 85, Confidence: 99.5},
	}

	photos, err := uc.MatchPhoto(context.Background(), []byte("probe"), MatchOptions{MaxResults: 5, SimilarityThreshold: 70})
	if err != nil {
		t.Fatalf("MatchPhoto() error = %v", err)
	}
	if len(photos) != 1 || photos[0].ExternalImageID != "A.jpg-1.jpg" {
		t.Fatalf("unexpected photos %+v", photos)
	}
	if deps.recognizer.LastMaxFaces != 5 || deps.recognizer.LastThreshold != 70 {
		t.Errorf("unexpected search params max=%d threshold=%v", deps.recognizer.LastMaxFaces, deps.recognizer.LastThreshold)
	}
}

func TestMatchPhoto_NoMatchesReturnsEmpty(t *testing.T) {
	uc, _ := newTestUseCase(t)

	photos, err := uc.MatchPhoto(context.Background(), []byte("probe"), MatchOptions{})
	if err != nil {
		t.Fatalf("MatchPhoto() error = %v", err)
	}
	if photos == nil || len(photos) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", photos)
	}
}

func TestMatchPhoto_PreservesRankAndSkipsMisses(t *testing.T) {
	uc, deps := newTestUseCase(t)
	addRecords(deps, "p1", "p2", "p3", "p4")
	deps.metadata.Delete("p2")
	deps.metadata.GetErrors["p4"] = errors.New("throttled")
	// later-ranked lookups finish first
	deps.metadata.Delays["p1"] = 30 * time.Millisecond
	deps.metadata.Delays["p3"] = 10 * time.Millisecond

	deps.recognizer.Matches = []domain.FaceMatch{
		{ExternalImageID: "p1", Similarity: 99},
		{ExternalImageID: "p2", Similarity: 95},
		{ExternalImageID: "p3", Similarity: 90},
		{ExternalImageID: "p4", Similarity: 80},
		{ExternalImageID: "p5", Similarity: 75},
	}

	photos, err := uc.MatchPhoto(context.Background(), []byte("probe"), MatchOptions{})
	if err != nil {
		t.Fatalf("MatchPhoto() error = %v", err)
	}
	want := []string{"p1", "p3"}
	if got := recordIDs(photos); !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMatchPhoto_Idempotent(t *testing.T) {
	uc, deps := newTestUseCase(t)
	addRecords(deps, "a", "b", "c", "d", "e", "f", "g", "h", "i", "j")
	for i, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		deps.recognizer.Matches = append(deps.recognizer.Matches, domain.FaceMatch{ExternalImageID: id, Similarity: float64(100 - i)})
		deps.metadata.Delays[id] = time.Duration(10-i) * time.Millisecond
	}

	first, err := uc.MatchPhoto(context.Background(), []byte("probe"), MatchOptions{MaxResults: 10})
	if err != nil {
		t.Fatalf("MatchPhoto() error = %v", err)
	}
	for range 3 {
		again, err := uc.MatchPhoto(context.Background(), []byte("probe"), MatchOptions{MaxResults: 10})
		if err != nil {
			t.Fatalf("MatchPhoto() error = %v", err)
		}
		if !slices.Equal(recordIDs(first), recordIDs(again)) {
			t.Fatalf("results differ: %v vs %v", recordIDs(first), recordIDs(again))
		}
	}
}

func TestMatchPhoto_SearchFailureAborts(t *testing.T) {
	uc, deps := newTestUseCase(t)
	deps.recognizer.SearchError = errors.New("invalid image format")

	_, err := uc.MatchPhoto(context.Background(), []byte("probe"), MatchOptions{})
	if !errors.Is(err, domain.ErrRecognition) {
		t.Fatalf("expected recognition error, got %v", err)
	}
	if slices.Contains(deps.log.Calls(), mock.CallGetPhoto) {
		t.Error("expected no metadata lookups after failed search")
	}
}

func TestMatchPhoto_EmptyProbeRejected(t *testing.T) {
	uc, deps := newTestUseCase(t)

	_, err := uc.MatchPhoto(context.Background(), nil, MatchOptions{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls := deps.log.Calls(); len(calls) != 0 {
		t.Errorf("expected no external calls, got %v", calls)
	}
}

func TestMatchOptions_Normalized(t *testing.T) {
	tests := []struct {
		name string
		in   MatchOptions
		want MatchOptions
	}{
		{"defaults", MatchOptions{}, MatchOptions{MaxResults: 5, SimilarityThreshold: 70}},
		{"negative", MatchOptions{MaxResults: -1, SimilarityThreshold: -5}, MatchOptions{MaxResults: 5, SimilarityThreshold: 70}},
		{"clamped threshold", MatchOptions{MaxResults: 3, SimilarityThreshold: 150}, MatchOptions{MaxResults: 3, SimilarityThreshold: 100}},
		{"kept", MatchOptions{MaxResults: 10, SimilarityThreshold: 90}, MatchOptions{MaxResults: 10, SimilarityThreshold: 90}},
		{"max results at limit", MatchOptions{MaxResults: MaxMatchResults, SimilarityThreshold: 90}, MatchOptions{MaxResults: MaxMatchResults, SimilarityThreshold: 90}},
		{"clamped max results", MatchOptions{MaxResults: 1<<32 + 1, SimilarityThreshold: 90}, MatchOptions{MaxResults: MaxMatchResults, SimilarityThreshold: 90}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.normalized(); got != tt.want {
				t.Errorf("normalized() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRepairPhoto(t *testing.T) {
	t.Run("re-registers stored photo", func(t *testing.T) {
		uc, deps := newTestUseCase(t)
		deps.recognizer.IndexError = errors.New("collection unreachable")
		_, err := uc.IndexPhoto(context.Background(), validUpload())
		wfErr, ok := domain.AsWorkflowError(err)
		if !ok {
			t.Fatalf("expected WorkflowError, got %v", err)
		}

		deps.recognizer.IndexError = nil
		faces, err := uc.RepairPhoto(context.Background(), wfErr.ExternalID)
		if err != nil {
			t.Fatalf("RepairPhoto() error = %v", err)
		}
		if len(faces.FaceRecords) != 1 {
			t.Errorf("expected 1 face, got %d", len(faces.FaceRecords))
		}
		if _, ok := deps.recognizer.Registered(wfErr.ExternalID); !ok {
			t.Error("expected photo to be registered")
		}
	})

	t.Run("already registered faces are not duplicated", func(t *testing.T) {
		uc, deps := newTestUseCase(t)
		deps.recognizer.IndexError = errors.New("timeout after commit")
		_, err := uc.IndexPhoto(context.Background(), validUpload())
		wfErr, ok := domain.AsWorkflowError(err)
		if !ok {
			t.Fatalf("expected WorkflowError, got %v", err)
		}

		deps.recognizer.IndexError = nil
		deps.recognizer.Matches = []domain.FaceMatch{
			{ExternalImageID: "someone-else.jpg", FaceID: "f0", Similarity: 99.9},
			{ExternalImageID: wfErr.ExternalID, FaceID: "f1", Similarity: 99.8, Confidence: 99},
		}
		faces, err := uc.RepairPhoto(context.Background(), wfErr.ExternalID)
		if err != nil {
			t.Fatalf("RepairPhoto() error = %v", err)
		}
		if len(faces.FaceRecords) != 1 || faces.FaceRecords[0].FaceID != "f1" {
			t.Errorf("expected existing face f1, got %+v", faces.FaceRecords)
		}
		if _, ok := deps.recognizer.Registered(wfErr.ExternalID); ok {
			t.Error("expected no second registration")
		}
	})

	t.Run("check failure still registers", func(t *testing.T) {
		uc, deps := newTestUseCase(t)
		addRecords(deps, "a.jpg-1.jpg")
		if err := deps.blobs.PutObject(context.Background(), "a.jpg-1.jpg", []byte("img")); err != nil {
			t.Fatal(err)
		}
		deps.recognizer.SearchError = errors.New("throttled")

		if _, err := uc.RepairPhoto(context.Background(), "a.jpg-1.jpg"); err != nil {
			t.Fatalf("RepairPhoto() error = %v", err)
		}
		if _, ok := deps.recognizer.Registered("a.jpg-1.jpg"); !ok {
			t.Error("expected photo to be registered")
		}
	})

	t.Run("missing record", func(t *testing.T) {
		uc, deps := newTestUseCase(t)
		_, err := uc.RepairPhoto(context.Background(), "gone.jpg-1.jpg")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if slices.Contains(deps.log.Calls(), mock.CallIndexFaces) {
			t.Error("expected no registration for missing record")
		}
	})

	t.Run("missing blob", func(t *testing.T) {
		uc, deps := newTestUseCase(t)
		addRecords(deps, "orphan.jpg-1.jpg")
		_, err := uc.RepairPhoto(context.Background(), "orphan.jpg-1.jpg")
		if !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("expected storage error, got %v", err)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		uc, _ := newTestUseCase(t)
		if _, err := uc.RepairPhoto(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func TestIndexPhoto_KeyIsURLSafe(t *testing.T) {
	uc, _ := newTestUseCase(t)
	req := validUpload()
	req.Filename = "мой отпуск/фото #1?.JPG"

	result, err := uc.IndexPhoto(context.Background(), req)
	if err != nil {
		t.Fatalf("IndexPhoto() error = %v", err)
	}
	if !keyPattern.MatchString(result.ExternalImageID) {
		t.Errorf("external id %q contains unsafe characters", result.ExternalImageID)
	}
	if !strings.HasSuffix(result.ExternalImageID, ".JPG") {
		t.Errorf("expected original extension, got %q", result.ExternalImageID)
	}
}
