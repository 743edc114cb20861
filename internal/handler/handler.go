package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/domain"
	"github.com/GoArmGo/FaceShare/internal/messaging/payloads"
	"github.com/GoArmGo/FaceShare/internal/usecase"
)

// Сообщения клиенту. Текст ошибок воркфлоу наружу не отдается.
const (
	indexErrorMessage     = "An error occurred while indexing the faces."
	recognizeErrorMessage = "An error occurred while processing the image."
	missingFileMessage    = "No files provided"
	tooLargeMessage       = "Uploaded file is too large"
	busyMessage           = "Server is busy, try again later"
)

// Имена полей multipart-формы.
const (
	fieldFile       = "file"
	fieldComment    = "comment"
	fieldTopic      = "topic"
	fieldPosterName = "posterName"
)

// PhotoHandler — обработчик HTTP-запросов для индексации и поиска фото по лицу.
type PhotoHandler struct {
	photoUseCase    usecase.PhotoUseCase
	repairPublisher ports.PhotoRepairPublisher
	uploadLimiter   chan struct{}
	maxUploadBytes  int64
	matchDefaults   usecase.MatchOptions
	logger          *slog.Logger
}

// NewPhotoHandler создаёт новый экземпляр PhotoHandler.
// publisher и limiter могут быть nil: тогда повторная регистрация и ограничение параллельных загрузок отключены.
func NewPhotoHandler(
	uc usecase.PhotoUseCase,
	publisher ports.PhotoRepairPublisher,
	limiter chan struct{},
	maxUploadBytes int64,
	matchDefaults usecase.MatchOptions,
	logger *slog.Logger,
) *PhotoHandler {
	return &PhotoHandler{
		photoUseCase:    uc,
		repairPublisher: publisher,
		uploadLimiter:   limiter,
		maxUploadBytes:  maxUploadBytes,
		matchDefaults:   matchDefaults,
		logger:          logger,
	}
}

// respondWithJSON — отправляет JSON-ответ клиенту.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, logger *slog.Logger) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		logger.Error("failed to marshal JSON response", "error", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(response); err != nil {
		logger.Error("failed to write HTTP response", "error", err)
	}
}

// respondWithError — отправляет JSON-ответ с ошибкой.
func respondWithError(w http.ResponseWriter, code int, message string, logger *slog.Logger) {
	respondWithJSON(w, code, map[string]string{"error": message}, logger)
}

// statusForError: ошибки валидации — 400, всё остальное — 500.
func statusForError(err error) int {
	if errors.Is(err, domain.ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// acquire занимает слот загрузки. false — запрос отменен раньше, чем слот освободился.
func (h *PhotoHandler) acquire(ctx context.Context) (release func(), ok bool) {
	if h.uploadLimiter == nil {
		return func() {}, true
	}
	select {
	case h.uploadLimiter <- struct{}{}:
		return func() { <-h.uploadLimiter }, true
	case <-ctx.Done():
		return nil, false
	}
}

// readUpload читает multipart-форму и файл из поля file.
// Возвращает HTTP-статус и сообщение, если запрос некорректен.
func (h *PhotoHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, int, string) {
	if r.ContentLength > h.maxUploadBytes {
		return nil, "", http.StatusRequestEntityTooLarge, tooLargeMessage
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", http.StatusRequestEntityTooLarge, tooLargeMessage
		}
		h.logger.Warn("invalid multipart form", "error", err)
		return nil, "", http.StatusBadRequest, missingFileMessage
	}

	file, header, err := r.FormFile(fieldFile)
	if err != nil {
		h.logger.Warn("missing required form part", "part", fieldFile, "error", err)
		return nil, "", http.StatusBadRequest, missingFileMessage
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read uploaded file", "filename", header.Filename, "error", err)
		return nil, "", http.StatusBadRequest, missingFileMessage
	}
	return data, header.Filename, 0, ""
}

// IndexPhoto — POST /photos: загружает фото, сохраняет метаданные и регистрирует лица.
func (h *PhotoHandler) IndexPhoto(w http.ResponseWriter, r *http.Request) {
	release, ok := h.acquire(r.Context())
	if !ok {
		respondWithError(w, http.StatusServiceUnavailable, busyMessage, h.logger)
		return
	}
	defer release()

	data, filename, status, message := h.readUpload(w, r)
	if status != 0 {
		respondWithError(w, status, message, h.logger)
		return
	}

	req := domain.UploadRequest{
		ImageBytes: data,
		Filename:   filename,
		Comment:    r.FormValue(fieldComment),
		Topic:      r.FormValue(fieldTopic),
		PosterName: r.FormValue(fieldPosterName),
	}

	h.logger.Info("processing request", "endpoint", "IndexPhoto", "filename", filename, "size", len(data))

	result, err := h.photoUseCase.IndexPhoto(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to index photo", "filename", filename, "error", err)
		h.scheduleRepair(r.Context(), err)
		respondWithError(w, statusForError(err), indexErrorMessage, h.logger)
		return
	}

	respondWithJSON(w, http.StatusOK, result, h.logger)
}

// scheduleRepair публикует заявку на повторную регистрацию лиц,
// если объект и метаданные уже записаны, а регистрация не удалась.
func (h *PhotoHandler) scheduleRepair(ctx context.Context, err error) {
	if h.repairPublisher == nil {
		return
	}
	werr, ok := domain.AsWorkflowError(err)
	if !ok || werr.Op != domain.OpRegisterFaces || werr.ExternalID == "" {
		return
	}

	// запрос уже мог быть отменен, публикация от него не зависит
	payload := payloads.PhotoRepairPayload{ExternalImageID: werr.ExternalID, Reason: werr.Op}
	if pubErr := h.repairPublisher.PublishPhotoRepairRequest(context.WithoutCancel(ctx), payload); pubErr != nil {
		h.logger.Error("failed to publish repair request",
			"external_image_id", werr.ExternalID,
			"error", pubErr,
		)
	}
}

// RecognizeFaces — POST /faces/recognize: ищет фото, на которых есть лицо с пробного изображения.
func (h *PhotoHandler) RecognizeFaces(w http.ResponseWriter, r *http.Request) {
	opts, err := h.matchOptions(r)
	if err != nil {
		h.logger.Warn("invalid match parameters", "error", err)
		respondWithError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}

	probe, _, status, message := h.readUpload(w, r)
	if status != 0 {
		respondWithError(w, status, message, h.logger)
		return
	}

	photos, err := h.photoUseCase.MatchPhoto(r.Context(), probe, opts)
	if err != nil {
		h.logger.Error("failed to recognize faces", "error", err)
		respondWithError(w, statusForError(err), recognizeErrorMessage, h.logger)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string][]domain.PhotoRecord{"faces": photos}, h.logger)
}

// matchOptions читает необязательные max_results и threshold поверх значений по умолчанию.
func (h *PhotoHandler) matchOptions(r *http.Request) (usecase.MatchOptions, error) {
	opts := h.matchDefaults
	q := r.URL.Query()

	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > usecase.MaxMatchResults {
			return opts, fmt.Errorf("max_results must be an integer between 1 and %d", usecase.MaxMatchResults)
		}
		opts.MaxResults = n
	}
	if v := q.Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 100 {
			return opts, errors.New("threshold must be a number between 0 and 100")
		}
		opts.SimilarityThreshold = f
	}
	return opts, nil
}

// Health — GET /healthz.
func (h *PhotoHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}
