package domain

// PhotoRecord — метаданные загруженной фотографии.
// ExternalImageID одновременно ключ объекта в хранилище, первичный ключ
// записи метаданных и ExternalImageId регистрации лица в коллекции.
type PhotoRecord struct {
	ExternalImageID string   `json:"ExternalImageId" dynamodbav:"ExternalImageId"`
	ImageURL        string   `json:"imageUrl" dynamodbav:"imageUrl"`
	Comments        []string `json:"comments" dynamodbav:"comments"`
	Topic           string   `json:"topic" dynamodbav:"topic"`
	PosterName      string   `json:"posterName" dynamodbav:"posterName"`
	Timestamp       string   `json:"timestamp" dynamodbav:"timestamp"`
}

// UploadRequest — типизированный запрос на индексацию фото.
type UploadRequest struct {
	ImageBytes []byte
	Filename   string
	Comment    string
	Topic      string
	PosterName string
}

// BoundingBox задаёт положение лица в долях от размеров изображения.
type BoundingBox struct {
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
	Left   float64 `json:"Left"`
	Top    float64 `json:"Top"`
}

// FaceRecord — лицо, зарегистрированное в коллекции.
type FaceRecord struct {
	FaceID          string      `json:"FaceId"`
	ExternalImageID string      `json:"ExternalImageId"`
	BoundingBox     BoundingBox `json:"BoundingBox"`
	Confidence      float64     `json:"Confidence"`
}

// IndexedFaces — ответ сервиса распознавания на регистрацию изображения.
type IndexedFaces struct {
	FaceRecords      []FaceRecord
	FaceModelVersion string
	UnindexedFaces   int
}

// IndexResult возвращается воркфлоу индексации.
type IndexResult struct {
	ExternalImageID  string       `json:"ExternalImageId"`
	ImageURL         string       `json:"imageUrl"`
	FaceRecords      []FaceRecord `json:"FaceRecords"`
	FaceModelVersion string       `json:"FaceModelVersion,omitempty"`
	UnindexedFaces   int          `json:"UnindexedFaces"`
}

// FaceMatch — совпадение лица из коллекции с пробным изображением.
// Не сохраняется, сразу разрешается в PhotoRecord.
type FaceMatch struct {
	ExternalImageID string
	FaceID          string
	Similarity      float64
	Confidence      float64
}
