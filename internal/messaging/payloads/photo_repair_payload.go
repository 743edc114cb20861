package payloads

// PhotoRepairPayload — задача на повторную регистрацию лиц фото в коллекции.
type PhotoRepairPayload struct {
	ExternalImageID string `json:"external_image_id"`
	Reason          string `json:"reason,omitempty"`
}
