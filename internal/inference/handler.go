package inference

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/followup/followup/internal/features"
	"github.com/followup/followup/internal/generator"
)

// TestResult is one blood test in a prediction request. On the wire
// each metric travels as three flat fields: the value plus its
// reference bounds, e.g. hemoglobin, hemoglobinMin, hemoglobinMax.
type TestResult struct {
	TestID   string
	TestDate string
	Values   map[string]float64
	Ranges   generator.RangeSet
}

func (t *TestResult) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["testId"].(string); ok {
		t.TestID = v
	}
	if v, ok := raw["testDate"].(string); ok {
		t.TestDate = v
	}
	t.Values = map[string]float64{}
	t.Ranges = generator.RangeSet{}
	for _, metric := range features.Metrics {
		if v, ok := raw[metric].(float64); ok {
			t.Values[metric] = v
		}
		lo, hasLo := raw[metric+"Min"].(float64)
		hi, hasHi := raw[metric+"Max"].(float64)
		if hasLo && hasHi {
			t.Ranges[metric] = generator.ReferenceRange{Min: lo, Max: hi}
		}
	}
	return nil
}

func (t TestResult) MarshalJSON() ([]byte, error) {
	raw := map[string]interface{}{
		"testId":   t.TestID,
		"testDate": t.TestDate,
	}
	for metric, v := range t.Values {
		raw[metric] = v
	}
	for metric, r := range t.Ranges {
		raw[metric+"Min"] = r.Min
		raw[metric+"Max"] = r.Max
	}
	return json.Marshal(raw)
}

// PatientPayload is the patient portion of a prediction request.
type PatientPayload struct {
	PatientID string       `json:"patientId"`
	Age       int          `json:"age"`
	Gender    string       `json:"gender"`
	Tests     []TestResult `json:"tests"`
}

type PredictionRequest struct {
	Patient PatientPayload `json:"patient"`
}

type BatchPredictionRequest struct {
	Patients []PatientPayload `json:"patients"`
}

type BatchPredictionResponse struct {
	Predictions  []Prediction `json:"predictions"`
	ModelVersion string       `json:"model_version"`
	Timestamp    string       `json:"timestamp"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	ModelVersion string `json:"model_version,omitempty"`
}

// Handler exposes the scoring model over HTTP.
type Handler struct {
	model  *Model
	logger zerolog.Logger
}

func NewHandler(model *Model, logger zerolog.Logger) *Handler {
	return &Handler{model: model, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, api *echo.Group) {
	e.GET("/health", h.Health)
	api.POST("/predict", h.Predict)
	api.POST("/predict/batch", h.PredictBatch)
	api.GET("/model/info", h.ModelInfo)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		ModelLoaded:  h.model != nil,
		ModelVersion: modelVersion,
	})
}

func (h *Handler) ModelInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, h.model.Info())
}

func (h *Handler) Predict(c echo.Context) error {
	var req PredictionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Patient.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}
	if len(req.Patient.Tests) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one test is required")
	}

	pred, err := h.model.Predict(
		req.Patient.PatientID,
		req.Patient.Age,
		req.Patient.Gender,
		toBloodTests(req.Patient.Tests),
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.logger.Info().
		Str("patient_id", pred.PatientID).
		Str("prediction", pred.Prediction).
		Float64("probability", pred.Probability).
		Msg("prediction served")
	return c.JSON(http.StatusOK, pred)
}

func (h *Handler) PredictBatch(c echo.Context) error {
	var req BatchPredictionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Patients) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one patient is required")
	}

	now := h.model.now().UTC().Format(time.RFC3339)
	predictions := make([]Prediction, 0, len(req.Patients))
	for _, p := range req.Patients {
		pred, err := h.model.Predict(p.PatientID, p.Age, p.Gender, toBloodTests(p.Tests))
		if err != nil {
			h.logger.Warn().Err(err).Str("patient_id", p.PatientID).Msg("batch prediction failed")
			predictions = append(predictions, Prediction{
				PatientID: p.PatientID,
				Error:     err.Error(),
				Timestamp: now,
			})
			continue
		}
		predictions = append(predictions, *pred)
	}

	return c.JSON(http.StatusOK, BatchPredictionResponse{
		Predictions:  predictions,
		ModelVersion: modelVersion,
		Timestamp:    now,
	})
}

// toBloodTests converts wire-format tests into the internal type.
func toBloodTests(tests []TestResult) []generator.BloodTest {
	out := make([]generator.BloodTest, len(tests))
	for i, t := range tests {
		out[i] = generator.BloodTest{
			TestID:   t.TestID,
			TestDate: t.TestDate,
			Values:   t.Values,
			Ranges:   t.Ranges,
		}
	}
	return out
}
