package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denoise-bench/internal/config"
	"denoise-bench/internal/models"
	"denoise-bench/internal/pipeline"
	"denoise-bench/internal/session"
)

type pngCodec struct{}

func (pngCodec) Decode(data []byte) (*models.Image, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	return models.FromStandard(src)
}

func (pngCodec) Preview(img *models.Image) (string, error) {
	return "data:image/png;base64,", nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, maxSize int64) *gin.Engine {
	t.Helper()
	coord, err := pipeline.NewCoordinator(pipeline.Options{
		Store:   session.NewMemoryStore(time.Hour),
		Codec:   pngCodec{},
		Sources: pipeline.SeededSources(1),
		Workers: 2,
	})
	require.NoError(t, err)

	upload := config.DefaultConfig().Upload
	if maxSize > 0 {
		upload.MaxSize = maxSize
	}

	return NewRouter(NewHandler(coord, upload, nil), nil)
}

func grayPNG(t *testing.T, size int, value uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "upload.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func formRequest(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func uploadImage(t *testing.T, r *gin.Engine, size int, value uint8) string {
	t.Helper()
	rec := serve(r, multipartRequest(t, "file", grayPNG(t, size, value)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
		Filename  string `json:"filename"`
		Width     int    `json:"width"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, "upload.png", res.Filename)
	require.Equal(t, size, res.Width)
	return res.SessionID
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
	return body.Kind
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, 0)

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestFullFlow(t *testing.T) {
	r := newTestRouter(t, 0)
	id := uploadImage(t, r, 4, 100)

	rec := serve(r, formRequest(url.Values{
		"session_id":     {id},
		"noise_type":     {"gaussian"},
		"gaussian_sigma": {"0"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var processed struct {
		Success   bool                   `json:"success"`
		NoiseType string                 `json:"noise_type"`
		PerFilter []models.FilterSummary `json:"per_filter"`
		Best      models.BestFilter      `json:"best"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &processed))
	assert.True(t, processed.Success)
	assert.Equal(t, "gaussian", processed.NoiseType)
	assert.Len(t, processed.PerFilter, 8)
	assert.Equal(t, "Mean 3x3", processed.Best.Name)
	assert.True(t, processed.Best.Identical)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/api/charts/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var charts chartsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &charts))
	assert.Len(t, charts.Charts.Comparison, 8)
	assert.Equal(t, 100.0, charts.Charts.PSNR[0].Value)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/api/export/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="resultados_upload.png.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "filter_name,mse,psnr\nMean 3x3,0.0000,inf\n"))
}

func TestProcessJSONBodyUsesDefaults(t *testing.T) {
	r := newTestRouter(t, 0)
	id := uploadImage(t, r, 8, 128)

	body, err := json.Marshal(map[string]interface{}{
		"session_id": id,
		"noise_type": "salt_pepper",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/process", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(r, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUploadRejections(t *testing.T) {
	r := newTestRouter(t, 64)

	rec := serve(r, multipartRequest(t, "image", grayPNG(t, 4, 1)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidParameter", errorKind(t, rec))

	rec = serve(r, multipartRequest(t, "file", grayPNG(t, 64, 1)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = serve(r, multipartRequest(t, "file", []byte("plain text, not pixels")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DecodeError", errorKind(t, rec))
}

func TestProcessErrors(t *testing.T) {
	r := newTestRouter(t, 0)
	id := uploadImage(t, r, 4, 10)
	tiny := uploadImage(t, r, 1, 10)

	tests := []struct {
		name   string
		values url.Values
		status int
		kind   string
	}{
		{"unknown session", url.Values{"session_id": {"missing"}, "noise_type": {"gaussian"}}, http.StatusNotFound, "SessionNotFound"},
		{"unknown noise", url.Values{"session_id": {id}, "noise_type": {"speckle"}}, http.StatusBadRequest, "InvalidParameter"},
		{"missing noise", url.Values{"session_id": {id}}, http.StatusBadRequest, "InvalidParameter"},
		{"probability out of range", url.Values{"session_id": {id}, "noise_type": {"salt_pepper"}, "salt_prob": {"1.5"}}, http.StatusBadRequest, "InvalidParameter"},
		{"negative sigma", url.Values{"session_id": {id}, "noise_type": {"gaussian"}, "gaussian_sigma": {"-3"}}, http.StatusBadRequest, "InvalidParameter"},
		{"non numeric", url.Values{"session_id": {id}, "noise_type": {"gaussian"}, "gaussian_sigma": {"abc"}}, http.StatusBadRequest, "InvalidParameter"},
		{"image too small", url.Values{"session_id": {tiny}, "noise_type": {"gaussian"}}, http.StatusUnprocessableEntity, "ImageTooSmall"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, formRequest(tt.values))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, errorKind(t, rec))
		})
	}
}

func TestResultsBeforeProcess(t *testing.T) {
	r := newTestRouter(t, 0)
	id := uploadImage(t, r, 4, 10)

	for _, path := range []string{"/api/charts/", "/api/export/"} {
		rec := serve(r, httptest.NewRequest(http.MethodGet, path+id, nil))
		assert.Equal(t, http.StatusConflict, rec.Code, path)
		assert.Equal(t, "NoResults", errorKind(t, rec))

		rec = serve(r, httptest.NewRequest(http.MethodGet, path+"missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestFilters(t *testing.T) {
	r := newTestRouter(t, 0)

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/filters", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Filters []string `json:"filters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Filters, 8)
	assert.Equal(t, "Mean 3x3", body.Filters[0])
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, 0)

	rec := serve(r, httptest.NewRequest(http.MethodOptions, "/api/process", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(models.ErrDecode))
	assert.Equal(t, http.StatusBadRequest, StatusFor(&models.ParameterError{Param: "sigma", Value: -1, Reason: "must be >= 0"}))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(&models.FilterError{Filter: "Mean 7x7", Err: models.ErrImageTooSmall}))
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("load: %w", models.ErrSessionNotFound)))
	assert.Equal(t, http.StatusConflict, StatusFor(models.ErrNoResults))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("boom")))
}
