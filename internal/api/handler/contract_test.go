package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/kiranshivaraju/threatlens/internal/ai/mock"
	"github.com/kiranshivaraju/threatlens/internal/api"
	"github.com/kiranshivaraju/threatlens/internal/api/handler"
	mw "github.com/kiranshivaraju/threatlens/internal/api/middleware"
	"github.com/kiranshivaraju/threatlens/internal/detection"
	"github.com/kiranshivaraju/threatlens/internal/scorer"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── fixtures ────────────────────────────────────────────────────────────────

type stubBinary struct {
	verdict models.Verdict
	err     error
}

func (s *stubBinary) Name() string { return "stub" }

func (s *stubBinary) Score(_ context.Context, _ scorer.Sample) (models.Verdict, error) {
	return s.verdict, s.err
}

type pingErr struct{ err error }

func (p pingErr) Ping(context.Context) error { return p.err }

type testServer struct {
	server   *httptest.Server
	store    *store.MemoryStore
	binary   *stubBinary
	provider *mock.MockProvider
	adminKey string
}

type serverOption func(*serverConfig)

type serverConfig struct {
	fallback bool
	checks   handler.HealthChecks
}

func withoutFallback() serverOption {
	return func(c *serverConfig) { c.fallback = false }
}

func withHealthChecks(checks handler.HealthChecks) serverOption {
	return func(c *serverConfig) { c.checks = checks }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	cfg := serverConfig{fallback: true}
	for _, o := range opts {
		o(&cfg)
	}

	ms := store.NewMemoryStore()
	if cfg.checks == nil {
		cfg.checks = handler.HealthChecks{"store": ms, "cache": nil}
	}

	binary := &stubBinary{verdict: models.Verdict{Score: 20, Status: models.StatusReal, Factors: []string{"Natural voice patterns"}}}
	provider := mock.NewMockProvider()
	svc := detection.NewService(ms, binary, scorer.NewPhishingScorer(provider),
		detection.WithFallbackOnError(cfg.fallback),
		detection.WithMaxUploadBytes(1024),
	)

	adminKey := handler.GenerateRawKey()
	key, err := handler.NewAPIKey("bootstrap", adminKey, []string{models.ScopeAdmin}, bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, ms.CreateAPIKey(context.Background(), key))

	router := api.NewRouter(api.Dependencies{
		Auth:               mw.NewAuth(ms, false),
		RateLimit:          mw.NewLocalRateLimit(1000),
		HealthHandler:      handler.NewHealthHandler(cfg.checks),
		VoiceHandler:       handler.NewVoiceHandler(svc),
		DeepfakeHandler:    handler.NewDeepfakeHandler(svc),
		PhishingHandler:    handler.NewPhishingHandler(svc),
		ListHistoryHandler: handler.NewListHistoryHandler(ms),
		GetHistoryHandler:  handler.NewGetHistoryHandler(ms),
		CreateKeyHandler:   handler.NewCreateKeyHandler(ms),
		ListKeysHandler:    handler.NewListKeysHandler(ms),
		RevokeKeyHandler:   handler.NewRevokeKeyHandler(ms),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: ms, binary: binary, provider: provider, adminKey: adminKey}
}

func (ts *testServer) jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, ts.server.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (ts *testServer) adminRequest(method, path string, body any) *http.Request {
	req := ts.jsonRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+ts.adminKey)
	return req
}

func (ts *testServer) uploadRequest(t *testing.T, path, field, fileName, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseBody(t, resp)
	return body["error"].(map[string]any)["code"].(string)
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONTRACT TESTS
// ═══════════════════════════════════════════════════════════════════════════════

// ─── POST /api/detect/voice ──────────────────────────────────────────────────

func TestVoice_200_BareContract(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.uploadRequest(t, "/api/detect/voice", "audioFile", "call.mp3", "audio/mpeg", []byte("mp3")))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.NotContains(t, body, "data")
	assert.Equal(t, float64(20), body["score"])
	assert.Equal(t, "real", body["status"])
	assert.Equal(t, []any{"Natural voice patterns"}, body["factors"])
	assert.NotContains(t, body, "degraded")
}

func TestVoice_400_MissingFile(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.uploadRequest(t, "/api/detect/voice", "somethingElse", "call.mp3", "audio/mpeg", []byte("mp3")))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, detection.CodeFileRequired, errObj["code"])
	assert.Equal(t, "No audio file provided", errObj["message"])
}

func TestVoice_400_NotMultipart(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.jsonRequest(http.MethodPost, "/api/detect/voice", map[string]string{"a": "b"}))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, detection.CodeFileRequired, errorCode(t, resp))
}

func TestVoice_400_WrongMIME(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.uploadRequest(t, "/api/detect/voice", "audioFile", "report.pdf", "application/pdf", []byte("%PDF")))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, detection.CodeUnsupportedMediaType, errObj["code"])
	assert.Equal(t, "Invalid file type. Please upload MP3, WAV, or M4A files", errObj["message"])

	history := parseArray(t, do(t, ts.jsonRequest(http.MethodGet, "/api/history", nil)))
	assert.Empty(t, history)
}

func TestVoice_400_TooLarge(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.uploadRequest(t, "/api/detect/voice", "audioFile", "big.wav", "audio/wav", bytes.Repeat([]byte("a"), 2048)))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, detection.CodeFileTooLarge, errorCode(t, resp))
}

func TestVoice_200_DegradedOnScorerFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.binary.err = fmt.Errorf("%w: exit code 1", scorer.ErrAnalyzerExit)

	resp := do(t, ts.uploadRequest(t, "/api/detect/voice", "audioFile", "call.wav", "audio/wav", []byte("wav")))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, "suspicious", body["status"])
	assert.Equal(t, float64(models.NeutralScore), body["score"])
	assert.Equal(t, true, body["degraded"])
}

func TestVoice_500_WithoutFallback(t *testing.T) {
	ts := newTestServer(t, withoutFallback())
	ts.binary.err = scorer.ErrAnalyzerMalformedOutput

	resp := do(t, ts.uploadRequest(t, "/api/detect/voice", "audioFile", "call.wav", "audio/wav", []byte("wav")))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "ANALYSIS_FAILED", errorCode(t, resp))
}

// ─── POST /api/detect/deepfake ───────────────────────────────────────────────

func TestDeepfake_200(t *testing.T) {
	ts := newTestServer(t)
	ts.binary.verdict = models.Verdict{Score: 88, Status: models.StatusFake, Factors: []string{"Facial inconsistencies"}}

	resp := do(t, ts.uploadRequest(t, "/api/detect/deepfake", "videoFile", "clip.mov", "video/quicktime", []byte("mov")))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, "fake", body["status"])
	assert.Equal(t, float64(88), body["score"])
}

func TestDeepfake_400_AudioFieldRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.uploadRequest(t, "/api/detect/deepfake", "audioFile", "clip.mp4", "video/mp4", []byte("mp4")))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, "No video file provided", body["error"].(map[string]any)["message"])
}

func TestDeepfake_504_TimeoutWithoutFallback(t *testing.T) {
	ts := newTestServer(t, withoutFallback())
	ts.binary.err = scorer.ErrAnalyzerTimeout

	resp := do(t, ts.uploadRequest(t, "/api/detect/deepfake", "videoFile", "clip.mp4", "video/mp4", []byte("mp4")))

	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "ANALYSIS_TIMEOUT", errorCode(t, resp))
}

// ─── POST /api/detect/phishing ───────────────────────────────────────────────

func TestPhishing_200_RelaysProviderVerdict(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.jsonRequest(http.MethodPost, "/api/detect/phishing", map[string]string{
		"type": "url", "content": "http://paypa1-login.example/verify",
	}))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, float64(85), body["score"])
	assert.Equal(t, "fake", body["status"])
}

func TestPhishing_200_FallbackOnProviderError(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.ClassifyFunc = func(context.Context, models.PhishingRequest) (models.Verdict, error) {
		return models.Verdict{}, errors.New("connection refused")
	}

	resp := do(t, ts.jsonRequest(http.MethodPost, "/api/detect/phishing", map[string]string{
		"type": "email", "content": "hello",
	}))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, "suspicious", body["status"])
	assert.Equal(t, true, body["degraded"])
}

func TestPhishing_400_Schema(t *testing.T) {
	ts := newTestServer(t)

	cases := map[string]any{
		"unknown type":  map[string]string{"type": "sms", "content": "hi"},
		"empty content": map[string]string{"type": "url", "content": ""},
		"missing type":  map[string]string{"content": "hi"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := do(t, ts.jsonRequest(http.MethodPost, "/api/detect/phishing", body))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, detection.CodeValidationError, errorCode(t, resp))
		})
	}

	// Rejected requests are never scored or recorded.
	history := parseArray(t, do(t, ts.jsonRequest(http.MethodGet, "/api/history", nil)))
	assert.Empty(t, history)
}

func TestPhishing_400_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.server.URL+"/api/detect/phishing", bytes.NewBufferString("{not json"))
	resp := do(t, req)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, resp))
}

// ─── GET /api/history ────────────────────────────────────────────────────────

func seedResults(t *testing.T, ms *store.MemoryStore, types ...models.DetectionType) {
	t.Helper()
	for i, typ := range types {
		require.NoError(t, ms.CreateAnalysisResult(context.Background(), &models.AnalysisResult{
			Type:    typ,
			Score:   i,
			Status:  models.StatusSafe,
			Factors: []string{},
			Scorer:  "stub",
		}))
	}
}

func parseArray(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHistory_EmptyArray(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.jsonRequest(http.MethodGet, "/api/history", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestHistory_DefaultLimitNewestFirst(t *testing.T) {
	ts := newTestServer(t)
	types := make([]models.DetectionType, 12)
	for i := range types {
		types[i] = models.DetectionPhishing
	}
	seedResults(t, ts.store, types...)

	resp := do(t, ts.jsonRequest(http.MethodGet, "/api/history", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	results := parseArray(t, resp)
	require.Len(t, results, 10)
	assert.Equal(t, float64(12), results[0]["id"])
	assert.Equal(t, float64(3), results[9]["id"])
	assert.Contains(t, results[0], "createdAt")
}

func TestHistory_LimitAndType(t *testing.T) {
	ts := newTestServer(t)
	seedResults(t, ts.store,
		models.DetectionVoice, models.DetectionPhishing, models.DetectionVoice, models.DetectionVoice)

	resp := do(t, ts.jsonRequest(http.MethodGet, "/api/history?type=voice&limit=2", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	results := parseArray(t, resp)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "voice", r["type"])
	}
	assert.Equal(t, float64(4), results[0]["id"])
}

func TestHistory_400_BadParams(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.jsonRequest(http.MethodGet, "/api/history?type=sms", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_TYPE", errorCode(t, resp))

	resp = do(t, ts.jsonRequest(http.MethodGet, "/api/history?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_LIMIT", errorCode(t, resp))
}

func TestHistory_DetectionIsRecorded(t *testing.T) {
	ts := newTestServer(t)

	do(t, ts.jsonRequest(http.MethodPost, "/api/detect/phishing", map[string]string{
		"type": "message", "content": "You won a prize",
	}))

	results := parseArray(t, do(t, ts.jsonRequest(http.MethodGet, "/api/history", nil)))
	require.Len(t, results, 1)
	assert.Equal(t, "phishing", results[0]["type"])
	assert.Equal(t, "You won a prize", results[0]["contentText"])
	assert.Equal(t, "mock", results[0]["scorer"])
}

// ─── GET /api/history/{id} ───────────────────────────────────────────────────

func TestHistoryGet_200(t *testing.T) {
	ts := newTestServer(t)
	seedResults(t, ts.store, models.DetectionDeepfake)

	resp := do(t, ts.jsonRequest(http.MethodGet, "/api/history/1", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, float64(1), body["id"])
	assert.Equal(t, "deepfake", body["type"])
}

func TestHistoryGet_404(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.jsonRequest(http.MethodGet, "/api/history/99", nil))

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, resp))
}

func TestHistoryGet_400(t *testing.T) {
	ts := newTestServer(t)

	for _, id := range []string{"abc", "0", "-4"} {
		resp := do(t, ts.jsonRequest(http.MethodGet, "/api/history/"+id, nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, id)
	}
}

// ─── GET /api/health ─────────────────────────────────────────────────────────

func TestHealth_200(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.jsonRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["store"])
	assert.Equal(t, "disabled", services["cache"])
}

func TestHealth_503_Degraded(t *testing.T) {
	ts := newTestServer(t, withHealthChecks(handler.HealthChecks{
		"store": pingErr{},
		"cache": pingErr{err: errors.New("redis down")},
	}))

	resp := do(t, ts.jsonRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "degraded", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["store"])
	assert.Equal(t, "degraded", services["cache"])
}

// ─── /api/admin/keys ─────────────────────────────────────────────────────────

func TestKeys_Create_201_KeyShownOnce(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.adminRequest(http.MethodPost, "/api/admin/keys", map[string]any{
		"name": "ci", "scopes": []string{"detect"},
	}))

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	rawKey := data["key"].(string)
	assert.Regexp(t, `^tl_[0-9a-f]{64}$`, rawKey)
	assert.Equal(t, rawKey[:mw.KeyPrefixLen], data["key_prefix"])

	// The new key authenticates for its scope.
	req := ts.jsonRequest(http.MethodPost, "/api/detect/phishing", map[string]string{"type": "url", "content": "x"})
	req.Header.Set("Authorization", "Bearer "+rawKey)
	assert.Equal(t, http.StatusOK, do(t, req).StatusCode)

	// The list never exposes the raw key or its hash.
	listResp := do(t, ts.adminRequest(http.MethodGet, "/api/admin/keys", nil))
	raw, err := io.ReadAll(listResp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), rawKey)
	assert.NotContains(t, string(raw), "key_hash")
}

func TestKeys_Create_DefaultScopes(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.adminRequest(http.MethodPost, "/api/admin/keys", map[string]any{"name": "reader"}))

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, []any{"detect", "read"}, data["scopes"])
}

func TestKeys_Create_400(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.adminRequest(http.MethodPost, "/api/admin/keys", map[string]any{"name": "  "}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, ts.adminRequest(http.MethodPost, "/api/admin/keys", map[string]any{
		"name": "x", "scopes": []string{"write"},
	}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_SCOPE", errorCode(t, resp))
}

func TestKeys_List_200(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.adminRequest(http.MethodGet, "/api/admin/keys", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "bootstrap", data[0].(map[string]any)["name"])
}

func TestKeys_Revoke(t *testing.T) {
	ts := newTestServer(t)

	created := parseBody(t, do(t, ts.adminRequest(http.MethodPost, "/api/admin/keys", map[string]any{"name": "tmp"})))
	data := created["data"].(map[string]any)
	id := data["id"].(string)
	rawKey := data["key"].(string)

	resp := do(t, ts.adminRequest(http.MethodDelete, "/api/admin/keys/"+id, nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Revoked keys no longer authenticate.
	req := ts.jsonRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	assert.Equal(t, http.StatusUnauthorized, do(t, req).StatusCode)

	resp = do(t, ts.adminRequest(http.MethodDelete, "/api/admin/keys/"+id, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "KEY_NOT_FOUND", errorCode(t, resp))
}

func TestKeys_Revoke_400_BadID(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.adminRequest(http.MethodDelete, "/api/admin/keys/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_KEY_ID", errorCode(t, resp))
}

func TestKeys_401_WithoutKey(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.jsonRequest(http.MethodGet, "/api/admin/keys", nil))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
