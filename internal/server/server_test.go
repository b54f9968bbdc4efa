package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/farm-advisor/constants"
	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/disease"
	"github.com/joseph-ayodele/farm-advisor/internal/entity"
	"github.com/joseph-ayodele/farm-advisor/internal/imagequality"
	"github.com/joseph-ayodele/farm-advisor/internal/predictor"
	"github.com/joseph-ayodele/farm-advisor/internal/soil"
	"github.com/joseph-ayodele/farm-advisor/internal/weather"
	"github.com/joseph-ayodele/farm-advisor/internal/yield"
)

func ptr(v float64) *float64 { return &v }

type fakeInference struct {
	jobID      uuid.UUID
	soil       soil.ScanResult
	soilErr    error
	diseaseErr error
	lastName   string
	lastData   []byte
	lastSource string
	lastQuery  yield.Query
}

func (f *fakeInference) ScanSoil(ctx context.Context, name string, data []byte) (soil.ScanResult, uuid.UUID, error) {
	f.lastName, f.lastData, f.lastSource = name, data, common.SourceFromContext(ctx)
	return f.soil, f.jobID, f.soilErr
}

func (f *fakeInference) PredictYield(ctx context.Context, q yield.Query) (yield.Result, uuid.UUID, error) {
	f.lastQuery, f.lastSource = q, common.SourceFromContext(ctx)
	return yield.Result{YieldPerHectare: 40.126, TotalYield: 80.252, Recommendations: []string{"ok"}}, f.jobID, nil
}

func (f *fakeInference) PredictDisease(ctx context.Context, name string, data []byte) (disease.Result, uuid.UUID, error) {
	f.lastSource = common.SourceFromContext(ctx)
	if f.diseaseErr != nil {
		return disease.Result{}, f.jobID, f.diseaseErr
	}
	return disease.Result{Disease: "Late blight", Plant: "Tomato", Confidence: 91.234}, f.jobID, nil
}

func (f *fakeInference) CheckQuality(_ context.Context, _ string, data []byte) (imagequality.Verdict, uuid.UUID, error) {
	f.lastData = data
	return imagequality.Verdict{Passed: false, Reason: imagequality.ReasonDark}, f.jobID, nil
}

type fakeWeather struct{ city string }

func (f *fakeWeather) Advice(_ context.Context, city string) (weather.Advice, error) {
	f.city = city
	if city == "" {
		return weather.Advice{}, common.InputError("Please enter a city name.", nil)
	}
	return weather.Advice{Conditions: weather.Conditions{City: city, TempC: 31}, Source: weather.SourceFallback}, nil
}

type fakeHistory struct {
	jobs   []entity.InferenceJob
	filter entity.InferenceFilter
}

func (f *fakeHistory) Get(_ context.Context, id uuid.UUID) (*entity.InferenceJob, error) {
	for _, j := range f.jobs {
		if j.ID == id {
			return &j, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeHistory) List(_ context.Context, filter entity.InferenceFilter) ([]entity.InferenceJob, error) {
	f.filter = filter
	return f.jobs, nil
}

type fakeExporter struct{ kind constants.InferenceKind }

func (f *fakeExporter) ExportInferencesXLSX(_ context.Context, kind constants.InferenceKind, _, _ *time.Time) ([]byte, error) {
	f.kind = kind
	return []byte("PK-xlsx"), nil
}

func newTestAPI(inf *fakeInference) (http.Handler, *fakeHistory, *fakeExporter) {
	h := &fakeHistory{}
	x := &fakeExporter{}
	e := NewHTTPServer(HTTPDeps{
		Inference: inf,
		Weather:   &fakeWeather{},
		History:   h,
		Exporter:  x,
		Metrics:   NewMetrics(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return e, h, x
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func multipartImage(t *testing.T, field, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestSoilScanMultipart(t *testing.T) {
	inf := &fakeInference{
		jobID: uuid.New(),
		soil: soil.ScanResult{
			Reading: soil.Reading{PH: ptr(6.5), Nitrogen: ptr(120)},
			Success: true, Message: soil.MsgExtracted,
		},
	}
	h, _, _ := newTestAPI(inf)

	body, ct := multipartImage(t, "image", "report.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/soil/scan", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, inf.jobID.String(), rec.Header().Get(headerJobID))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, "report.png", inf.lastName)
	require.Equal(t, []byte("png-bytes"), inf.lastData)
	require.Equal(t, "http", inf.lastSource)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 6.5, got["ph"])
	require.Nil(t, got["phosphorus"])
	require.Equal(t, true, got["success"])
}

func TestSoilScanFailureShape(t *testing.T) {
	inf := &fakeInference{soilErr: common.InputError(soil.MsgUnreadable, nil)}
	h, _, _ := newTestAPI(inf)

	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/api/soil/scan", strings.NewReader("junk")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"success":false,"message":"`+soil.MsgUnreadable+`"}`, rec.Body.String())

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/soil/scan", strings.NewReader("")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Please upload an image.")
}

func TestYieldPredict(t *testing.T) {
	inf := &fakeInference{jobID: uuid.New()}
	h, _, _ := newTestAPI(inf)

	body := `{"crop":"Rice","region":"India","rainfall_mm":1200,"temperature_c":27,"humidity_pct":70,
		"ph":6.5,"nitrogen":80,"phosphorus":40,"potassium":40,"area_hectares":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/yield/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := do(t, h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Rice", inf.lastQuery.Crop)
	require.Equal(t, 2.0, inf.lastQuery.AreaHectares)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 40.13, got["yield_per_hectare"])
	require.Equal(t, 80.25, got["total_yield"])

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/yield/predict", strings.NewReader(`{"crop":"Rice"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"error"`)
}

func TestDiseasePredict(t *testing.T) {
	inf := &fakeInference{jobID: uuid.New()}
	h, _, _ := newTestAPI(inf)

	body, ct := multipartImage(t, "file", "leaf.jpg", []byte("jpg"))
	req := httptest.NewRequest(http.MethodPost, "/api/disease/predict", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Late blight", got["disease"])
	require.Equal(t, 91.23, got["confidence"])

	inf.diseaseErr = common.ModelUnavailableError("The disease model is not available right now.", nil)
	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/disease/predict", strings.NewReader("jpg")))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"error":"The disease model is not available right now."}`, rec.Body.String())
}

func TestUploadTooLarge(t *testing.T) {
	h, _, _ := newTestAPI(&fakeInference{})
	big := bytes.Repeat([]byte("x"), constants.MaxUploadBytes+10)
	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/api/quality/check", bytes.NewReader(big)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestQualityCheck(t *testing.T) {
	inf := &fakeInference{}
	h, _, _ := newTestAPI(inf)
	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/api/quality/check", strings.NewReader("img")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"passed":false,"reason":"too dark"}`, rec.Body.String())
	require.Empty(t, rec.Header().Get(headerJobID))
}

func TestWeatherAdvice(t *testing.T) {
	h, _, _ := newTestAPI(&fakeInference{})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/weather/advice?city=Pune", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"city":"Pune"`)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/weather/advice", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"Please enter a city name."}`, rec.Body.String())
}

func TestHistory(t *testing.T) {
	h, hist, x := newTestAPI(&fakeInference{})
	job := entity.InferenceJob{ID: uuid.New(), Kind: constants.KindYield, Status: constants.JobStatusOK, StartedAt: time.Now()}
	hist.jobs = []entity.InferenceJob{job}

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/history?kind=yield&from=2026-01-01&to=2026-01-31", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, constants.KindYield, hist.filter.Kind)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), hist.filter.From)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), hist.filter.To)
	require.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/history?kind=banana", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/history?from=01-01-2026", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/history/"+job.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/history/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/history/export?kind=DISEASE", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, constants.KindDisease, x.kind)
	require.Equal(t, xlsxMIME, rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "inferences.xlsx")
}

func TestHealthAndMetrics(t *testing.T) {
	ready := predictor.NewCapability("yield")
	require.NoError(t, ready.Load(func() error { return nil }))
	failed := predictor.NewCapability("disease")
	require.Error(t, failed.Load(func() error { return io.ErrUnexpectedEOF }))

	m := NewMetrics()
	m.ObserveInference(constants.KindYield, "ok", 30*time.Millisecond)
	e := NewHTTPServer(HTTPDeps{
		Inference: &fakeInference{},
		Health:    &Health{Capabilities: []*predictor.Capability{ready, failed}, Metrics: m},
		Metrics:   m,
	})

	rec := do(t, e, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var rep HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Equal(t, StatusDegraded, rep.Status)
	require.Equal(t, "ready", rep.Capabilities["yield"])
	require.Equal(t, "failed", rep.Capabilities["disease"])

	rec = do(t, e, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `advisor_inference_total{kind="YIELD",outcome="ok"} 1`)
	require.Contains(t, body, `advisor_capability_available{capability="disease"} 0`)
	require.Contains(t, body, `advisor_capability_available{capability="yield"} 1`)
}

func startGRPC(t *testing.T, inf Inference) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(inf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCInference(t *testing.T) {
	inf := &fakeInference{
		soil: soil.ScanResult{Reading: soil.Reading{PH: ptr(7)}, Success: true, Message: soil.MsgExtracted},
	}
	conn := startGRPC(t, inf)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, fullMethod("ScanSoil"), wrapperspb.Bytes([]byte("img")), out))
	require.Equal(t, 7.0, out.Fields["ph"].GetNumberValue())
	require.True(t, out.Fields["success"].GetBoolValue())
	require.Equal(t, "grpc", inf.lastSource)

	req, err := structpb.NewStruct(map[string]any{
		"crop": "Wheat", "region": "India", "rainfall_mm": 600, "temperature_c": 20, "humidity_pct": 50,
		"ph": 7, "nitrogen": 60, "phosphorus": 30, "potassium": 30, "area_hectares": 1.5,
	})
	require.NoError(t, err)
	out = &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, fullMethod("PredictYield"), req, out))
	require.Equal(t, 40.13, out.Fields["yield_per_hectare"].GetNumberValue())
	require.Equal(t, 1.5, inf.lastQuery.AreaHectares)

	inf.diseaseErr = common.ModelUnavailableError("The disease model is not available right now.", nil)
	err = conn.Invoke(ctx, fullMethod("PredictDisease"), wrapperspb.Bytes([]byte("img")), &structpb.Struct{})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Unavailable, st.Code())
	require.Equal(t, "The disease model is not available right now.", st.Message())

	err = conn.Invoke(ctx, fullMethod("ScanSoil"), wrapperspb.Bytes(nil), &structpb.Struct{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	hc := healthpb.NewHealthClient(conn)
	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: InferenceServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
