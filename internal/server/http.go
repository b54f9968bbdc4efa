package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/joseph-ayodele/farm-advisor/constants"
	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/disease"
	"github.com/joseph-ayodele/farm-advisor/internal/entity"
	"github.com/joseph-ayodele/farm-advisor/internal/imagequality"
	"github.com/joseph-ayodele/farm-advisor/internal/soil"
	"github.com/joseph-ayodele/farm-advisor/internal/utils"
	"github.com/joseph-ayodele/farm-advisor/internal/weather"
	"github.com/joseph-ayodele/farm-advisor/internal/yield"
)

// Inference is the journaled inference surface; *processor.Processor implements it.
type Inference interface {
	ScanSoil(ctx context.Context, name string, data []byte) (soil.ScanResult, uuid.UUID, error)
	PredictYield(ctx context.Context, q yield.Query) (yield.Result, uuid.UUID, error)
	PredictDisease(ctx context.Context, name string, data []byte) (disease.Result, uuid.UUID, error)
	CheckQuality(ctx context.Context, name string, data []byte) (imagequality.Verdict, uuid.UUID, error)
}

type WeatherAdvisor interface {
	Advice(ctx context.Context, city string) (weather.Advice, error)
}

type HistoryReader interface {
	Get(ctx context.Context, jobID uuid.UUID) (*entity.InferenceJob, error)
	List(ctx context.Context, f entity.InferenceFilter) ([]entity.InferenceJob, error)
}

type Exporter interface {
	ExportInferencesXLSX(ctx context.Context, kind constants.InferenceKind, from, to *time.Time) ([]byte, error)
}

// HTTPDeps wires the JSON API. Weather, History, Exporter, Health and Metrics are optional;
// their routes answer 503 when unset.
type HTTPDeps struct {
	Inference Inference
	Weather   WeatherAdvisor
	History   HistoryReader
	Exporter  Exporter
	Health    *Health
	Metrics   *Metrics
	Logger    *slog.Logger
}

const (
	headerJobID = "X-Job-ID"
	xlsxMIME    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type api struct {
	HTTPDeps
}

// NewHTTPServer builds the echo router.
func NewHTTPServer(d HTTPDeps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	a := &api{HTTPDeps: d}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = a.handleError

	e.Use(middleware.Recover())
	e.Use(a.requestContext)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			a.Logger.Info("http.request",
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"req_id", common.RequestIDFromContext(c.Request().Context()),
				"elapsed_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))

	e.GET("/healthz", a.health)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	g := e.Group("/api", middleware.BodyLimit(fmt.Sprintf("%dM", constants.MaxUploadBytes>>20)))
	g.POST("/soil/scan", a.scanSoil)
	g.POST("/yield/predict", a.predictYield)
	g.POST("/disease/predict", a.predictDisease)
	g.POST("/quality/check", a.checkQuality)
	g.GET("/weather/advice", a.weatherAdvice)
	g.GET("/history", a.listHistory)
	g.GET("/history/export", a.exportHistory)
	g.GET("/history/:id", a.getHistory)
	return e
}

func (a *api) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := common.WithSource(req.Context(), "http")
		if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
			ctx = common.WithRequestID(ctx, id)
		}
		ctx, id := common.EnsureRequestID(ctx)
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// handleError renders AppErrors with their user message; echo's own errors keep their status.
func (a *api) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Code == http.StatusRequestEntityTooLarge {
			msg = "The image is too large."
		}
		_ = c.JSON(he.Code, errorBody{Error: msg})
		return
	}
	code := common.HTTPStatus(err)
	if code >= 500 {
		a.Logger.Error("http.failed", "path", c.Path(), "error", err)
	}
	_ = c.JSON(code, errorBody{Error: common.UserMessage(err)})
}

func (a *api) health(c echo.Context) error {
	if a.Health == nil {
		return c.JSON(http.StatusOK, HealthReport{Status: StatusOK, Capabilities: map[string]string{}})
	}
	return c.JSON(http.StatusOK, a.Health.Report(c.Request().Context()))
}

// readImage accepts a multipart "image" (or "file") part, or the raw request body.
func readImage(c echo.Context) (string, []byte, error) {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("image")
		if err != nil {
			fh, err = c.FormFile("file")
		}
		if err != nil {
			return "", nil, common.InputError("Please upload an image.", err)
		}
		data, err := readPart(fh)
		return fh.Filename, data, err
	}
	data, err := readAllLimited(req.Body)
	if err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, common.InputError("Please upload an image.", common.ErrInvalidInput)
	}
	return "", data, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, common.InputError("Please upload an image.", err)
	}
	defer f.Close()
	return readAllLimited(f)
}

func readAllLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, constants.MaxUploadBytes+1))
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, common.InputError("Could not read the upload.", err)
	}
	if len(data) > constants.MaxUploadBytes {
		return nil, common.InputError("The image is too large.", common.ErrInvalidInput)
	}
	return data, nil
}

type soilFailure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (a *api) scanSoil(c echo.Context) error {
	name, data, err := readImage(c)
	if err != nil {
		return soilError(c, err)
	}
	res, jobID, err := a.Inference.ScanSoil(c.Request().Context(), name, data)
	setJobID(c, jobID)
	if err != nil {
		return soilError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// soilError keeps the soil response shape for failures.
func soilError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return err
	}
	return c.JSON(common.HTTPStatus(err), soilFailure{Message: common.UserMessage(err)})
}

func (a *api) predictYield(c echo.Context) error {
	body, err := readAllLimited(c.Request().Body)
	if err != nil {
		return err
	}
	q, err := yield.DecodeQuery(body)
	if err != nil {
		return err
	}
	res, jobID, err := a.Inference.PredictYield(c.Request().Context(), q)
	setJobID(c, jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (a *api) predictDisease(c echo.Context) error {
	name, data, err := readImage(c)
	if err != nil {
		return err
	}
	res, jobID, err := a.Inference.PredictDisease(c.Request().Context(), name, data)
	setJobID(c, jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (a *api) checkQuality(c echo.Context) error {
	name, data, err := readImage(c)
	if err != nil {
		return err
	}
	v, jobID, err := a.Inference.CheckQuality(c.Request().Context(), name, data)
	setJobID(c, jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (a *api) weatherAdvice(c echo.Context) error {
	if a.Weather == nil {
		return common.UpstreamError("Weather advice is not configured.", common.ErrUnavailable)
	}
	adv, err := a.Weather.Advice(c.Request().Context(), c.QueryParam("city"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, adv)
}

func parseKind(s string) (constants.InferenceKind, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	k, ok := constants.ParseInferenceKind(strings.TrimSpace(s))
	if !ok {
		return "", common.InputError(fmt.Sprintf("Unknown kind %q.", s), common.ErrInvalidInput)
	}
	return k, nil
}

func (a *api) listHistory(c echo.Context) error {
	if a.History == nil {
		return historyUnavailable()
	}
	kind, err := parseKind(c.QueryParam("kind"))
	if err != nil {
		return err
	}
	from, to, err := utils.ParseDateWindow(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return common.InputError("Dates must be YYYY-MM-DD.", err)
	}
	f := entity.InferenceFilter{Kind: kind}
	if from != nil {
		f.From = *from
	}
	if to != nil {
		f.To = to.AddDate(0, 0, 1)
	}
	jobs, err := a.History.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []entity.InferenceJob{}
	}
	return c.JSON(http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (a *api) getHistory(c echo.Context) error {
	if a.History == nil {
		return historyUnavailable()
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return common.InputError("Job id must be a UUID.", err)
	}
	job, err := a.History.Get(c.Request().Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody{Error: "No such job."})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

func (a *api) exportHistory(c echo.Context) error {
	if a.Exporter == nil {
		return historyUnavailable()
	}
	kind, err := parseKind(c.QueryParam("kind"))
	if err != nil {
		return err
	}
	from, to, err := utils.ParseDateWindow(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return common.InputError("Dates must be YYYY-MM-DD.", err)
	}
	xlsx, err := a.Exporter.ExportInferencesXLSX(c.Request().Context(), kind, from, to)
	if err != nil {
		a.Logger.Error("export.xlsx.failed", "kind", kind, "err", err)
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="inferences.xlsx"`)
	return c.Blob(http.StatusOK, xlsxMIME, xlsx)
}

func historyUnavailable() error {
	return common.NewAppError(common.CodeDatabase, "The result history is unavailable right now.", common.ErrUnavailable)
}

func setJobID(c echo.Context, id uuid.UUID) {
	if id != uuid.Nil {
		c.Response().Header().Set(headerJobID, id.String())
	}
}
