package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valentinpelus/attackref/pkg/types"
)

type fakeProvider struct {
	text    string
	err     error
	pingErr error
	got     types.ProcedureRequest
}

func (f *fakeProvider) GenerateProcedure(_ context.Context, req types.ProcedureRequest) (string, error) {
	f.got = req
	return f.text, f.err
}
func (f *fakeProvider) Ping(context.Context) error { return f.pingErr }
func (f *fakeProvider) Name() string               { return "Fake (test)" }

type fakeArchive struct {
	stored   []types.ProcedureExample
	storeErr error
	recent   []types.ProcedureExample
	query    string
	limit    int
}

func (a *fakeArchive) Store(_ context.Context, ex *types.ProcedureExample) error {
	if a.storeErr != nil {
		return a.storeErr
	}
	a.stored = append(a.stored, *ex)
	return nil
}

func (a *fakeArchive) Recent(_ context.Context, technique string, limit int) ([]types.ProcedureExample, error) {
	a.query, a.limit = technique, limit
	return a.recent, nil
}

func procedureRouter(h *ProcedureHandler) *gin.Engine {
	r := gin.New()
	api := r.Group("/api/procedure")
	api.POST("/generate", h.Generate)
	api.GET("/health", h.Health)
	api.GET("/test", h.Test)
	api.GET("/history", h.History)
	return r
}

const generateBody = `{"technique_name":"Phishing","technique_description":"Adversaries may send phishing messages."}`

func TestGenerateProcedure(t *testing.T) {
	provider := &fakeProvider{text: "1. Overview"}
	archive := &fakeArchive{}
	r := procedureRouter(NewProcedureHandler(provider, nil, archive, MustNewValidator(), nil))

	rec := do(r, http.MethodPost, "/api/procedure/generate", generateBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ProcedureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ProcedureResponse{
		TechniqueName:    "Phishing",
		ProcedureExample: "1. Overview",
		Message:          "Procedure example generated successfully!",
	}, resp)
	assert.Equal(t, "Adversaries may send phishing messages.", provider.got.TechniqueDescription)

	require.Len(t, archive.stored, 1)
	assert.Equal(t, "Fake (test)", archive.stored[0].Provider)
	assert.Equal(t, "1. Overview", archive.stored[0].Example)
}

func TestGenerateProcedureRejectsEmptyFields(t *testing.T) {
	r := procedureRouter(NewProcedureHandler(&fakeProvider{text: "x"}, nil, nil, MustNewValidator(), nil))

	rec := do(r, http.MethodPost, "/api/procedure/generate", `{"technique_name":"Phishing","technique_description":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Both technique_name and technique_description are required"}`, rec.Body.String())

	rec = do(r, http.MethodPost, "/api/procedure/generate", `{"technique_name":"Phishing"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGenerateProcedureProviderFailure(t *testing.T) {
	archive := &fakeArchive{}
	provider := &fakeProvider{err: errors.New("OpenAI API call failed: 429 quota")}
	r := procedureRouter(NewProcedureHandler(provider, nil, archive, MustNewValidator(), nil))

	rec := do(r, http.MethodPost, "/api/procedure/generate", generateBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Failed to generate procedure example"}`, rec.Body.String())
	assert.Empty(t, archive.stored)
}

func TestGenerateProcedureArchiveFailureIsIgnored(t *testing.T) {
	archive := &fakeArchive{storeErr: errors.New("connection refused")}
	r := procedureRouter(NewProcedureHandler(&fakeProvider{text: "ok"}, nil, archive, MustNewValidator(), nil))

	rec := do(r, http.MethodPost, "/api/procedure/generate", generateBody)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateProcedureWithoutProvider(t *testing.T) {
	initErr := errors.New("failed to load AWS config: open /home/app/.aws/config: permission denied")
	r := procedureRouter(NewProcedureHandler(nil, initErr, nil, MustNewValidator(), nil))

	rec := do(r, http.MethodPost, "/api/procedure/generate", generateBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"LLM client initialization failed"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), ".aws")

	rec = do(r, http.MethodGet, "/api/procedure/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"Health check failed: LLM client initialization failed"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), ".aws")
}

func TestProcedureHealth(t *testing.T) {
	provider := &fakeProvider{}
	r := procedureRouter(NewProcedureHandler(provider, nil, nil, MustNewValidator(), nil))

	rec := do(r, http.MethodGet, "/api/procedure/health", "")
	assert.JSONEq(t, `{"status":"healthy","message":"LLM connection is working"}`, rec.Body.String())

	provider.pingErr = errors.New("timeout")
	rec = do(r, http.MethodGet, "/api/procedure/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","message":"LLM connection failed"}`, rec.Body.String())

	rec = do(r, http.MethodGet, "/api/procedure/test", "")
	assert.JSONEq(t, `{"message":"Procedure example endpoint is working!"}`, rec.Body.String())
}

func TestProcedureHistory(t *testing.T) {
	archive := &fakeArchive{recent: []types.ProcedureExample{{ID: "a", TechniqueName: "Phishing", Example: "x"}}}
	r := procedureRouter(NewProcedureHandler(&fakeProvider{}, nil, archive, MustNewValidator(), nil))

	rec := do(r, http.MethodGet, "/api/procedure/history?technique=Phishing&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Phishing", archive.query)
	assert.Equal(t, 5, archive.limit)

	var resp struct {
		Examples []types.ProcedureExample `json:"examples"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Examples, 1)
	assert.Equal(t, "x", resp.Examples[0].Example)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/procedure/history?limit=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/procedure/history?limit=abc", "").Code)
}

func TestProcedureHistoryWithoutArchive(t *testing.T) {
	r := procedureRouter(NewProcedureHandler(&fakeProvider{}, nil, nil, MustNewValidator(), nil))

	rec := do(r, http.MethodGet, "/api/procedure/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"detail":"Procedure archive is not configured"}`, rec.Body.String())
}
