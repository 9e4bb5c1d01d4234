package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/handler"
	"github.com/scriba-edu/scriba-go-api/internal/service"
)

type mockExamService struct {
	exams       []dto.ExamResponse
	exam        dto.ExamResponse
	key         dto.AnswerKeyImport
	importedDoc []byte
	err         error
}

func (m *mockExamService) List(_ context.Context, _ dto.ExamFilter) ([]dto.ExamResponse, error) {
	return m.exams, m.err
}

func (m *mockExamService) Get(_ context.Context, _ uint) (dto.ExamResponse, error) {
	return m.exam, m.err
}

func (m *mockExamService) Create(_ context.Context, payload dto.ExamCreateRequest) (dto.ExamResponse, error) {
	if m.err != nil {
		return dto.ExamResponse{}, m.err
	}
	return dto.ExamResponse{ID: 1, Title: payload.Title, Status: "draft"}, nil
}

func (m *mockExamService) Update(_ context.Context, _ uint, _ dto.ExamUpdateRequest) (dto.ExamResponse, error) {
	return m.exam, m.err
}

func (m *mockExamService) Delete(_ context.Context, _ uint) error {
	return m.err
}

func (m *mockExamService) ImportAnswerKey(_ context.Context, _ uint, document []byte) (dto.ExamResponse, error) {
	m.importedDoc = document
	return m.exam, m.err
}

func (m *mockExamService) ExportAnswerKey(_ context.Context, _ uint) (dto.AnswerKeyImport, error) {
	return m.key, m.err
}

func newExamApp(svc service.ExamService) *fiber.App {
	app := fiber.New()
	handler.NewExamHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/exams"))
	return app
}

func TestExamHandler_List(t *testing.T) {
	svc := &mockExamService{exams: []dto.ExamResponse{{ID: 1, Title: "Embedded Systems", Status: "published"}}}
	app := newExamApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/exams?status=published", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Success bool               `json:"success"`
		Data    []dto.ExamResponse `json:"data"`
		Message string             `json:"message"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "exams retrieved", body.Message)
	require.Len(t, body.Data, 1)
	require.Equal(t, "Embedded Systems", body.Data[0].Title)
}

func TestExamHandler_Create(t *testing.T) {
	svc := &mockExamService{}
	app := newExamApp(svc)

	payload := strings.NewReader(`{"title":"Embedded Systems","subject":"CS"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/exams", payload)
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Success bool             `json:"success"`
		Data    dto.ExamResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "Embedded Systems", body.Data.Title)
}

func TestExamHandler_CreateRejectsBadJSON(t *testing.T) {
	app := newExamApp(&mockExamService{})

	req := httptest.NewRequest(http.MethodPost, "/api/exams", strings.NewReader("{"))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExamHandler_ImportAnswerKey(t *testing.T) {
	svc := &mockExamService{exam: dto.ExamResponse{ID: 7, Title: "Embedded Systems"}}
	app := newExamApp(svc)

	document := `{"Q1":{"text":"Define an interrupt.","answer":"A signal."}}`
	req := httptest.NewRequest(http.MethodPut, "/api/exams/7/key", strings.NewReader(document))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.JSONEq(t, document, string(svc.importedDoc))
}

func TestExamHandler_BadIDParam(t *testing.T) {
	app := newExamApp(&mockExamService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/exams/abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExamHandler_ServiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		statusCode int
	}{
		{name: "not_found", err: service.ErrExamNotFound, statusCode: fiber.StatusNotFound},
		{name: "invalid_key", err: service.ErrAnswerKeyInvalid, statusCode: fiber.StatusBadRequest},
		{name: "not_publishable", err: service.ErrExamNotPublishable, statusCode: fiber.StatusConflict},
		{name: "generic", err: errors.New("boom"), statusCode: fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newExamApp(&mockExamService{err: tc.err})

			req := httptest.NewRequest(http.MethodPut, "/api/exams/7/key", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.statusCode, resp.StatusCode)
		})
	}
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(body, target))
}

func jsonBody(t *testing.T, payload interface{}) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}
