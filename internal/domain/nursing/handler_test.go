package nursing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/auth"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_Classify(t *testing.T) {
	h := NewHandler(newFixture(t).svc)
	e := echo.New()

	tests := []struct {
		body string
		want Level
	}{
		{`{"type":"BP","value":85,"value2":70}`, LevelCritical},
		{`{"type":"BP","value":120,"value2":80}`, LevelNormal},
		{`{"type":"SPO2","value":88}`, LevelCritical},
		{`{"type":"TEMP","value":98.6}`, LevelNormal},
		{`{"type":"hr","value":35}`, LevelCritical},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		if err := h.Classify(e.NewContext(jsonRequest(http.MethodPost, "/", tt.body), rec)); err != nil {
			t.Fatalf("%s: %v", tt.body, err)
		}
		var resp classifyResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Level != tt.want {
			t.Errorf("%s: level = %s, want %s", tt.body, resp.Level, tt.want)
		}
	}

	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"type":"WEIGHT","value":70}`), httptest.NewRecorder())
	expectKind(t, h.Classify(c), apperr.KindValidation)
}

func TestHandler_ListRequiresVisit(t *testing.T) {
	h := NewHandler(newFixture(t).svc)
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	expectKind(t, h.List(c), apperr.KindValidation)
}

func TestRoutes_RecordAndCorrect(t *testing.T) {
	f := newFixture(t)
	v := f.newVisit(t)
	nurseID := uuid.New()

	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), nurseID.String(), []string{auth.RoleNurse})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api, nil)

	body := `{"visit_id":"` + v.ID.String() + `","systolic":85,"diastolic":70,"pulse":80,"temperature_f":98.4,"spo2":97}`
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/vitals", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("record: %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		ID         uuid.UUID  `json:"id"`
		NurseID    *uuid.UUID `json:"nurse_id"`
		Assessment Assessment `json:"assessment"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Assessment.BP != LevelCritical || !out.Assessment.Critical {
		t.Errorf("assessment = %+v", out.Assessment)
	}
	if out.NurseID == nil || *out.NurseID != nurseID {
		t.Errorf("nurse should default to the caller, got %v", out.NurseID)
	}

	body = `{"systolic":118,"diastolic":76,"pulse":80,"temperature_f":98.4,"spo2":97}`
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, jsonRequest(http.MethodPut, "/api/v1/vitals/"+out.ID.String(), body))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"critical":false`) {
		t.Errorf("correct: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/vitals?visit="+v.ID.String(), nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/vitals/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing reading: expected 404, got %d", rec.Code)
	}
}
