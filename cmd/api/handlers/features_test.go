package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	apppkg "github.com/deskline/helpdesk-sla/cmd/api/app"
)

func TestFeatures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := apppkg.NewApp(apppkg.Config{Env: "test", HolidaysFile: "/etc/holidays.yaml"}, nil, nil, nil, nil)
	a.R.GET("/features", Features(a))

	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/features", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out struct {
		LiveUpdates    bool     `json:"live_updates"`
		HolidayEditing bool     `json:"holiday_editing"`
		Sources        []string `json:"holiday_sources"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.LiveUpdates || out.HolidayEditing {
		t.Fatalf("nothing is connected: %+v", out)
	}
	if len(out.Sources) != 2 || out.Sources[0] != "file" || out.Sources[1] != "built_in" {
		t.Fatalf("sources = %v", out.Sources)
	}
}
