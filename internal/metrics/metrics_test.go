package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"penalty-service/internal/metrics"
)

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("Given metrics on an isolated registry", t, func() {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)

		Convey("Domain counters increment", func() {
			m.DriverRegistered()
			m.ViolationRecorded("RED_LIGHT")
			m.ViolationRecorded("RED_LIGHT")
			m.EmailFallback()
			m.ProfileServed()

			series, err := testutil.GatherAndCount(reg, "goodroad_penalty_violations_recorded_total")
			So(err, ShouldBeNil)
			So(series, ShouldEqual, 1)

			w := httptest.NewRecorder()
			m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			body := w.Body.String()
			So(body, ShouldContainSubstring, "goodroad_penalty_drivers_registered_total 1")
			So(body, ShouldContainSubstring, `goodroad_penalty_violations_recorded_total{code="RED_LIGHT"} 2`)
			So(body, ShouldContainSubstring, "goodroad_penalty_email_fallbacks_total 1")
			So(body, ShouldContainSubstring, "goodroad_penalty_profiles_served_total 1")
		})

		Convey("The middleware labels requests by route", func() {
			r := gin.New()
			r.Use(m.Middleware())
			r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
			r.GET("/metrics", gin.WrapH(m.Handler()))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/42", nil))
			So(w.Code, ShouldEqual, http.StatusNoContent)

			w = httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `route="/things/:id"`)
			So(strings.Contains(w.Body.String(), "/things/42"), ShouldBeFalse)
		})
	})

	Convey("A nil recorder is a no-op", t, func() {
		var m *metrics.Metrics
		So(func() {
			m.DriverRegistered()
			m.ViolationRecorded("X")
			m.EmailFallback()
			m.ProfileServed()
		}, ShouldNotPanic)
	})
}
