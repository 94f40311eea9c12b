// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type healthyMetric bool

func (m healthyMetric) Healthy(_ context.Context) bool {
	return bool(m)
}

func TestBinary_Set(t *testing.T) {
	t.Run("will be unhealthy", func(t *testing.T) {
		t.Run("if it was never set", func(t *testing.T) {
			var m Binary
			assert.False(t, m.Healthy(context.Background()))
		})

		t.Run("if it was set back to false", func(t *testing.T) {
			var m Binary
			m.Set(true)
			m.Set(false)
			assert.False(t, m.Healthy(context.Background()))
		})
	})

	t.Run("will be healthy", func(t *testing.T) {
		t.Run("if it was set to true", func(t *testing.T) {
			var m Binary
			m.Set(true)
			assert.True(t, m.Healthy(context.Background()))
		})
	})
}

func TestAndMetric_Healthy(t *testing.T) {
	t.Run("will return true", func(t *testing.T) {
		testCases := []struct {
			Name    string
			Metrics []Metric
		}{
			{
				Name:    "if there are no metrics",
				Metrics: nil,
			},
			{
				Name:    "if all metrics are healthy",
				Metrics: []Metric{healthyMetric(true), healthyMetric(true)},
			},
		}
		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				am := And(testCase.Metrics...)
				assert.True(t, am.Healthy(context.Background()))
			})
		}
	})

	t.Run("will return false", func(t *testing.T) {
		t.Run("if any metric is unhealthy", func(t *testing.T) {
			am := And(healthyMetric(true), healthyMetric(false))
			assert.False(t, am.Healthy(context.Background()))
		})
	})
}

func TestNotMetric_Healthy(t *testing.T) {
	t.Run("will negate the metric", func(t *testing.T) {
		t.Run("if it is healthy", func(t *testing.T) {
			assert.False(t, Not(healthyMetric(true)).Healthy(context.Background()))
		})

		t.Run("if it is unhealthy", func(t *testing.T) {
			assert.True(t, Not(healthyMetric(false)).Healthy(context.Background()))
		})
	})
}

func TestHandler(t *testing.T) {
	serve := func(m Metric, method string) *http.Response {
		w := httptest.NewRecorder()
		Handler(m).ServeHTTP(w, httptest.NewRequest(method, "/health/readiness", nil))
		return w.Result()
	}

	t.Run("will return 200", func(t *testing.T) {
		t.Run("if the metric is healthy", func(t *testing.T) {
			for _, method := range []string{http.MethodGet, http.MethodHead} {
				resp := serve(MetricFunc(func(context.Context) bool { return true }), method)
				if !assert.Equal(t, http.StatusOK, resp.StatusCode, method) {
					return
				}
			}
		})
	})

	t.Run("will return 503", func(t *testing.T) {
		t.Run("if the metric is unhealthy", func(t *testing.T) {
			resp := serve(healthyMetric(false), http.MethodGet)
			if !assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode) {
				return
			}
		})
	})

	t.Run("will return 405", func(t *testing.T) {
		t.Run("if the method is not GET or HEAD", func(t *testing.T) {
			resp := serve(healthyMetric(true), http.MethodPost)
			if !assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode) {
				return
			}
			if !assert.Equal(t, "GET, HEAD", resp.Header.Get("Allow")) {
				return
			}
		})
	})
}
