package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "peer address", remote: "10.0.0.5:4312", want: "10.0.0.5"},
		{name: "peer without port", remote: "10.0.0.5", want: "10.0.0.5"},
		{name: "first forwarded hop", headers: map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1"}, remote: "10.0.0.5:1", want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, remote: "10.0.0.5:1", want: "198.51.100.2"},
		{name: "blank forwarded falls through", headers: map[string]string{"X-Forwarded-For": " ,10.0.0.1", "X-Real-IP": "198.51.100.2"}, remote: "10.0.0.5:1", want: "198.51.100.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/events", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, IPFromRequest(r))
		})
	}
}

func TestDeviceIDFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/events", nil)
	assert.Empty(t, DeviceIDFromRequest(r))

	r.Header.Set("X-Device-Id", " phone-1 ")
	assert.Equal(t, "phone-1", DeviceIDFromRequest(r))
}
