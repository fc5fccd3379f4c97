package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/tokens":                  "/v1/tokens",
		"/v1/tokens/batch":            "/v1/tokens/batch",
		"/v1/tokens/admin":            "/v1/tokens/admin",
		"/v1/tokens/resolve":          "/v1/tokens/resolve",
		"/v1/tokens/01ABC.secret":     "/v1/tokens/:credential",
		"/v1/tenants/42":              "/v1/tenants/:id",
		"/v1/tenants/42/courses":      "/v1/tenants/:id/courses",
		"/v1/tenants/42/users?dept=7": "/v1/tenants/:id/users",
		"/v1/batches":                 "/v1/batches",
		"/v1/batches/01XYZ":           "/v1/batches/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
