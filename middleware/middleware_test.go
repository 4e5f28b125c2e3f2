package middleware

import (
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func adminApp() *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminAuthMiddleware("s3cret"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminAuthMiddleware(t *testing.T) {
	app := adminApp()
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong", "Bearer nope", fiber.StatusUnauthorized},
		{"correct", "Bearer s3cret", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func participantApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/me", ParticipantContextMiddleware(secret), func(c *fiber.Ctx) error {
		return c.SendString(strconv.FormatInt(ParticipantID(c), 10))
	})
	return app
}

func signed(t *testing.T, secret, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestParticipantContextMiddleware(t *testing.T) {
	const secret = "jwt-secret"
	app := participantApp(secret)

	cases := []struct {
		name    string
		headers map[string]string
		want    int
		body    string
	}{
		{"header without token", map[string]string{"X-Participant-ID": "7"}, fiber.StatusUnauthorized, ""},
		{"header does not override token", map[string]string{
			"X-Participant-ID": "7",
			"Authorization":    "Bearer " + signed(t, secret, "42"),
		}, fiber.StatusOK, "42"},
		{"jwt", map[string]string{"Authorization": "Bearer " + signed(t, secret, "42")}, fiber.StatusOK, "42"},
		{"wrong secret", map[string]string{"Authorization": "Bearer " + signed(t, "other", "42")}, fiber.StatusUnauthorized, ""},
		{"non-numeric subject", map[string]string{"Authorization": "Bearer " + signed(t, secret, "alice")}, fiber.StatusUnauthorized, ""},
		{"no identity", nil, fiber.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
			if tc.body != "" {
				buf := make([]byte, 32)
				n, _ := resp.Body.Read(buf)
				if got := string(buf[:n]); got != tc.body {
					t.Fatalf("participant = %q, want %q", got, tc.body)
				}
			}
		})
	}
}

func TestParticipantHeaderFromGateway(t *testing.T) {
	app := participantApp("")
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"header", "7", fiber.StatusOK},
		{"invalid header", "abc", fiber.StatusUnauthorized},
		{"negative header", "-3", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			req.Header.Set("X-Participant-ID", tc.header)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestParticipantTokenIgnoredWithoutSecret(t *testing.T) {
	app := participantApp("")
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, "anything", "42"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
