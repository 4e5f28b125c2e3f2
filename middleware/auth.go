// middleware/auth.go
package middleware

import (
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const participantIDKey = "participant_id"

// ParticipantContextMiddleware resolves the caller's participant id. With a
// jwtSecret only an HS256 Bearer token with a numeric subject is accepted and
// X-Participant-ID is ignored. Without one the service sits behind a gateway
// that sets X-Participant-ID.
func ParticipantContextMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw := strings.TrimSpace(c.Get("X-Participant-ID")); raw != "" && jwtSecret == "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid X-Participant-ID",
				})
			}
			c.Locals(participantIDKey, id)
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if jwtSecret == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			log.Printf("❌ [PARTICIPANT_CTX] no participant identity on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "participant identity required",
			})
		}

		id, err := participantFromToken(strings.TrimPrefix(authHeader, "Bearer "), jwtSecret)
		if err != nil {
			log.Printf("❌ [PARTICIPANT_CTX] rejected token on %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "bad token",
			})
		}
		c.Locals(participantIDKey, id)
		return c.Next()
	}
}

// ParticipantID returns the id set by ParticipantContextMiddleware, or 0.
func ParticipantID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(participantIDKey).(int64)
	return id
}

func participantFromToken(tokenStr, secret string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return 0, err
	}
	if !tok.Valid {
		return 0, jwt.ErrTokenInvalidClaims
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, jwt.ErrTokenInvalidSubject
	}
	return id, nil
}
