package gateway

import (
	"time"

	"github.com/fieldware/sessiongate"
	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
)

// HeaderRequestID carries the request id back to the caller and into the log
// line, so a client-reported failure can be matched to a server entry.
const HeaderRequestID = "X-Request-Id"

const requestIDKey = "request_id"

// RequestLogger tags every request with a ULID and logs method, path,
// status, and latency once the handler chain finishes. Bodies are never
// logged; login and register payloads carry passwords.
func RequestLogger(logger sessiongate.Logger) fiber.Handler {
	if logger == nil {
		logger = sessiongate.DefaultLogger()
	}

	return func(c *fiber.Ctx) error {
		rid := c.Get(HeaderRequestID)
		if rid == "" {
			rid = ulid.Make().String()
		}

		c.Locals(requestIDKey, rid)
		c.Set(HeaderRequestID, rid)

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		logger.Info("%s %s status=%d duration=%s request_id=%s",
			c.Method(), c.Path(), status, time.Since(start), rid)

		return err
	}
}

// RequestIDFromCtx returns the id RequestLogger assigned to this request.
func RequestIDFromCtx(c *fiber.Ctx) string {
	if rid, ok := c.Locals(requestIDKey).(string); ok {
		return rid
	}
	return ""
}
