package middleware

import (
	"errors"
	"strconv"
	"time"

	"relay/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// Metrics records request count and duration by method, route and status.
func Metrics(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}

	labels := []string{c.Method(), c.Route().Path, strconv.Itoa(status)}
	metrics.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	return err
}
