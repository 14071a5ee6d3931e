package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// streamKeepAlive is the interval between SSE comment pings.
const streamKeepAlive = 15 * time.Second

// StreamJackpotSSE pushes the live jackpot feed (ticket sales, draws, winner announcements).
// The first frame is a status snapshot so clients can render before the next event arrives.
func (s *JackpotService) StreamJackpotSSE(c *fiber.Ctx) error {
	if s.stream == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "live feed not configured",
		})
	}
	snapshot, err := s.GetRoundStatus(c.UserContext())
	if err != nil {
		return respondError(c, s.log, err)
	}
	initial, err := sseFrame("snapshot", snapshot)
	if err != nil {
		s.log.Error("marshal stream snapshot", zap.Int64("round_number", snapshot.RoundNumber), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "could not build jackpot snapshot",
		})
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	frames, leave := s.stream.Subscribe()
	done := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer leave()
		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()

		w.Write(initial)
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case f, ok := <-frames:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, f.Data)
				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}
			case <-ticker.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})

	s.log.Debug("jackpot stream opened", zap.String("ip", c.IP()))
	return nil
}

// sseFrame encodes v as one SSE event.
func sseFrame(event string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event, data), nil
}
