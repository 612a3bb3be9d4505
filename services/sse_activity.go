package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"blackpass-api/models"

	"github.com/gofiber/fiber/v2"
)

// feedReorderWindow bounds how long after a newer row an older one may still
// commit. Each poll re-reads this much history behind the newest delivered row.
const feedReorderWindow = 30 * time.Second

// feedCursor tracks what a stream has delivered. created_at is stamped before
// commit, so rows can become visible out of order; the cursor re-reads a
// trailing window and remembers delivered ids inside it.
type feedCursor struct {
	floor time.Time // rows older than the stream's start are never sent
	at    time.Time // newest created_at delivered
	seen  map[string]time.Time
}

func newFeedCursor(start time.Time) *feedCursor {
	return &feedCursor{floor: start, at: start, seen: make(map[string]time.Time)}
}

// from is the lower bound of the next re-query.
func (fc *feedCursor) from() time.Time {
	from := fc.at.Add(-feedReorderWindow)
	if from.Before(fc.floor) {
		return fc.floor
	}
	return from
}

func (fc *feedCursor) mark(ev models.ActivityEvent) {
	fc.seen[ev.ID] = ev.CreatedAt
	if ev.CreatedAt.After(fc.at) {
		fc.at = ev.CreatedAt
	}
}

// advance filters events (oldest first, created_at >= from) down to the ones
// not yet delivered, then forgets ids that fell out of the window.
func (fc *feedCursor) advance(events []models.ActivityEvent) []models.ActivityEvent {
	var fresh []models.ActivityEvent
	for _, ev := range events {
		if ev.CreatedAt.Before(fc.floor) {
			continue
		}
		if _, ok := fc.seen[ev.ID]; ok {
			continue
		}
		fc.mark(ev)
		fresh = append(fresh, ev)
	}

	from := fc.from()
	for id, at := range fc.seen {
		if at.Before(from) {
			delete(fc.seen, id)
		}
	}
	return fresh
}

// StreamActivitySSE streams feed rows and wallet balances for the
// authenticated user. Broker messages only trigger a re-query; the ticker
// re-queries regardless so missed hints are recovered.
func (s *ActivityService) StreamActivitySSE(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	done := c.Context().Done()
	sub := s.Broker.Subscribe(userID, "*", ChangeAny)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		ticker := time.NewTicker(s.PollInterval)
		defer ticker.Stop()

		ctx := context.Background()
		var cursor *feedCursor
		if latest, err := s.Latest(ctx, userID); err != nil {
			log.Printf("[SSE] init error for user %s: %v", userID, err)
			cursor = newFeedCursor(time.Now().UTC())
		} else if latest != nil {
			cursor = newFeedCursor(latest.CreatedAt)
			cursor.mark(*latest)
		} else {
			cursor = newFeedCursor(time.Now().UTC())
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case change, ok := <-sub.C:
				if !ok {
					w.WriteString("event: session_ended\ndata: {}\n\n")
					w.Flush()
					return
				}
				if change.Table == "user_wallets" {
					s.writeWallets(ctx, w, userID)
				} else {
					s.writeActivity(ctx, w, userID, cursor)
				}

			case <-ticker.C:
				if s.writeActivity(ctx, w, userID, cursor) == 0 {
					w.WriteString(": ping\n\n")
				}

			case <-done:
				return
			}

			if err := w.Flush(); err != nil {
				// Client disconnected
				return
			}
		}
	})

	return nil
}

func (s *ActivityService) writeActivity(ctx context.Context, w *bufio.Writer, userID string, cursor *feedCursor) int {
	events, err := s.Since(ctx, userID, cursor.from())
	if err != nil {
		log.Printf("[SSE] query error for user %s: %v", userID, err)
		return 0
	}
	fresh := cursor.advance(events)
	for _, ev := range fresh {
		payload, _ := json.Marshal(ev)
		fmt.Fprintf(w, "id: %s\nevent: activity\ndata: %s\n\n", ev.ID, payload)
	}
	return len(fresh)
}

func (s *ActivityService) writeWallets(ctx context.Context, w *bufio.Writer, userID string) {
	var wallets []models.UserWallet
	if err := s.DB.WithContext(ctx).Preload("Token").Where("user_id = ?", userID).Find(&wallets).Error; err != nil {
		log.Printf("[SSE] wallet query error for user %s: %v", userID, err)
		return
	}
	payload, _ := json.Marshal(wallets)
	fmt.Fprintf(w, "event: wallet\ndata: %s\n\n", payload)
}
