package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/app"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/config"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/world"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher tails the event log and POSTs matching events to
// each configured target. Each target keeps its own cursor, so a slow
// webhook never holds back a fast one. Delivery is at-least-once: the
// cursor only advances past an event once its POST succeeded.
type webhookDispatcher struct {
	world    world.Store
	targets  []config.WebhookTarget
	client   *http.Client
	interval time.Duration

	mu      sync.Mutex
	cursors map[int]int64

	stopOnce sync.Once
	stop     chan struct{}
}

func startWebhookDispatcher(a *app.App) *webhookDispatcher {
	if a.Config == nil || len(a.Config.Webhooks) == 0 {
		return nil
	}
	d := newWebhookDispatcher(a.World, a.Config.Webhooks)
	go d.run()
	return d
}

func newWebhookDispatcher(w world.Store, targets []config.WebhookTarget) *webhookDispatcher {
	return &webhookDispatcher{
		world:    w,
		targets:  targets,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		interval: defaultWebhookInterval,
		cursors:  make(map[int]int64),
		stop:     make(chan struct{}),
	}
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		select {
		case <-ticker.C:
		case <-d.stop:
			return
		}
	}
}

func (d *webhookDispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

func (d *webhookDispatcher) dispatchAll() {
	for i, target := range d.targets {
		if strings.TrimSpace(target.URL) == "" {
			continue
		}
		d.dispatchTarget(i, target)
	}
}

func (d *webhookDispatcher) dispatchTarget(idx int, target config.WebhookTarget) {
	ctx := context.Background()
	cursor := d.cursorFor(ctx, idx)
	events, err := d.world.EventsSince(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		log.Warn().Err(err).Msg("webhook: fetch events failed")
		return
	}
	if len(events) == 0 {
		return
	}
	filter := newEventFilter(target.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, target, evt); err != nil {
			log.Warn().Err(err).Str("url", target.URL).Int64("event_id", evt.ID).
				Msg("webhook: delivery failed")
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

// cursorFor lazily initializes a target's cursor to the newest event so
// a fresh boot never replays history into the webhook.
func (d *webhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.world.LatestEventID(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("webhook: init cursor failed")
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Actor   string          `json:"actor"`
	TS      string          `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, target config.WebhookTarget, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:      evt.ID,
		Type:    evt.Type,
		Actor:   evt.Actor,
		TS:      evt.CreatedAt,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Nexus-Event", evt.Type)
	req.Header.Set("X-Nexus-Delivery", fmt.Sprintf("%d", evt.ID))
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
