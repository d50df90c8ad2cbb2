package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"request-guard/middleware/ratelimit/domain"
)

// webhookAlert envia o evento crítico como JSON para url, fora do caminho da requisição.
func webhookAlert(url string, logger *slog.Logger) domain.AlertHook {
	client := &http.Client{Timeout: 5 * time.Second}
	return func(ev domain.SecurityEvent) {
		go func() {
			if err := postEvent(client, url, ev); err != nil {
				logger.Error("critical alert webhook failed", "id", ev.ID, "error", err)
			}
		}()
	}
}

func postEvent(client *http.Client, url string, ev domain.SecurityEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}
