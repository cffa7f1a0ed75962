package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/parley/chat-app/loadtest/client"
	"github.com/parley/chat-app/loadtest/stats"
)

// runChat implements the message fanout load test. It registers pairs of
// users, connects both sides, and has the first user of each pair send a
// stream of realtime messages addressed to both. The receiving side decodes
// the send timestamp embedded in the message content to measure end-to-end
// delivery latency through the registry and fanout engine.
func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:3000/ws", "WebSocket server URL")
	api := fs.String("api", "http://localhost:3000", "REST API base URL")
	metricsURL := fs.String("metrics", "", "Prometheus metrics URL to scrape during the test (optional)")
	pairs := fs.Int("pairs", 50, "Number of user pairs")
	messages := fs.Int("messages", 20, "Messages sent per pair")
	interval := fs.Duration("interval", 600*time.Millisecond, "Delay between messages (keep under the per-user rate limit)")
	fs.Parse(args)

	fmt.Printf("Chat test: %d pairs, %d messages each to %s (interval=%s)\n",
		*pairs, *messages, *url, *interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	if *metricsURL != "" {
		scraper := stats.NewScraper(*metricsURL, 5*time.Second)
		scraper.Start(ctx)
		defer scraper.Stop()
		collector.SetScraper(scraper)
	}

	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pair int) {
			defer wg.Done()
			runPair(ctx, collector, *url, *api, *messages, *interval)
		}(i)
	}
	wg.Wait()

	fmt.Printf("\nAll pairs finished: %d deliveries measured, %d errors\n",
		collector.MsgLatencyCount(), collector.ErrorCount())
	collector.Report()
}

// runPair registers two users, connects both, and streams messages from the
// sender to the pair while the receiver records delivery latencies.
func runPair(ctx context.Context, collector *stats.Collector, url, api string, messages int, interval time.Duration) {
	sender, err := registerUser(api, "chat-sender")
	if err != nil {
		collector.AddError()
		return
	}
	receiver, err := registerUser(api, "chat-receiver")
	if err != nil {
		collector.AddError()
		return
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	senderConn, err := client.New(connCtx, url, sender.UserID, sender.Token)
	if err != nil {
		collector.AddError()
		return
	}
	defer senderConn.Close()
	collector.AddConnect(senderConn.GetMetrics().ConnectLatency)

	receiverConn, err := client.New(connCtx, url, receiver.UserID, receiver.Token)
	if err != nil {
		collector.AddError()
		return
	}
	defer receiverConn.Close()
	collector.AddConnect(receiverConn.GetMetrics().ConnectLatency)

	received := make(chan struct{}, messages)
	receiverConn.On(client.EventNewMessage, func(data json.RawMessage) {
		var payload struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		sentNanos, err := strconv.ParseInt(payload.Message.Content, 10, 64)
		if err != nil {
			return
		}
		collector.AddMsgLatency(time.Since(time.Unix(0, sentNanos)))
		select {
		case received <- struct{}{}:
		default:
		}
	})

	chatID := randHex(12)
	members := []string{sender.UserID, receiver.UserID}

	// Both sides mark themselves in the chat view so the presence snapshots
	// are exercised alongside the message stream.
	_ = senderConn.Send(client.EventChatJoined, map[string]interface{}{
		"userId": sender.UserID, "members": members,
	})
	_ = receiverConn.Send(client.EventChatJoined, map[string]interface{}{
		"userId": receiver.UserID, "members": members,
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; i < messages; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := senderConn.Send(client.EventNewMessage, map[string]interface{}{
			"chatId":  chatID,
			"members": members,
			"message": strconv.FormatInt(time.Now().UnixNano(), 10),
		})
		if err != nil {
			collector.AddError()
			return
		}
	}

	// Give stragglers a moment to arrive before tearing down.
	deadline := time.After(5 * time.Second)
	for i := 0; i < messages; i++ {
		select {
		case <-received:
		case <-deadline:
			return
		case <-ctx.Done():
			return
		}
	}

	_ = senderConn.Send(client.EventChatLeft, map[string]interface{}{
		"userId": sender.UserID, "members": members,
	})
	_ = receiverConn.Send(client.EventChatLeft, map[string]interface{}{
		"userId": receiver.UserID, "members": members,
	})
}
