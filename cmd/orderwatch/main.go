// Command orderwatch tails the admin order event stream over WebSocket.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"cookiebox/internal/events"
)

type wsMessage struct {
	Type  string        `json:"type"`
	Event *events.Event `json:"event,omitempty"`
	TS    time.Time     `json:"ts,omitempty"`
}

func main() {
	base := flag.String("url", envOr("COOKIEBOX_URL", "http://localhost:8080"), "API base URL")
	token := flag.String("token", os.Getenv("COOKIEBOX_TOKEN"), "admin bearer token")
	user := flag.String("user", os.Getenv("ADMIN_USER"), "admin basic-auth user")
	pass := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin basic-auth password")
	only := flag.String("type", "", "comma-separated event types to show (default all)")
	asJSON := flag.Bool("json", false, "print raw event JSON")
	flag.Parse()

	u, err := wsURL(*base)
	if err != nil {
		log.Fatalf("url: %v", err)
	}
	hdr := http.Header{}
	switch {
	case *token != "":
		hdr.Set("Authorization", "Bearer "+*token)
	case *user != "":
		hdr.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(*user+":"+*pass)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, resp, err := websocket.DefaultDialer.DialContext(ctx, u, hdr)
	if err != nil {
		if resp != nil {
			log.Fatalf("dial %s: %v (HTTP %d)", u, err, resp.StatusCode)
		}
		log.Fatalf("dial %s: %v", u, err)
	}
	defer func() { _ = c.Close() }()

	filter := map[string]bool{}
	for _, t := range strings.Split(*only, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = true
		}
	}

	go func() {
		<-ctx.Done()
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.Close()
	}()

	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			if ctx.Err() == nil {
				log.Printf("read: %v", err)
			}
			return
		}
		switch m.Type {
		case "connection_ack":
			log.Printf("connected to %s", u)
		case "event":
			if m.Event == nil || (len(filter) > 0 && !filter[m.Event.Type]) {
				continue
			}
			if *asJSON {
				b, _ := json.Marshal(m.Event)
				fmt.Println(string(b))
				continue
			}
			fmt.Println(format(*m.Event))
		}
	}
}

func format(e events.Event) string {
	line := fmt.Sprintf("%s %-26s %-14s %s", e.TS.Local().Format("15:04:05"), e.Type, e.OrderNumber, e.PaymentOrderID)
	if e.PaymentStatus != "" || e.ShipmentStatus != "" {
		line += fmt.Sprintf(" payment=%s shipment=%s", e.PaymentStatus, e.ShipmentStatus)
	}
	if e.Message != "" {
		line += " " + e.Message
	}
	return line
}

func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/admin/events/ws"
	return u.String(), nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
