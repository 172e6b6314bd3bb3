package utils

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/echook/telemetry-manager-go/log"
)

const retryInterval = 200 * time.Millisecond

// WaitForTCP blocks until addr accepts a TCP connection or timeout expires.
func WaitForTCP(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	start := time.Now()
	log.Debug("wait for tcp connection",
		log.String("addr", addr),
		log.Duration("timeout", timeout))
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, retryInterval)
		if err == nil {
			conn.Close()
			log.Debug("tcp connection successful",
				log.String("addr", addr),
				log.Duration("duration", time.Since(start)))
			return nil
		}
		time.Sleep(retryInterval)
	}
	return fmt.Errorf("%s could not be reached after %v", addr, timeout)
}

// WaitForHTTPResponse blocks until rawURL answers an HTTP request or timeout
// expires. Any status code counts as reachable.
func WaitForHTTPResponse(rawURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	start := time.Now()
	log.Debug("wait for http response",
		log.String("url", rawURL),
		log.Duration("timeout", timeout))
	cli := &http.Client{Timeout: time.Second}
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(
			context.Background(), http.MethodGet, rawURL, http.NoBody)
		if resp, err := cli.Do(req); err == nil {
			resp.Body.Close()
			log.Debug("http response received",
				log.String("url", rawURL),
				log.Duration("duration", time.Since(start)))
			return nil
		}
		time.Sleep(retryInterval)
	}
	return fmt.Errorf("%s could not be reached after %v", rawURL, timeout)
}

// ExtractFromWebsocketURL returns the host:port and scheme of a ws/wss URL,
// defaulting the port when the URL carries none.
func ExtractFromWebsocketURL(rawURL string) (addr, proto string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	switch u.Scheme {
	case "ws":
		return withDefaultPort(u.Host, "80"), u.Scheme
	case "wss":
		return withDefaultPort(u.Host, "443"), u.Scheme
	default:
		return "", ""
	}
}

// ExtractFromDBURL returns the host:port of a postgresql URL, defaulting the
// port to 5432 when the URL carries none.
func ExtractFromDBURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "postgresql" && u.Scheme != "postgres") {
		return ""
	}
	return withDefaultPort(u.Host, "5432")
}

func withDefaultPort(host, port string) string {
	if host == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}
