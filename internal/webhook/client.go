package webhook

import (
	"net"
	"net/http"
	"time"
)

const (
	// ClientTimeout is the total request timeout.
	ClientTimeout = 10 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 5 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 5 * time.Second
)

// NewHTTPClient creates an HTTP client configured for webhook delivery.
// It does not follow redirects.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Header names for webhook requests.
const (
	HeaderSignature  = "X-CitaFacil-Signature"
	HeaderTimestamp  = "X-CitaFacil-Timestamp"
	HeaderDeliveryID = "X-CitaFacil-Delivery-Id"
	HeaderEvent      = "X-CitaFacil-Event"
)

// setHeaders applies the delivery headers to req.
func setHeaders(req *http.Request, signature, timestamp, deliveryID, event string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderDeliveryID, deliveryID)
	req.Header.Set(HeaderEvent, event)
	req.Header.Set("User-Agent", "CitaFacil-Webhook/1.0")
}
