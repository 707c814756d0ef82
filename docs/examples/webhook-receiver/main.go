// CitaFacil Webhook Receiver Example
//
// A minimal receiver that verifies CitaFacil notification deliveries.
//
// Usage:
//   export CITAFACIL_WEBHOOK_SECRET="whsec_your_secret_here"
//   go run main.go
//
// Then start CitaFacil with WEBHOOK_URL=http://localhost:9000/webhook,
// the same WEBHOOK_SECRET and WEBHOOK_ALLOW_INSECURE=true.

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Delivery is the webhook body.
type Delivery struct {
	EventType string       `json:"event_type"`
	EventID   string       `json:"event_id"`
	Timestamp time.Time    `json:"timestamp"`
	Data      Notification `json:"data"`
}

type Notification struct {
	Kind          string `json:"kind"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	UserID        string `json:"user_id"`
	AppointmentID string `json:"appointment_id"`
}

func main() {
	secret := os.Getenv("CITAFACIL_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("CITAFACIL_WEBHOOK_SECRET environment variable is required")
	}

	http.HandleFunc("/webhook", webhookHandler(secret))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting webhook receiver on :9000")
	log.Println("Endpoint: http://localhost:9000/webhook")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func webhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Printf("Error reading body: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		signature := r.Header.Get("X-CitaFacil-Signature")
		timestamp := r.Header.Get("X-CitaFacil-Timestamp")
		if signature == "" || timestamp == "" {
			log.Println("Missing signature headers")
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}

		if !verifySignature(signature, timestamp, body, secret) {
			log.Println("Invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		var d Delivery
		if err := json.Unmarshal(body, &d); err != nil {
			log.Printf("Error parsing JSON: %v", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		log.Printf("✓ Received %s (%s)", d.EventType, r.Header.Get("X-CitaFacil-Delivery-Id"))
		log.Printf("  Title:       %s", d.Data.Title)
		log.Printf("  Message:     %s", d.Data.Message)
		log.Printf("  Appointment: %s", d.Data.AppointmentID)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	}
}

// verifySignature checks the hex HMAC-SHA256 of "{timestamp}.{body}".
func verifySignature(signature, timestamp string, body []byte, secret string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	// ±5 min tolerance
	if math.Abs(float64(time.Now().Unix()-ts)) > 300 {
		log.Println("Signature timestamp too old or in future")
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(body)))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
