package main

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort      = "8081"
	defaultAPIKey    = "geocoder-secret-key"
	defaultLatencyMs = "50"
)

type GeocodeResponse struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	Confidence       float64 `json:"confidence"`
	FormattedAddress string  `json:"formatted_address"`
	PostalCode       string  `json:"postal_code,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var (
	apiKey    = getEnv("API_KEY", defaultAPIKey)
	latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)
	// PROVIDER_NAME lets two instances act as primary and secondary.
	providerName = getEnv("PROVIDER_NAME", "mock-geocoder")
)

func main() {
	port := getEnv("PORT", defaultPort)

	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/geocode", handleGeocode)

	log.Printf("mock geocoder %q starting on port %s (latency %dms)", providerName, port, latencyMs)

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": providerName,
	})
}

// Magic substrings in the query let tests drive each failure category.
var failures = map[string]int{
	"NOWHERE":   http.StatusNotFound,
	"RATELIMIT": http.StatusTooManyRequests,
	"OUTAGE":    http.StatusServiceUnavailable,
	"FORBIDDEN": http.StatusForbidden,
}

func handleGeocode(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)

	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if key := r.Header.Get("X-API-Key"); key != apiKey {
		sendError(w, "Missing or invalid X-API-Key header", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		sendError(w, "q is required", http.StatusBadRequest)
		return
	}
	upper := strings.ToUpper(q)
	for marker, code := range failures {
		if strings.Contains(upper, marker) {
			sendError(w, "simulated "+strings.ToLower(marker), code)
			return
		}
	}
	if strings.Contains(upper, "SLOWPOKE") {
		// Longer than any sane client timeout.
		time.Sleep(30 * time.Second)
	}

	resp := locate(q, r.URL.Query().Get("postal_code"))
	if strings.Contains(upper, "GARBLED") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"formatted_address":`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
	log.Printf("geocoded %q -> %.5f,%.5f (%.2f)", q, resp.Lat, resp.Lon, resp.Confidence)
}

// locate derives stable coordinates from the query so repeated lookups of
// one address agree.
func locate(q, postal string) GeocodeResponse {
	sum := sha256.Sum256([]byte(q))
	a := binary.BigEndian.Uint32(sum[0:4])
	b := binary.BigEndian.Uint32(sum[4:8])
	c := sum[8]

	return GeocodeResponse{
		Lat:              -60 + float64(a%120_000_000)/1_000_000,
		Lon:              -180 + float64(b%360_000_000)/1_000_000,
		Confidence:       0.6 + float64(c%40)/100,
		FormattedAddress: strings.ReplaceAll(q, "|", ", "),
		PostalCode:       postal,
	}
}

func sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
	log.Printf("error response: %d - %s", code, message)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid integer value for %s, using default: %s", key, defaultValue)
		intValue, _ = strconv.Atoi(defaultValue)
	}
	return intValue
}
