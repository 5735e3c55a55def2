package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// defaultSignatureTolerance ограничивает возраст подписанного payload
// (защита от replay).
const defaultSignatureTolerance = 5 * time.Minute

// verifyPaymentSignature проверяет подпись вида "t=<unix>,v1=<hex>":
// HMAC-SHA256(secret, "<t>.<body>"). Сравнение — constant-time.
func verifyPaymentSignature(header string, secret, body []byte, now time.Time, tolerance time.Duration) error {
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var (
		tsRaw string
		sig   string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			tsRaw = value
		case "v1":
			sig = value
		}
	}
	if tsRaw == "" || sig == "" {
		return fmt.Errorf("malformed signature header")
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed signature timestamp: %w", err)
	}
	if tolerance <= 0 {
		tolerance = defaultSignatureTolerance
	}
	signedAt := time.Unix(ts, 0)
	if signedAt.Before(now.Add(-tolerance)) || signedAt.After(now.Add(tolerance)) {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	provided, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(tsRaw))
	mac.Write([]byte("."))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// signPaymentPayload строит подпись в формате заголовка платёжного webhook.
// Используется тестами и локальными инструментами.
func signPaymentPayload(secret, body []byte, at time.Time) string {
	tsRaw := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(tsRaw))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", tsRaw, hex.EncodeToString(mac.Sum(nil)))
}

// supplierAuthorized принимает либо shared-secret заголовок, либо bearer-токен
// с тем же секретом. Сравнение — constant-time.
func supplierAuthorized(headerSecret, bearer string, secret string) bool {
	if secret == "" {
		return false
	}
	if headerSecret != "" && secretEqual(headerSecret, secret) {
		return true
	}
	if token, ok := strings.CutPrefix(bearer, "Bearer "); ok {
		return secretEqual(token, secret)
	}
	return false
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
