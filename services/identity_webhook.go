package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const svixTolerance = 5 * time.Minute

// VerifySvixSignature checks a Clerk webhook: the base64 HMAC-SHA256 of
// "<svix-id>.<svix-timestamp>.<body>" keyed with the decoded whsec_ secret
// must match one of the v1 signatures in the header.
func VerifySvixSignature(secret, msgID, timestamp string, body []byte, signatures string, now time.Time) bool {
	if secret == "" || msgID == "" || timestamp == "" || signatures == "" {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	sent := time.Unix(ts, 0)
	if now.Sub(sent) > svixTolerance || sent.Sub(now) > svixTolerance {
		return false
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, sig := range strings.Fields(signatures) {
		version, value, ok := strings.Cut(sig, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(expected), []byte(value)) {
			return true
		}
	}
	return false
}

// IdentityEvent is the envelope of a Clerk webhook.
type IdentityEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SubjectOf returns the user a session or user event concerns.
func (e IdentityEvent) SubjectOf() string {
	var data struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return ""
	}
	if strings.HasPrefix(e.Type, "session.") {
		return data.UserID
	}
	return data.ID
}

// EndsSession reports whether the event means the user is signed out.
func (e IdentityEvent) EndsSession() bool {
	switch e.Type {
	case "session.ended", "session.removed", "session.revoked", "user.deleted":
		return true
	}
	return false
}
