package room

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
)

const (
	DefaultTokenTTL = time.Hour
	GuestName       = "Guest User"
)

type TokenIssuer struct {
	APIKey    string
	APISecret string
	TTL       time.Duration
}

func (i TokenIssuer) Issue(identity, name, roomName string) (string, error) {
	if i.APIKey == "" || i.APISecret == "" {
		return "", fmt.Errorf("livekit credentials not configured")
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	token := auth.NewAccessToken(i.APIKey, i.APISecret).
		SetVideoGrant(&auth.VideoGrant{RoomJoin: true, Room: roomName}).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(ttl)

	jwt, err := token.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return jwt, nil
}

func NewIdentity() string {
	return "user_" + shortID()
}

func NewRoomName(prefix string) string {
	return prefix + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
