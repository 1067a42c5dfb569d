package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/music-room/internal/domain"

	"github.com/disgoorg/snowflake/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultRemoteBaseURL  = "https://discord.com/api/v10"
	DefaultRemoteTimeout  = 5 * time.Second
	DefaultRemoteCacheTTL = time.Hour
	defaultCacheSize      = 4096
)

type RemoteConfig struct {
	BaseURL   string
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
}

// RemoteVerifier asks an OAuth identity API who owns the token
// (GET {base}/users/@me) and caches the answer.
type RemoteVerifier struct {
	baseURL string
	client  *http.Client
	cache   *expirable.LRU[string, domain.Identity]
}

func NewRemoteVerifier(cfg RemoteConfig, client *http.Client) *RemoteVerifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRemoteBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRemoteTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultRemoteCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &RemoteVerifier{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		cache:   expirable.NewLRU[string, domain.Identity](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

type remoteUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, ErrMissingToken
	}
	key := cacheKey(token)
	if id, ok := v.cache.Get(key); ok {
		return id, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/users/@me", nil)
	if err != nil {
		return domain.Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Identity{}, ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.Identity{}, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var u remoteUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	sf, err := snowflake.Parse(u.ID)
	if err != nil || sf == 0 {
		return domain.Identity{}, ErrInvalidSubject
	}

	id := domain.Identity{
		ID:        sf.String(),
		Name:      u.GlobalName,
		AvatarURL: avatarURL(sf, u.Avatar),
	}
	if id.Name == "" {
		id.Name = u.Username
	}
	v.cache.Add(key, id)
	slog.Debug("identity.Verify: cached", slog.String("user_id", id.ID))

	return id, nil
}

// cache keys are token digests
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func avatarURL(id snowflake.ID, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", id, hash)
}
