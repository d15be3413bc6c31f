package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

// serverConfig is the decoded shape of https://www.<host>/_js/serverconfig.js.
type serverConfig struct {
	ChatServers      []string          `json:"chat_servers"`
	WebsocketServers map[string]string `json:"websocket_servers"`
}

// discoverServerConfig fetches and parses the server config for host via
// getter, then picks a random target for the selected dialect: a random
// chat_servers entry for the binary dialect, or a random
// websocket_servers key for the text dialect.
func discoverServerConfig(ctx context.Context, getter HTTPGetter, host string, useWebSocket bool) (string, error) {
	url := fmt.Sprintf("https://www.%s/_js/serverconfig.js?nc=%d", host, rand.Int64())

	body, err := getter.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch server config: %w", err)
	}

	var cfg serverConfig
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return "", fmt.Errorf("parse server config: %w", err)
	}

	if useWebSocket {
		if len(cfg.WebsocketServers) == 0 {
			return "", fmt.Errorf("server config carries no websocket_servers")
		}
		return randomKey(cfg.WebsocketServers) + "." + host, nil
	}

	if len(cfg.ChatServers) == 0 {
		return "", fmt.Errorf("server config carries no chat_servers")
	}
	return cfg.ChatServers[rand.IntN(len(cfg.ChatServers))] + "." + host, nil
}

func randomKey(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys[rand.IntN(len(keys))]
}
