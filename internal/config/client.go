package config

import (
	"fmt"
	"os"
)

// Default configuration values.
const (
	DefaultServerURL = "ws://localhost:8080/ws"

	// Public STUN pair used when none is configured.
	DefaultSTUN        = "stun:stun.l.google.com:19302"
	DefaultSTUNBackup  = "stun:global.stun.twilio.com:3478"
	DefaultTURN        = ""
	DefaultTURNUser    = ""
	DefaultTURNPass    = ""
)

// Client holds the CLI's configuration.
type Client struct {
	// ServerURL is the websocket URL of the signaling relay.
	ServerURL string

	// ICE servers for WebRTC.
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts ICE to relayed candidates.
	ForceRelay bool
}

// Options carries CLI flag overrides into Load.
type Options struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads client configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Client, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv("MEET_SERVER_URL"), DefaultServerURL)

	stun := firstNonEmpty(opts.STUNServer, os.Getenv("MEET_STUN_SERVER"))
	stunServers := []string{DefaultSTUN, DefaultSTUNBackup}
	if stun != "" {
		stunServers = []string{stun}
	}

	turn := firstNonEmpty(opts.TURNServer, os.Getenv("MEET_TURN_SERVER"), DefaultTURN)
	turnUser := firstNonEmpty(opts.TURNUser, os.Getenv("MEET_TURN_USERNAME"), DefaultTURNUser)
	turnPass := firstNonEmpty(opts.TURNPass, os.Getenv("MEET_TURN_PASSWORD"), DefaultTURNPass)

	cfg := &Client{
		ServerURL:   serverURL,
		STUNServers: stunServers,
		TURNServer:  turn,
		TURNUser:    turnUser,
		TURNPass:    turnPass,
		ForceRelay:  opts.ForceRelay,
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without a TURN server configured")
	}
	return cfg, nil
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password.
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
