package config

import (
	"fmt"
	"os"
)

// Client CLI defaults.
const (
	DefaultServerURL = "ws://localhost:8080/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Client holds the client-side configuration: where the relay lives and which
// ICE servers to hand to the handshake engine.
type Client struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// ClientOptions carry CLI flag overrides into LoadClient.
type ClientOptions struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// LoadClient resolves client configuration with the priority
// CLI flags > environment variables > defaults.
func LoadClient(opts ClientOptions) *Client {
	return &Client{
		ServerURL:  firstOf(opts.ServerURL, os.Getenv("CONCORD_SERVER_URL"), DefaultServerURL),
		STUNServer: firstOf(opts.STUNServer, os.Getenv("CONCORD_STUN_SERVER"), DefaultSTUN),
		TURNServer: firstOf(opts.TURNServer, os.Getenv("CONCORD_TURN_SERVER"), ""),
		TURNUser:   firstOf(opts.TURNUser, os.Getenv("CONCORD_TURN_USERNAME"), ""),
		TURNPass:   firstOf(opts.TURNPass, os.Getenv("CONCORD_TURN_PASSWORD"), ""),
	}
}

// STUNServers returns the STUN server URLs.
func (c *Client) STUNServers() []string {
	return []string{c.STUNServer}
}

// TURNServers returns the TURN server URLs, or nil when TURN is not
// configured.
func (c *Client) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// TURNCredentials returns the TURN username and password.
func (c *Client) TURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
