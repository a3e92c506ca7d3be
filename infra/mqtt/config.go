package mqtt

import "fmt"

// Config defines the connection parameters for a printer session.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	// Serial skips identity probing when set, for devices whose serial is
	// already known.
	Serial                string `json:"serial"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds"`
	ReplyTimeoutSeconds   int    `json:"reply_timeout_seconds"`
}

// SetDefaults applies the device conventions: MQTT over TLS on 8883 and the
// fixed "bblp" local access account.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8883
	}
	if c.Username == "" {
		c.Username = "bblp"
	}
	if c.ConnectTimeoutSeconds == 0 {
		c.ConnectTimeoutSeconds = 30
	}
	if c.ReplyTimeoutSeconds == 0 {
		c.ReplyTimeoutSeconds = 60
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}
