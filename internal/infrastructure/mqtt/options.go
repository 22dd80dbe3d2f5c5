package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/nodeward/internal/infrastructure/config"
)

const (
	connectTimeout  = 10 * time.Second
	publishTimeout  = 5 * time.Second
	keepAlive       = 60 * time.Second
	quiesceMillis   = 1000
	willQoS         = 1
	brokerTLSMinVer = tls.VersionTLS12
)

// brokerURL returns tcp://host:port, or ssl:// when TLS is enabled.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// newClientOptions builds the paho options for cfg: a clean session that
// reconnects with backoff, credentials when a username is set, and a retained
// offline will on the system status topic.
func newClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: brokerTLSMinVer})
	}

	will := presence(cfg.Broker.ClientID, StatusOffline, ReasonCrashed)
	opts.SetBinaryWill(Topics{}.SystemStatus(), will, willQoS, true)
	return opts
}
