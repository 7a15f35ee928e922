// Package transportregistry registers every transport binding shipped with iqrfgw.
package transportregistry

import (
	"errors"

	pkgerrors "github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/transport"
	"github.com/c360/iqrfgw/transport/loopback"
	"github.com/c360/iqrfgw/transport/mqtt"
	"github.com/c360/iqrfgw/transport/nats"
	"github.com/c360/iqrfgw/transport/posixmq"
	"github.com/c360/iqrfgw/transport/websocket"
)

// Register adds all bindings to registry:
//   - posixmq (daemon MqMessaging queue pair, Linux only at runtime)
//   - mqtt (daemon MqttMessaging topic pair)
//   - websocket (daemon WebsocketMessaging)
//   - nats (subject pair behind a bridge)
//   - loopback (in-memory, for dry runs)
func Register(registry *transport.Registry) error {
	// nil registry is a programming error
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"TransportRegistry", "Register", "registry validation")
	}

	registrations := []struct {
		kind     string
		register func(*transport.Registry) error
	}{
		{posixmq.Kind, posixmq.Register},
		{mqtt.Kind, mqtt.Register},
		{websocket.Kind, websocket.Register},
		{nats.Kind, nats.Register},
		{loopback.Kind, loopback.Register},
	}

	for _, r := range registrations {
		if err := r.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "TransportRegistry", "Register", r.kind+" transport registration")
		}
	}
	return nil
}

// New returns a registry with every binding registered.
func New() (*transport.Registry, error) {
	registry := transport.NewRegistry()
	if err := Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
