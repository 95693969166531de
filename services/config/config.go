// Package config loads the appliance's fixed startup configuration from an
// embedded JSON blob and publishes it as one retained bus message per
// section. There is no runtime reconfiguration; config is constants read at
// boot, and the retained messages exist so any task (and the terminal) can
// see what the system was built with.
package config

import (
	"context"

	"fridgecode-go/bus"
	"fridgecode-go/errcode"

	"github.com/andreyvit/tinyjson"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

// EmbeddedConfigLookup resolves a board name to its raw JSON. Tests
// override this.
var EmbeddedConfigLookup = func(board string) ([]byte, bool) {
	b, ok := embeddedConfigs[board]
	return b, ok
}

// Load parses the embedded config for a board into section maps. Exposed
// for the boot path, which needs pin numbers before any service starts.
func Load(board string) (map[string]any, error) {
	raw, ok := EmbeddedConfigLookup(board)
	if !ok || len(raw) == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "config.Load", Msg: "no embedded config for board " + board}
	}
	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "config.Load", Msg: "config is not a JSON object"}
	}
	return m, nil
}

// Section returns one named section of a loaded config, or an empty map so
// the typed decoders fall back to their defaults.
func Section(m map[string]any, name string) map[string]any {
	if v, ok := m[name]; ok {
		if sec, ok := v.(map[string]any); ok {
			return sec
		}
	}
	return map[string]any{}
}

// Service publishes the loaded config sections as retained messages.
type Service struct {
	Board string
}

// Start publishes each section under config/<name>, retained, then returns.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	m, err := Load(s.Board)
	if err != nil {
		return err
	}
	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	return nil
}
