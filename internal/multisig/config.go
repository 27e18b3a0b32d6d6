// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package multisig

import (
	"log/slog"

	"github.com/aplane-ton/custody/internal/util"
)

// ConfigFromUtil maps the tracker section of the configuration file.
func ConfigFromUtil(cfg *util.Config, log *slog.Logger) (Config, error) {
	expirations, err := cfg.Expirations()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Expirations:        expirations,
		FinalizedCacheSize: cfg.FinalizedCacheSize,
		SubscriberBuffer:   cfg.SubscriberBufferSize,
		Logger:             log,
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (t *Tracker) Config() Config {
	return t.cfg
}
