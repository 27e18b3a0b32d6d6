// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import "github.com/aplane-ton/custody/internal/util"

func deviceCfg() util.DeviceConfig {
	return util.DefaultConfig().Device
}
