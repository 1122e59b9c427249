// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package config

import (
	"fmt"
	"net/url"

	"github.com/tomtom215/shiptrack/internal/validation"
)

// Validate checks field-level tags and then the cross-section rules tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateViews(); err != nil {
		return err
	}
	return c.validateSecurity()
}

func (c *Config) validateViews() error {
	if c.Views.IdentityCapacity < c.Views.AlertEventCapacity {
		return fmt.Errorf("views.identity_capacity (%d) must be at least views.alert_event_capacity (%d)",
			c.Views.IdentityCapacity, c.Views.AlertEventCapacity)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("security.cors_origins: invalid origin %q", origin)
		}
	}
	return nil
}
