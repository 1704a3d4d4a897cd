// Copyright (C) 2020-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package version identifies the running binary's build for /health
// reporting and future wire-compatibility checks between agents and
// nodes.
package version

import "fmt"

// Application identifies one binary's build.
type Application struct {
	Name  string
	Major int
	Minor int
	Patch int
}

// String returns "name/vMajor.Minor.Patch".
func (a *Application) String() string {
	return fmt.Sprintf("%s/v%d.%d.%d", a.Name, a.Major, a.Minor, a.Patch)
}

// Before returns true if a is an earlier version than other.
func (a *Application) Before(other *Application) bool {
	return a.Compare(other) < 0
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater
// than other.
func (a *Application) Compare(other *Application) int {
	if a.Major != other.Major {
		if a.Major < other.Major {
			return -1
		}
		return 1
	}
	if a.Minor != other.Minor {
		if a.Minor < other.Minor {
			return -1
		}
		return 1
	}
	if a.Patch != other.Patch {
		if a.Patch < other.Patch {
			return -1
		}
		return 1
	}
	return 0
}

// Compatible returns true if the versions share a major version.
func (a *Application) Compatible(other *Application) bool {
	return a.Major == other.Major
}

// Current is the build identity reported by this binary.
func Current() *Application {
	return &Application{Name: "botconsensus", Major: 1, Minor: 0, Patch: 0}
}
