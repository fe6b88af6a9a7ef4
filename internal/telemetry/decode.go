// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode is returned for any frame that cannot be turned into a Sample.
var ErrDecode = errors.New("telemetry: malformed frame")

// fieldNames are the wire keys, matched exactly. encoding/json would match
// struct tags case-insensitively, so the object is read as a map instead.
var fieldNames = [...]string{"r", "p", "y", "ax", "ay", "az", "g"}

// Decode parses one text frame. The payload must be a JSON object carrying
// all seven numeric fields r, p, y, ax, ay, az and g; anything else yields
// an error wrapping ErrDecode and a zero Sample. Other keys are ignored,
// including case variants of the required ones.
func Decode(text string) (Sample, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var vals [len(fieldNames)]float64
	for i, name := range fieldNames {
		raw, ok := obj[name]
		if !ok {
			return Sample{}, fmt.Errorf("%w: missing field %q", ErrDecode, name)
		}
		// A pointer tells a null apart from a legitimate zero.
		var v *float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return Sample{}, fmt.Errorf("%w: field %q: %v", ErrDecode, name, err)
		}
		if v == nil {
			return Sample{}, fmt.Errorf("%w: null field %q", ErrDecode, name)
		}
		vals[i] = *v
	}

	return Sample{
		Roll:  vals[0],
		Pitch: vals[1],
		Yaw:   vals[2],
		Ax:    vals[3],
		Ay:    vals[4],
		Az:    vals[5],
		G:     vals[6],
	}, nil
}
