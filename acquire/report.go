// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package acquire

import (
	"context"

	"github.com/pkg/errors"
)

// Reporter receives every successful measurement. Implementations own
// serialization and delivery; a returned error never affects the
// sequencer.
type Reporter interface {
	Report(ctx context.Context, m Measurement) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, m Measurement) error

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, m Measurement) error {
	return f(ctx, m)
}

// Reporters fans a measurement out to every member in order. One failing
// member does not stop the others.
type Reporters []Reporter

// Report implements Reporter.
func (rs Reporters) Report(ctx context.Context, m Measurement) error {
	failed := 0
	for _, r := range rs {
		if err := r.Report(ctx, m); err != nil {
			lg.Warningf("reporter %T: %v", r, err)
			failed++
		}
	}
	if failed > 0 {
		return errors.Errorf("acquire: %d of %d reporters failed", failed, len(rs))
	}
	return nil
}
