/*
LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ausocean/utils/logging"
	cron "github.com/robfig/cron/v3"
)

// sweepTimeout bounds a single sweep of expired subscriptions.
const sweepTimeout = 5 * time.Minute

// Sweeper is implemented by services that remove expired state.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// sweeper periodically sweeps according to a cron spec.
type sweeper struct {
	cron *cron.Cron
	id   cron.EntryID
	svc  Sweeper
	log  logging.Logger
}

// newSweeper returns a started sweeper that calls s.Sweep according to
// spec, which is any spec accepted by the standard cron parser,
// including descriptors such as "@hourly" and "@every 10m". An empty
// spec disables sweeping and returns a nil sweeper.
func newSweeper(spec string, s Sweeper, log logging.Logger) (*sweeper, error) {
	if spec == "" {
		return nil, nil
	}
	sw := &sweeper{cron: cron.New(), svc: s, log: log}
	id, err := sw.cron.AddFunc(spec, sw.sweep)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep spec %q: %w", spec, err)
	}
	sw.id = id
	sw.cron.Start()
	return sw, nil
}

// sweep performs a single sweep.
func (sw *sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	n, err := sw.svc.Sweep(ctx)
	if err != nil {
		sw.log.Error("sweep failed", "error", err)
		return
	}
	sw.log.Info("swept expired subscriptions", "count", n)
}

// next returns the time of the next sweep.
func (sw *sweeper) next() time.Time {
	return sw.cron.Entry(sw.id).Next
}

// stop stops the sweeper, waiting for a running sweep to complete.
func (sw *sweeper) stop() {
	<-sw.cron.Stop().Done()
}
