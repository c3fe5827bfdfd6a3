// Copyright 2025 PulseGrid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package presence

import (
	"context"

	internalfsm "github.com/pulsegrid/pulsegrid-go/internal/fsm"
	"github.com/pulsegrid/pulsegrid-go/pkg/backoff"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
	"github.com/pulsegrid/pulsegrid-go/pkg/transport"
)

func (i *Instance) snapshotContext() Context {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ctx
}

func (i *Instance) heartbeatEffect() internalfsm.Effect {
	snap := i.snapshotContext()
	return internalfsm.NewEffect(internalfsm.ChannelHeartbeat, func(ctx context.Context) []internalfsm.Event {
		_, err := i.cfg.Transport.Execute(ctx, transport.Request{
			Kind:            transport.KindHeartbeat,
			Channels:        snap.Channels.Names(),
			Groups:          snap.Groups.Names(),
			PresenceTimeout: i.cfg.PresenceTimeout,
		})
		if err != nil {
			if backoff.IsCancelledError(err) {
				return nil
			}
			return []internalfsm.Event{HeartbeatFailure{Err: err}}
		}
		return []internalfsm.Event{HeartbeatSuccess{}}
	})
}

// leaveEffect is fire-and-forget: a failed leave is logged, never
// retried, and produces no event. The server will time the client out.
func (i *Instance) leaveEffect(channels, groups models.ChannelSet) internalfsm.Effect {
	names := channels.Names()
	groupNames := groups.Names()
	return internalfsm.NewEffect(internalfsm.ChannelLeave, func(ctx context.Context) []internalfsm.Event {
		_, err := i.cfg.Transport.Execute(ctx, transport.Request{
			Kind:     transport.KindLeave,
			Channels: names,
			Groups:   groupNames,
		})
		if err != nil && !backoff.IsCancelledError(err) {
			i.logger.Warnf("leave for [%s] failed: %v", channels.String(), err)
		}
		return nil
	})
}

func (i *Instance) statusEffect(category models.StatusCategory, err error) internalfsm.Effect {
	snap := i.snapshotContext()
	status := models.Status{
		Category: category,
		Channels: snap.Channels.Names(),
		Groups:   snap.Groups.Names(),
		Attempt:  snap.Attempt,
		Err:      err,
	}
	return internalfsm.Emit(func() {
		if i.cfg.OnStatus != nil {
			i.cfg.OnStatus(status)
		}
	})
}
