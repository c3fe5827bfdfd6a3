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

package subscribe

import (
	"context"

	internalfsm "github.com/pulsegrid/pulsegrid-go/internal/fsm"
	"github.com/pulsegrid/pulsegrid-go/pkg/backoff"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
	"github.com/pulsegrid/pulsegrid-go/pkg/transport"
)

// snapshotContext copies the fields an effect needs while still on the
// event lane, so the running effect never touches live engine state.
func (i *Instance) snapshotContext() Context {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ctx
}

// handshakeEffect opens the subscribe loop. The held cursor rides along
// so a restore or set merge replays from the right position.
func (i *Instance) handshakeEffect() internalfsm.Effect {
	snap := i.snapshotContext()
	return internalfsm.NewEffect(internalfsm.ChannelHandshake, func(ctx context.Context) []internalfsm.Event {
		resp, err := i.cfg.Transport.Execute(ctx, transport.Request{
			Kind:            transport.KindHandshake,
			Channels:        snap.Channels.Names(),
			Groups:          snap.Groups.Names(),
			Cursor:          snap.Cursor,
			PresenceTimeout: i.cfg.PresenceTimeout,
		})
		if err != nil {
			if backoff.IsCancelledError(err) {
				return nil
			}
			return []internalfsm.Event{HandshakeFailure{Err: err}}
		}
		return []internalfsm.Event{HandshakeSuccess{Cursor: resp.Cursor}}
	})
}

// receiveEffect long-polls for updates past the held cursor.
func (i *Instance) receiveEffect() internalfsm.Effect {
	snap := i.snapshotContext()
	return internalfsm.NewEffect(internalfsm.ChannelReceive, func(ctx context.Context) []internalfsm.Event {
		resp, err := i.cfg.Transport.Execute(ctx, transport.Request{
			Kind:            transport.KindReceive,
			Channels:        snap.Channels.Names(),
			Groups:          snap.Groups.Names(),
			Cursor:          snap.Cursor,
			PresenceTimeout: i.cfg.PresenceTimeout,
		})
		if err != nil {
			if backoff.IsCancelledError(err) {
				return nil
			}
			return []internalfsm.Event{ReceiveFailure{Err: err}}
		}
		return []internalfsm.Event{ReceiveSuccess{Cursor: resp.Cursor, Messages: resp.Messages}}
	})
}

func (i *Instance) statusEffect(category models.StatusCategory) internalfsm.Effect {
	return i.statusEffectErr(category, nil)
}

func (i *Instance) statusEffectErr(category models.StatusCategory, err error) internalfsm.Effect {
	snap := i.snapshotContext()
	status := models.Status{
		Category: category,
		Channels: snap.Channels.Names(),
		Groups:   snap.Groups.Names(),
		Cursor:   snap.Cursor,
		Attempt:  snap.Attempt,
		Err:      err,
	}
	return internalfsm.Emit(func() {
		if i.cfg.OnStatus != nil {
			i.cfg.OnStatus(status)
		}
	})
}

func (i *Instance) messagesEffect(messages []models.Message) internalfsm.Effect {
	return internalfsm.Emit(func() {
		if i.cfg.OnMessages != nil {
			i.cfg.OnMessages(messages)
		}
	})
}
