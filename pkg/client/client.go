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

// Package client is the public entry point: it owns the desired
// channel/group sets, derives engine events from set operations, and fans
// engine output out to listeners.
package client

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pulsegrid/pulsegrid-go/pkg/config"
	"github.com/pulsegrid/pulsegrid-go/pkg/dedup"
	pubfsm "github.com/pulsegrid/pulsegrid-go/pkg/fsm"
	"github.com/pulsegrid/pulsegrid-go/pkg/fsm/presence"
	"github.com/pulsegrid/pulsegrid-go/pkg/fsm/subscribe"
	"github.com/pulsegrid/pulsegrid-go/pkg/logger"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
	"github.com/pulsegrid/pulsegrid-go/pkg/transport"
)

// Client drives one subscribe engine and one presence engine over a
// shared transport. All set-changing methods compute the resulting full
// set up front, so the engines only ever see complete desired state.
type Client struct {
	cfg       config.FullConfig
	transport *transport.HTTPTransport
	subscribe *subscribe.Instance
	presence  *presence.Instance
	logger    *zap.SugaredLogger

	mu        sync.Mutex
	channels  models.ChannelSet
	groups    models.ChannelSet
	listeners []*Listener
	closed    bool
}

// New validates the configuration and starts both engines. The subscribe
// loop stays idle until the first Subscribe call.
func New(cfg config.FullConfig) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.For(logger.ComponentClient).With("userID", cfg.UserID),
	}
	c.transport = transport.NewHTTPTransport(transport.HTTPConfig{
		Origin:          cfg.Origin,
		SubscribeKey:    cfg.SubscribeKey,
		UserID:          cfg.UserID,
		InsecureTLS:     cfg.InsecureTLS,
		PresenceTimeout: cfg.Presence.Timeout,
	}, logger.For(logger.ComponentTransport))

	var dedupCache *dedup.Cache
	if cfg.Dedup.Enabled {
		var err error
		dedupCache, err = dedup.New(cfg.UserID, cfg.Dedup.MaximumCacheSize)
		if err != nil {
			return nil, err
		}
	}

	c.subscribe = subscribe.NewInstance(subscribe.Config{
		ID:              cfg.UserID + "-subscribe",
		Transport:       c.transport,
		Retry:           cfg.RetryPolicy(),
		Dedup:           dedupCache,
		PresenceTimeout: cfg.Presence.Timeout,
		OnStatus:        c.emitStatus,
		OnMessages:      c.emitMessages,
		QueueSize:       cfg.Subscribe.QueueSize,
	})
	c.presence = presence.NewInstance(presence.Config{
		ID:                cfg.UserID + "-presence",
		Transport:         c.transport,
		Retry:             cfg.RetryPolicy(),
		HeartbeatInterval: cfg.HeartbeatCooldown(),
		PresenceTimeout:   cfg.Presence.Timeout,
		SuppressLeave:     cfg.Presence.SuppressLeave,
		OnStatus:          c.emitStatus,
		QueueSize:         cfg.Subscribe.QueueSize,
	})
	return c, nil
}

// AddListener registers a listener for statuses and messages.
func (c *Client) AddListener(l *Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters a listener. Its channels are left open; the
// caller owns their lifetime.
func (c *Client) RemoveListener(l *Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for idx, registered := range c.listeners {
		if registered == l {
			c.listeners = append(c.listeners[:idx], c.listeners[idx+1:]...)
			return
		}
	}
}

// Subscribe adds channels to the subscribed set and announces presence
// on them. Whether already-flowing history is replayed for the new
// channels follows the catchUpOnJoin setting.
func (c *Client) Subscribe(channels ...string) error {
	return c.changeSet(channels, nil)
}

// SubscribeChannelGroups adds channel groups to the subscribed set.
func (c *Client) SubscribeChannelGroups(groups ...string) error {
	return c.changeSet(nil, groups)
}

func (c *Client) changeSet(channels, groups []string) error {
	if err := config.ValidateNames(channels); err != nil {
		return err
	}
	if err := config.ValidateNames(groups); err != nil {
		return err
	}

	c.mu.Lock()
	c.channels = c.channels.Union(channels...)
	c.groups = c.groups.Union(groups...)
	nextChannels, nextGroups := c.channels, c.groups
	c.mu.Unlock()

	if c.cfg.CatchUpOnJoin() {
		c.subscribe.Send(subscribe.NewSubscriptionChange(nextChannels, nextGroups))
	} else {
		// Dropping the cursor makes the whole set start from "now".
		c.subscribe.Send(subscribe.Restore{
			Channels: nextChannels,
			Groups:   nextGroups,
			Cursor:   models.ZeroCursor,
		})
	}
	c.presence.Send(presence.Joined{Channels: nextChannels, Groups: nextGroups})
	return nil
}

// SubscribeFrom replaces the subscribed channel set and resumes delivery
// from the given cursor, replaying whatever the server still retains.
func (c *Client) SubscribeFrom(cursor models.Cursor, channels ...string) error {
	if err := config.ValidateNames(channels); err != nil {
		return err
	}

	c.mu.Lock()
	c.channels = c.channels.Union(channels...)
	nextChannels, nextGroups := c.channels, c.groups
	c.mu.Unlock()

	c.subscribe.Send(subscribe.Restore{
		Channels: nextChannels,
		Groups:   nextGroups,
		Cursor:   cursor,
	})
	c.presence.Send(presence.Joined{Channels: nextChannels, Groups: nextGroups})
	return nil
}

// Unsubscribe removes channels from the subscribed set and announces the
// departure. Removing the last channel tears the loop down entirely.
func (c *Client) Unsubscribe(channels ...string) error {
	return c.shrinkSet(channels, nil)
}

// UnsubscribeChannelGroups removes channel groups from the subscribed set.
func (c *Client) UnsubscribeChannelGroups(groups ...string) error {
	return c.shrinkSet(nil, groups)
}

func (c *Client) shrinkSet(channels, groups []string) error {
	if err := config.ValidateNames(channels); err != nil {
		return err
	}
	if err := config.ValidateNames(groups); err != nil {
		return err
	}

	c.mu.Lock()
	departed := models.NewChannelSet(channels...)
	departedGroups := models.NewChannelSet(groups...)
	c.channels = c.channels.Difference(channels...)
	c.groups = c.groups.Difference(groups...)
	nextChannels, nextGroups := c.channels, c.groups
	c.mu.Unlock()

	c.subscribe.Send(subscribe.NewSubscriptionChange(nextChannels, nextGroups))
	c.presence.Send(presence.NewLeft(nextChannels, nextGroups, departed, departedGroups))
	return nil
}

// UnsubscribeAll leaves everything and resets all held state, cursor
// included.
func (c *Client) UnsubscribeAll() {
	c.mu.Lock()
	c.channels = models.NewChannelSet()
	c.groups = models.NewChannelSet()
	c.mu.Unlock()

	c.subscribe.Send(subscribe.UnsubscribeAll{})
	c.presence.Send(presence.LeftAll{})
}

// Disconnect pauses both loops, announcing the departure, and keeps the
// sets and cursor for a later Reconnect.
func (c *Client) Disconnect() {
	c.subscribe.Send(subscribe.Disconnect{})
	c.presence.Send(presence.Disconnect{})
}

// DisconnectOffline pauses both loops without telling the server, for
// clients about to lose connectivity anyway.
func (c *Client) DisconnectOffline() {
	c.subscribe.Send(subscribe.Disconnect{})
	c.presence.Send(presence.Disconnect{Offline: true})
}

// Reconnect resumes paused or failed loops from the held cursor.
func (c *Client) Reconnect() {
	c.subscribe.Send(subscribe.Reconnect{})
	c.presence.Send(presence.Reconnect{})
}

// SubscribeSnapshot captures the subscribe engine's observable state.
func (c *Client) SubscribeSnapshot() pubfsm.Snapshot { return c.subscribe.Snapshot() }

// PresenceSnapshot captures the presence engine's observable state.
func (c *Client) PresenceSnapshot() pubfsm.Snapshot { return c.presence.Snapshot() }

// Transport exposes the HTTP transport, mainly for latency inspection.
func (c *Client) Transport() *transport.HTTPTransport { return c.transport }

// Close stops both engines and aborts all in-flight calls. Listener
// channels are not closed; consumers observe quiescence instead.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.subscribe.Close()
	c.presence.Close()
}

func (c *Client) emitStatus(status models.Status) {
	c.mu.Lock()
	listeners := make([]*Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		select {
		case l.Status <- status:
		default:
			c.logger.Debugf("listener status buffer full, dropping %s", status.Category)
		}
	}
}

func (c *Client) emitMessages(messages []models.Message) {
	c.mu.Lock()
	listeners := make([]*Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		for _, m := range messages {
			select {
			case l.Messages <- m:
			default:
				c.logger.Warnf("listener message buffer full, dropping message on %s", m.Channel)
			}
		}
	}
}
