/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-pi/internal/display"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

func (c *Controller) handle(ctx context.Context, ev events.Event) {
	logging.Logger.Debug("Handling event",
		zap.String("type", string(ev.Type)),
		zap.String("source", ev.Source),
		zap.String("mode", string(c.Mode())),
	)

	switch ev.Type {
	case events.TypeModeChat:
		c.switchMode(events.ModeChat)
	case events.TypeModeObject:
		c.switchMode(events.ModeObject)
	case events.TypeChatPress:
		c.handleChatPress()
	case events.TypeChatRelease:
		c.handleChatRelease(ctx)
	case events.TypeObjectTrigger:
		c.handleObjectTrigger(ctx)
	}
}

// switchMode aborts any capture in progress, then shows the new idle screen
func (c *Controller) switchMode(m events.Mode) {
	if mic := c.deps.Microphone; mic != nil && mic.Recording() {
		mic.Cancel()
		logging.Sugar.Infof("🎙️ Recording cancelled by switch to %s mode", m)
	}

	c.mode.Store(m)
	logging.Sugar.Infof("🔀 Mode: %s", m)
	c.showIdle()
}

func (c *Controller) showIdle() {
	switch c.Mode() {
	case events.ModeChat:
		c.deps.Display.Show(display.ScreenChatIdle)
	case events.ModeObject:
		c.deps.Display.Show(display.ScreenObjectIdle)
	default:
		c.deps.Display.Show(display.ScreenBoot)
	}
}

func (c *Controller) handleChatPress() {
	if c.Mode() != events.ModeChat {
		return
	}
	if c.busy.Load() {
		logging.LogWarn("Ignoring chat press while a pipeline is running")
		return
	}

	var err error
	if c.deps.Microphone == nil {
		err = fmt.Errorf("no microphone configured")
	} else {
		err = c.deps.Microphone.Start()
	}
	if err != nil {
		logging.LogError(err, "Failed to start recording")
		c.setLastError(err)
		c.deps.Display.Message("Mic error.")
		return
	}

	c.deps.Display.Show(display.ScreenChatListening)
	logging.LogPipelineStage(string(events.ModeChat), "recording")
}

func (c *Controller) handleChatRelease(ctx context.Context) {
	if c.Mode() != events.ModeChat {
		return
	}
	if c.deps.Microphone == nil || !c.deps.Microphone.Recording() {
		logging.Logger.Debug("Chat release without an active recording")
		return
	}

	if err := c.spawn(ctx, events.ModeChat, c.runChat); err != nil {
		logging.LogWarn("Dropping chat release", zap.Error(err))
	}
}

func (c *Controller) handleObjectTrigger(ctx context.Context) {
	if c.Mode() != events.ModeObject {
		return
	}
	if err := c.spawn(ctx, events.ModeObject, c.runObject); err != nil {
		logging.LogWarn("Dropping object trigger", zap.Error(err))
	}
}

// spawn runs one pipeline in the background. Only one pipeline may run at a
// time; a second request is refused with ErrBusy.
func (c *Controller) spawn(ctx context.Context, mode events.Mode, run func(context.Context, *events.Interaction) error) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}

	c.pipelines.Add(1)
	go func() {
		defer c.pipelines.Done()
		defer c.busy.Store(false)

		in := events.NewInteraction(mode)
		err := run(ctx, in)
		c.finish(ctx, in, err)
	}()
	return nil
}

// finish turns the pipeline outcome into a display line and records it
func (c *Controller) finish(ctx context.Context, in *events.Interaction, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSpeech):
		in.SetResponse(events.RouteNoSpeech, "")
	default:
		in.SetError(err)
		c.setLastError(err)
		logging.LogError(err, "Pipeline failed",
			zap.String("mode", string(in.Mode)),
			zap.String("interaction_uuid", in.UUID),
		)
		if in.Mode == events.ModeChat {
			c.deps.Display.Message("Chat error.")
		} else {
			c.deps.Display.Message("Object error.")
		}
	}

	c.store(ctx, in)
	logging.LogInteraction(in, "Interaction finished",
		zap.String("route", string(in.Route)),
		zap.Bool("success", in.Success),
		zap.Int64("processing_time_ms", in.ProcessingTime),
	)
}

// store persists and publishes an interaction; failures are only logged
func (c *Controller) store(ctx context.Context, in *events.Interaction) {
	if c.deps.Recorder != nil {
		if err := c.deps.Recorder.Record(ctx, in); err != nil {
			logging.LogError(err, "Failed to store interaction", zap.String("interaction_uuid", in.UUID))
		} else {
			logging.LogDatabaseOperation("insert", "interactions", zap.String("interaction_uuid", in.UUID))
		}
	}

	if c.deps.Publisher != nil {
		if err := c.deps.Publisher.PublishInteraction(in); err != nil {
			logging.LogWarn("Failed to publish interaction",
				zap.String("interaction_uuid", in.UUID),
				zap.Error(err),
			)
		}
	}
}
