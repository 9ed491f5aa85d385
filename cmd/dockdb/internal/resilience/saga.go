// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience runs multi-step engine protocols with compensation.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/dockdb/pkg/logging"
)

// =============================================================================
// Saga Step
// =============================================================================

// SagaStep is one forward action and its undo.
//
// # Description
//
// Execute performs the action. Compensate undoes it if a later step fails;
// it is never called for the step that failed itself, so a step that can
// leave partial state must clean up before returning its error.
//
// # Limitations
//
//   - Compensate must tolerate "already gone" targets.
//   - Compensate failures are logged, never returned.
type SagaStep struct {
	// Name identifies the step in logs and errors.
	Name string

	// Execute performs the forward action.
	Execute func(ctx context.Context) error

	// Compensate undoes Execute. Nil when there is nothing to undo.
	Compensate func(ctx context.Context) error
}

// =============================================================================
// Saga Configuration
// =============================================================================

// SagaConfig configures a Saga.
type SagaConfig struct {
	// StepTimeout bounds each step. Zero means no deadline: engine
	// operations such as image pulls have no natural upper bound.
	StepTimeout time.Duration

	// Logger receives step events. Default: discard.
	Logger *slog.Logger
}

// DefaultSagaConfig returns a configuration with no deadlines.
func DefaultSagaConfig() SagaConfig {
	return SagaConfig{Logger: logging.Discard()}
}

// =============================================================================
// Saga Implementation
// =============================================================================

// Saga runs steps in order and, when one fails, compensates the completed
// steps in reverse order.
//
// # Thread Safety
//
// Execute must not be called concurrently on the same saga.
type Saga struct {
	config    SagaConfig
	steps     []SagaStep
	completed []SagaStep
	mu        sync.Mutex
}

// NewSaga creates a saga.
func NewSaga(config SagaConfig) *Saga {
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	return &Saga{config: config}
}

// AddStep appends a step.
func (s *Saga) AddStep(step SagaStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

// Execute runs all steps.
//
// # Description
//
// The returned error wraps the failing step's error, so errors.As reaches
// the original classified error. Compensation runs on a context detached
// from ctx's cancellation: a cancelled request still cleans up.
func (s *Saga) Execute(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed = s.completed[:0]

	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			s.compensate(ctx)
			return fmt.Errorf("saga cancelled before step %q: %w", step.Name, err)
		}

		if err := s.executeStep(ctx, step); err != nil {
			s.compensate(ctx)
			return fmt.Errorf("saga failed at step %q: %w", step.Name, err)
		}
		s.completed = append(s.completed, step)
	}
	return nil
}

func (s *Saga) executeStep(ctx context.Context, step SagaStep) error {
	s.config.Logger.Debug("saga step starting", "step", step.Name)
	start := time.Now()

	if s.config.StepTimeout <= 0 {
		err := step.Execute(ctx)
		s.logStep(step, time.Since(start), err)
		return err
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- step.Execute(stepCtx)
	}()

	select {
	case err := <-done:
		s.logStep(step, time.Since(start), err)
		return err
	case <-stepCtx.Done():
		err := fmt.Errorf("step timed out after %v", s.config.StepTimeout)
		s.logStep(step, time.Since(start), err)
		return err
	}
}

func (s *Saga) logStep(step SagaStep, duration time.Duration, err error) {
	if err != nil {
		s.config.Logger.Warn("saga step failed", "step", step.Name, "duration", duration, "error", err)
		return
	}
	s.config.Logger.Debug("saga step completed", "step", step.Name, "duration", duration)
}

func (s *Saga) compensate(ctx context.Context) {
	if len(s.completed) == 0 {
		return
	}
	s.config.Logger.Info("compensating completed steps", "count", len(s.completed))

	base := context.WithoutCancel(ctx)
	for i := len(s.completed) - 1; i >= 0; i-- {
		step := s.completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(base); err != nil {
			s.config.Logger.Warn("compensation failed", "step", step.Name, "error", err)
			continue
		}
		s.config.Logger.Debug("compensated step", "step", step.Name)
	}
}

// CompletedSteps returns the names of steps that succeeded in the last
// Execute.
func (s *Saga) CompletedSteps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.completed))
	for i, step := range s.completed {
		names[i] = step.Name
	}
	return names
}
