// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// recorder collects step and compensation events in order.
type recorder struct {
	events []string
}

func (r *recorder) step(name string, err error) SagaStep {
	return SagaStep{
		Name: name,
		Execute: func(ctx context.Context) error {
			r.events = append(r.events, "exec:"+name)
			return err
		},
		Compensate: func(ctx context.Context) error {
			r.events = append(r.events, "undo:"+name)
			return nil
		},
	}
}

func TestDefaultSagaConfig(t *testing.T) {
	config := DefaultSagaConfig()

	if config.StepTimeout != 0 {
		t.Errorf("StepTimeout = %v, want 0 (no deadline)", config.StepTimeout)
	}
	if config.Logger == nil {
		t.Error("Logger should not be nil")
	}
}

func TestNewSaga_NilLogger(t *testing.T) {
	saga := NewSaga(SagaConfig{})
	if saga.config.Logger == nil {
		t.Error("NewSaga should install a logger")
	}
	if err := saga.Execute(context.Background()); err != nil {
		t.Errorf("Execute with no steps: %v", err)
	}
}

func TestSaga_AllStepsSucceed(t *testing.T) {
	rec := &recorder{}
	saga := NewSaga(DefaultSagaConfig())
	saga.AddStep(rec.step("volumes", nil))
	saga.AddStep(rec.step("run", nil))
	saga.AddStep(rec.step("persist", nil))

	if err := saga.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := "exec:volumes,exec:run,exec:persist"
	if got := strings.Join(rec.events, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
	if got := saga.CompletedSteps(); len(got) != 3 {
		t.Errorf("CompletedSteps = %v", got)
	}
}

func TestSaga_CompensatesInReverse(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")

	saga := NewSaga(DefaultSagaConfig())
	saga.AddStep(rec.step("volumes", nil))
	saga.AddStep(rec.step("run", nil))
	saga.AddStep(rec.step("persist", boom))

	err := saga.Execute(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Execute error = %v, want wrapping %v", err, boom)
	}
	if !strings.Contains(err.Error(), `"persist"`) {
		t.Errorf("error should name the failed step: %v", err)
	}

	want := "exec:volumes,exec:run,exec:persist,undo:run,undo:volumes"
	if got := strings.Join(rec.events, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestSaga_CompensationFailureDoesNotStopOthers(t *testing.T) {
	var undone []string
	saga := NewSaga(DefaultSagaConfig())
	saga.AddStep(SagaStep{
		Name:    "a",
		Execute: func(context.Context) error { return nil },
		Compensate: func(context.Context) error {
			undone = append(undone, "a")
			return nil
		},
	})
	saga.AddStep(SagaStep{
		Name:    "b",
		Execute: func(context.Context) error { return nil },
		Compensate: func(context.Context) error {
			undone = append(undone, "b")
			return errors.New("cleanup failed")
		},
	})
	saga.AddStep(SagaStep{Name: "no-undo", Execute: func(context.Context) error { return nil }})
	fail := errors.New("fail")
	saga.AddStep(SagaStep{Name: "c", Execute: func(context.Context) error { return fail }})

	if err := saga.Execute(context.Background()); !errors.Is(err, fail) {
		t.Fatalf("Execute error = %v, want wrapping %v", err, fail)
	}
	if got := strings.Join(undone, ","); got != "b,a" {
		t.Errorf("compensations = %s, want b,a", got)
	}
	if got := saga.CompletedSteps(); len(got) != 3 {
		t.Errorf("CompletedSteps = %v", got)
	}
}

func TestSaga_CompensationSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var undoCtxErr error

	saga := NewSaga(DefaultSagaConfig())
	saga.AddStep(SagaStep{
		Name:    "create",
		Execute: func(context.Context) error { return nil },
		Compensate: func(ctx context.Context) error {
			undoCtxErr = ctx.Err()
			return nil
		},
	})
	saga.AddStep(SagaStep{
		Name: "cancelled",
		Execute: func(context.Context) error {
			cancel()
			return context.Canceled
		},
	})

	if err := saga.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute error = %v", err)
	}
	if undoCtxErr != nil {
		t.Errorf("compensation context was cancelled: %v", undoCtxErr)
	}
}

func TestSaga_StepTimeout(t *testing.T) {
	config := DefaultSagaConfig()
	config.StepTimeout = 10 * time.Millisecond

	saga := NewSaga(config)
	saga.AddStep(SagaStep{
		Name: "hang",
		Execute: func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return ctx.Err()
		},
	})

	err := saga.Execute(context.Background())
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Execute error = %v, want timeout", err)
	}
}
