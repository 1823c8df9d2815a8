package provision

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeChecker implements Checker over an in-memory resource set.
type fakeChecker struct {
	resources map[string]bool
	probeErr  error
}

func (f *fakeChecker) Exists(_ context.Context, kind Kind, name string) (bool, error) {
	if f.probeErr != nil {
		return false, f.probeErr
	}
	return f.resources[string(kind)+"/"+name], nil
}

func TestEnsureCreatesWhenAbsent(t *testing.T) {
	fc := &fakeChecker{resources: map[string]bool{}}
	p := NewProvisioner(fc, testLogger())

	created := 0
	outcome, err := p.Ensure(context.Background(), KindNetwork, "matrixnet", func(context.Context) error {
		created++
		fc.resources["network/matrixnet"] = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Created {
		t.Errorf("outcome = %q, want created", outcome)
	}
	if created != 1 {
		t.Errorf("createFn called %d times, want 1", created)
	}
}

func TestEnsureTwiceIsIdempotent(t *testing.T) {
	fc := &fakeChecker{resources: map[string]bool{}}
	p := NewProvisioner(fc, testLogger())

	created := 0
	createFn := func(context.Context) error {
		created++
		fc.resources["volume/pgdata"] = true
		return nil
	}

	first, err := p.Ensure(context.Background(), KindVolume, "pgdata", createFn)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Ensure(context.Background(), KindVolume, "pgdata", createFn)
	if err != nil {
		t.Fatal(err)
	}
	if first != Created || second != AlreadyPresent {
		t.Errorf("outcomes = %q, %q; want created then already_present", first, second)
	}
	if created != 1 {
		t.Errorf("createFn called %d times, want exactly 1", created)
	}
}

func TestEnsureProbeError(t *testing.T) {
	fc := &fakeChecker{probeErr: errors.New("daemon down")}
	p := NewProvisioner(fc, testLogger())

	_, err := p.Ensure(context.Background(), KindContainer, "db", func(context.Context) error {
		t.Fatal("createFn must not run on probe failure")
		return nil
	})
	var pe *ProbeError
	if !errors.As(err, &pe) {
		t.Errorf("error = %v, want ProbeError", err)
	}
}

func TestEnsureCreateError(t *testing.T) {
	fc := &fakeChecker{resources: map[string]bool{}}
	p := NewProvisioner(fc, testLogger())

	_, err := p.Ensure(context.Background(), KindImage, "matrixhub-db:latest", func(context.Context) error {
		return errors.New("build failed")
	})
	var ce *CreateError
	if !errors.As(err, &ce) {
		t.Errorf("error = %v, want CreateError", err)
	}
}

// fakeEngine implements ContainerEngine for replacement tests.
type fakeEngine struct {
	containers map[string]string // name → image
	stopped    []string
	removed    []string
	imageCalls int
	imageErr   error
}

func (f *fakeEngine) ContainerExists(_ context.Context, name string) (bool, error) {
	_, ok := f.containers[name]
	return ok, nil
}

func (f *fakeEngine) ContainerImage(_ context.Context, name string) (string, error) {
	f.imageCalls++
	if f.imageErr != nil {
		return "", f.imageErr
	}
	return f.containers[name], nil
}

func (f *fakeEngine) StopContainer(_ context.Context, name string, _ time.Duration) error {
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeEngine) RemoveContainer(_ context.Context, name string) error {
	f.removed = append(f.removed, name)
	delete(f.containers, name)
	return nil
}

func TestReplaceContainerSwapsImage(t *testing.T) {
	fe := &fakeEngine{containers: map[string]string{"db": "imageA"}}
	p := NewProvisioner(&fakeChecker{}, testLogger())

	err := p.ReplaceContainer(context.Background(), fe, "db", 10*time.Second, func(context.Context) error {
		fe.containers["db"] = "imageB"
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fe.containers) != 1 {
		t.Fatalf("container count = %d, want exactly 1", len(fe.containers))
	}
	if fe.containers["db"] != "imageB" {
		t.Errorf("image = %q, want imageB", fe.containers["db"])
	}
	if len(fe.stopped) != 1 || len(fe.removed) != 1 {
		t.Errorf("stopped=%v removed=%v, want old container stopped and removed", fe.stopped, fe.removed)
	}
	if fe.imageCalls != 1 {
		t.Errorf("old image inspected %d times, want 1", fe.imageCalls)
	}
}

func TestReplaceContainerImageProbeError(t *testing.T) {
	fe := &fakeEngine{
		containers: map[string]string{"db": "imageA"},
		imageErr:   errors.New("daemon down"),
	}
	p := NewProvisioner(&fakeChecker{}, testLogger())

	err := p.ReplaceContainer(context.Background(), fe, "db", time.Second, func(context.Context) error {
		t.Fatal("createFn must not run when the existing container cannot be inspected")
		return nil
	})
	var pe *ProbeError
	if !errors.As(err, &pe) {
		t.Errorf("error = %v, want ProbeError", err)
	}
	if len(fe.stopped) != 0 || len(fe.removed) != 0 {
		t.Error("stop/remove ran despite inspect failure")
	}
}

func TestReplaceContainerAbsentSkipsStop(t *testing.T) {
	fe := &fakeEngine{containers: map[string]string{}}
	p := NewProvisioner(&fakeChecker{}, testLogger())

	err := p.ReplaceContainer(context.Background(), fe, "db", time.Second, func(context.Context) error {
		fe.containers["db"] = "imageB"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fe.stopped) != 0 || len(fe.removed) != 0 {
		t.Errorf("stop/remove ran for an absent container")
	}
	if fe.imageCalls != 0 {
		t.Errorf("image inspected for an absent container")
	}
}
