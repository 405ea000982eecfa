package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/tickets/internal/storage/postgres"
)

type fakeMigrator struct {
	status    postgres.MigrationStatus
	upSteps   []int
	downSteps []int
	upErr     error
	downErr   error
	statusErr error
	closed    bool
}

func (m *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	m.upSteps = append(m.upSteps, steps)
	return m.upErr
}

func (m *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	m.downSteps = append(m.downSteps, steps)
	return m.downErr
}

func (m *fakeMigrator) MigrationStatus(context.Context) (postgres.MigrationStatus, error) {
	return m.status, m.statusErr
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func withFakeMigrator(t *testing.T, fake *fakeMigrator, openErr error) {
	t.Helper()

	previous := openMigrator
	openMigrator = func(context.Context, string) (migrator, error) {
		if openErr != nil {
			return nil, openErr
		}
		return fake, nil
	}
	t.Cleanup(func() { openMigrator = previous })
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		want    options
		wantErr string
	}{
		{
			name: "defaults with dsn from env",
			env:  map[string]string{envPostgresDSN: " postgres://env "},
			want: options{direction: "up", dsn: "postgres://env"},
		},
		{
			name: "flag dsn wins over env",
			args: []string{"-direction=DOWN", "-steps=2", "-dsn=postgres://flag"},
			env:  map[string]string{envPostgresDSN: "postgres://env"},
			want: options{direction: "down", steps: 2, dsn: "postgres://flag"},
		},
		{
			name:    "missing dsn",
			args:    []string{"-direction=status"},
			wantErr: envPostgresDSN + " (or -dsn) is required",
		},
		{
			name:    "unsupported direction",
			args:    []string{"-direction=sideways", "-dsn=postgres://flag"},
			wantErr: "unsupported direction: sideways",
		},
		{
			name:    "negative steps",
			args:    []string{"-steps=-1", "-dsn=postgres://flag"},
			wantErr: "steps must not be negative",
		},
		{
			name:    "unknown flag",
			args:    []string{"-concerts=all"},
			wantErr: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOptions(tt.args, envMap(tt.env))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_Directions(t *testing.T) {
	status := postgres.MigrationStatus{CurrentVersion: 2, Applied: 2, Available: 3}

	t.Run("up applies requested steps", func(t *testing.T) {
		fake := &fakeMigrator{status: status}
		withFakeMigrator(t, fake, nil)

		var out bytes.Buffer
		require.NoError(t, run(context.Background(), options{direction: "up", steps: 1, dsn: "dsn"}, &out))

		assert.Equal(t, []int{1}, fake.upSteps)
		assert.Empty(t, fake.downSteps)
		assert.Equal(t, "migrate up ok: version=2 applied=2 pending=1\n", out.String())
		assert.True(t, fake.closed)
	})

	t.Run("down rolls back one step by default", func(t *testing.T) {
		fake := &fakeMigrator{status: status}
		withFakeMigrator(t, fake, nil)

		var out bytes.Buffer
		require.NoError(t, run(context.Background(), options{direction: "down", dsn: "dsn"}, &out))

		assert.Equal(t, []int{1}, fake.downSteps)
		assert.Contains(t, out.String(), "migrate down ok")
	})

	t.Run("status only reads", func(t *testing.T) {
		fake := &fakeMigrator{status: status}
		withFakeMigrator(t, fake, nil)

		var out bytes.Buffer
		require.NoError(t, run(context.Background(), options{direction: "status", dsn: "dsn"}, &out))

		assert.Empty(t, fake.upSteps)
		assert.Empty(t, fake.downSteps)
		assert.Equal(t, "migration status: version=2 applied=2 pending=1\n", out.String())
	})
}

func TestRun_Errors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("open", func(t *testing.T) {
		withFakeMigrator(t, nil, boom)
		err := run(context.Background(), options{direction: "up", dsn: "dsn"}, &bytes.Buffer{})
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "open postgres store")
	})

	t.Run("up", func(t *testing.T) {
		fake := &fakeMigrator{upErr: boom}
		withFakeMigrator(t, fake, nil)
		err := run(context.Background(), options{direction: "up", dsn: "dsn"}, &bytes.Buffer{})
		require.ErrorIs(t, err, boom)
		assert.True(t, fake.closed)
	})

	t.Run("down", func(t *testing.T) {
		fake := &fakeMigrator{downErr: boom}
		withFakeMigrator(t, fake, nil)
		err := run(context.Background(), options{direction: "down", steps: 3, dsn: "dsn"}, &bytes.Buffer{})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, []int{3}, fake.downSteps)
	})

	t.Run("status", func(t *testing.T) {
		fake := &fakeMigrator{statusErr: boom}
		withFakeMigrator(t, fake, nil)
		err := run(context.Background(), options{direction: "status", dsn: "dsn"}, &bytes.Buffer{})
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "migration status failed")
	})
}

func TestFormatStatus(t *testing.T) {
	got := formatStatus("migration status", postgres.MigrationStatus{CurrentVersion: 5, Applied: 5, Available: 5})
	assert.Equal(t, "migration status: version=5 applied=5 pending=0", got)
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}
