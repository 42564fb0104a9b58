package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/spx/internal/shared"
	tu "github.com/desertthunder/spx/internal/testing"
	"github.com/desertthunder/spx/internal/tokens"
	"github.com/urfave/cli/v3"
)

// fileConfig returns a config using the file backend under a temp dir.
func fileConfig(t *testing.T) (*shared.Config, string) {
	t.Helper()
	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Storage.Backend = "file"
	config.Storage.Dir = dir
	config.Credentials.Spotify.ClientID = "test-client"
	config.Server.Port = 0
	return config, dir
}

func saveBundle(t *testing.T, dir string, b tokens.Bundle) {
	t.Helper()
	store := tokens.NewRecordStore(tokens.NewFileBackend(dir), nil, shared.NewLogger(&bytes.Buffer{}))
	if err := store.Save(b); err != nil {
		t.Fatalf("failed to save bundle: %v", err)
	}
}

func run(t *testing.T, runner *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "spx", Commands: runner.register()}
	return app.Run(context.Background(), append([]string{"spx"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FailingWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FailingWriter{After: 1}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FailingWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "auth", "player", "tui"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil || cmd.Name != want[i] {
				t.Errorf("command %d = %v, want %s", i, cmd, want[i])
			}
		}
	})
}

func TestParsePercent(t *testing.T) {
	tc := []struct {
		in   string
		want float64
		err  error
	}{
		{in: "0", want: 0},
		{in: "55", want: 0.55},
		{in: "100%", want: 1},
		{in: "", err: shared.ErrMissingArgument},
		{in: "101", err: shared.ErrInvalidArgument},
		{in: "-1", err: shared.ErrInvalidArgument},
		{in: "loud", err: shared.ErrInvalidArgument},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePercent(tt.in)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("parsePercent(%q) error = %v, want %v", tt.in, err, tt.err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("parsePercent(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Storage.Backend = "etcd"
		runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(&bytes.Buffer{})})

		if _, err := runner.build(stackOpts{}); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("sqlite backend", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Database.Path = filepath.Join(t.TempDir(), "spx.db")
		runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(&bytes.Buffer{})})

		st, err := runner.build(stackOpts{})
		if err != nil {
			t.Fatalf("build() error = %v", err)
		}
		defer st.Close()
		if st.db == nil || st.ctrl == nil || st.ctrl.Surface() == nil {
			t.Error("expected a wired stack")
		}
		if st.client.Jar == nil {
			t.Error("expected a cookie jar")
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("status logged out", func(t *testing.T) {
		config, _ := fileConfig(t)
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})

		if err := run(t, runner, "auth", "status"); err != nil {
			t.Fatalf("auth status error = %v", err)
		}
		if !strings.Contains(output.String(), "Not logged in") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("status logged in as JSON", func(t *testing.T) {
		config, dir := fileConfig(t)
		saveBundle(t, dir, tokens.Bundle{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600, ObtainedAt: time.Now().UnixMilli()})
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})

		if err := run(t, runner, "auth", "status", "--json"); err != nil {
			t.Fatalf("auth status error = %v", err)
		}
		for _, want := range []string{`"logged_in": true`, `"has_refresh_token": true`, `"refresh_in"`} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("output missing %s: %s", want, output.String())
			}
		}
	})

	t.Run("logout clears the bundle", func(t *testing.T) {
		config, dir := fileConfig(t)
		saveBundle(t, dir, tokens.Bundle{AccessToken: "a", ExpiresIn: 3600, ObtainedAt: time.Now().UnixMilli()})
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})

		if err := run(t, runner, "auth", "logout"); err != nil {
			t.Fatalf("auth logout error = %v", err)
		}
		if _, err := tokens.NewFileBackend(dir).Read(tokens.BundleKey); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("bundle should be removed, got %v", err)
		}
	})

	t.Run("login without a client id", func(t *testing.T) {
		config, _ := fileConfig(t)
		config.Credentials.Spotify.ClientID = "YOUR_SPOTIFY_CLIENT_ID_HERE"
		config.Server.Host = "127.0.0.1"
		runner := NewRunner(RunnerOpts{Config: config, Output: &bytes.Buffer{}, Logger: shared.NewLogger(&bytes.Buffer{})})

		if err := run(t, runner, "auth", "login", "--no-browser"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestPlayerCommands(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer live" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v1/me/player/devices":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"devices":[{"id":"d1","is_active":true,"is_restricted":false,"name":"Kitchen","type":"Speaker","volume_percent":40}]}`))
		case "/v1/me/player/volume":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer api.Close()

	setup := func(t *testing.T) (*Runner, *bytes.Buffer) {
		config, dir := fileConfig(t)
		config.Credentials.Spotify.APIBaseURL = api.URL + "/v1/"
		saveBundle(t, dir, tokens.Bundle{AccessToken: "live", ExpiresIn: 3600, ObtainedAt: time.Now().UnixMilli()})
		output := &bytes.Buffer{}
		return NewRunner(RunnerOpts{Config: config, Output: output, Logger: shared.NewLogger(&bytes.Buffer{})}), output
	}

	t.Run("devices as CSV", func(t *testing.T) {
		runner, output := setup(t)
		if err := run(t, runner, "player", "devices", "--csv"); err != nil {
			t.Fatalf("player devices error = %v", err)
		}
		if !strings.Contains(output.String(), "d1,Kitchen,Speaker,true,false,40") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("devices as text", func(t *testing.T) {
		runner, output := setup(t)
		if err := run(t, runner, "player", "devices"); err != nil {
			t.Fatalf("player devices error = %v", err)
		}
		if !strings.Contains(output.String(), "Devices (1)") || !strings.Contains(output.String(), "* Kitchen") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("volume", func(t *testing.T) {
		runner, output := setup(t)
		if err := run(t, runner, "player", "volume", "30"); err != nil {
			t.Fatalf("player volume error = %v", err)
		}
		if !strings.Contains(output.String(), "Volume: 30%") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("requires login", func(t *testing.T) {
		config, _ := fileConfig(t)
		config.Credentials.Spotify.APIBaseURL = api.URL + "/v1/"
		runner := NewRunner(RunnerOpts{Config: config, Output: &bytes.Buffer{}, Logger: shared.NewLogger(&bytes.Buffer{})})

		if err := run(t, runner, "player", "next"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes the template once", func(t *testing.T) {
		t.Chdir(t.TempDir())

		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: shared.NewLogger(&bytes.Buffer{})})
		if err := run(t, runner, "setup", "config"); err != nil {
			t.Fatalf("setup config error = %v", err)
		}
		tu.AssertFileExists(t, defaultConfigPath)
		if !strings.Contains(tu.MustReadFile(t, defaultConfigPath), "[credentials.spotify]") {
			t.Error("expected the bundled template")
		}

		if err := run(t, runner, "setup", "config"); err == nil {
			t.Error("expected an error when the file exists")
		}
	})

	t.Run("database migrates", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.toml")
		dbPath := filepath.Join(dir, "spx.db")
		if err := os.WriteFile(configPath, []byte("[database]\npath = \""+filepath.ToSlash(dbPath)+"\"\n"), 0644); err != nil {
			t.Fatal(err)
		}

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})
		if err := run(t, runner, "setup", "database", "--config", configPath); err != nil {
			t.Fatalf("setup database error = %v", err)
		}
		tu.AssertFileExists(t, dbPath)
		if !strings.Contains(output.String(), "Database ready") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}
