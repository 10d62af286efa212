package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestLoad(t *testing.T) {
	Convey("Test Load", t, func() {
		Convey("no config file falls back to the default policy", func() {
			cfg := Load(t.TempDir())
			So(cfg, ShouldResemble, Default())
			So(cfg.IsEnabled(), ShouldBeTrue)
		})

		Convey("sparse yaml config keeps defaults for unset sections", func() {
			root := writeConfig(t, "vibesec.config.yaml", `
rlsScanner:
  whitelistedTables:
    - migrations
`)
			cfg := Load(root)
			So(cfg.RLSScanner.WhitelistedTables, ShouldResemble, []string{"migrations"})
			So(cfg.SecretScanner.ClientPrefixes, ShouldResemble, Default().SecretScanner.ClientPrefixes)
			So(cfg.Watcher.DebounceMs, ShouldEqual, 500)
			So(cfg.RLSScanner.Authority.TimeoutMs, ShouldEqual, 10000)
		})

		Convey("yaml overrides replace defaults", func() {
			root := writeConfig(t, "vibesec.config.yaml", `
watcher:
  debounceMs: 1200
sqlScanner:
  extensions: [".ts", ".svelte"]
scanners:
  sqlinject:
    rules:
      unparameterized-rpc:
        severity: critical
`)
			cfg := Load(root)
			So(cfg.Watcher.DebounceMs, ShouldEqual, 1200)
			So(cfg.SQLScanner.Extensions, ShouldResemble, []string{".ts", ".svelte"})
			So(cfg.Scanners["sqlinject"].Rules["unparameterized-rpc"].Severity, ShouldEqual, "critical")
		})

		Convey("jsonc config with comments and trailing commas parses", func() {
			root := writeConfig(t, "vibesec.config.json", `{
  // policy for the storefront app
  "watcher": { "debounceMs": 250 },
  "rlsScanner": {
    "authority": { "kind": "http", "url": "https://mgmt.example.com", },
  },
}`)
			cfg := Load(root)
			So(cfg.Watcher.DebounceMs, ShouldEqual, 250)
			So(cfg.RLSScanner.Authority.Kind, ShouldEqual, "http")
			So(cfg.RLSScanner.Authority.URL, ShouldEqual, "https://mgmt.example.com")
		})

		Convey("json config failing schema validation falls back to the default policy", func() {
			root := writeConfig(t, "vibesec.config.json", `{"watcher": {"debounceMs": "fast"}}`)
			So(Load(root), ShouldResemble, Default())
		})

		Convey("unparseable yaml falls back to the default policy", func() {
			root := writeConfig(t, "vibesec.config.yaml", "watcher: [not: a: mapping")
			So(Load(root), ShouldResemble, Default())
		})

		Convey("enabled false is preserved", func() {
			root := writeConfig(t, "vibesec.config.yaml", "enabled: false\n")
			So(Load(root).IsEnabled(), ShouldBeFalse)
		})

		Convey("yaml is preferred over json when both exist", func() {
			root := writeConfig(t, "vibesec.config.yaml", "watcher:\n  debounceMs: 111\n")
			err := os.WriteFile(filepath.Join(root, "vibesec.config.json"),
				[]byte(`{"watcher": {"debounceMs": 999}}`), 0o644)
			So(err, ShouldBeNil)
			So(Load(root).Watcher.DebounceMs, ShouldEqual, 111)
		})
	})
}

func TestLoadFile(t *testing.T) {
	Convey("Test LoadFile", t, func() {
		Convey("explicit path is honored", func() {
			root := writeConfig(t, "custom.yaml", "watcher:\n  debounceMs: 42\n")
			cfg := LoadFile(filepath.Join(root, "custom.yaml"))
			So(cfg.Watcher.DebounceMs, ShouldEqual, 42)
		})

		Convey("missing file falls back to the default policy", func() {
			So(LoadFile("/does/not/exist.yaml"), ShouldResemble, Default())
		})
	})
}

func TestCheckToolVersion(t *testing.T) {
	Convey("Test CheckToolVersion", t, func() {
		Convey("no constraint always passes", func() {
			So(Default().CheckToolVersion("0.1.0"), ShouldBeNil)
		})

		Convey("satisfied constraint passes", func() {
			cfg := Default()
			cfg.MinToolVersion = "0.2.0"
			So(cfg.CheckToolVersion("0.3.0"), ShouldBeNil)
			So(cfg.CheckToolVersion("0.2.0"), ShouldBeNil)
		})

		Convey("unsatisfied constraint fails", func() {
			cfg := Default()
			cfg.MinToolVersion = "1.0.0"
			err := cfg.CheckToolVersion("0.3.0")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "requires vibesec >= 1.0.0")
		})

		Convey("garbage constraint fails", func() {
			cfg := Default()
			cfg.MinToolVersion = "not-a-version"
			So(cfg.CheckToolVersion("0.3.0"), ShouldNotBeNil)
		})
	})
}
