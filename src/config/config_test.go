package config

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestDefaultConfig(t *testing.T) {
	conf := NewDefaultConfig()

	if conf.BindAddr != DefaultBindAddr {
		t.Fatalf("wrong default BindAddr: %s", conf.BindAddr)
	}
	if conf.NodeConfig.ActiveViewSize == 0 {
		t.Fatal("node defaults should be populated")
	}
}

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/treecast-test")

	if conf.DataDir != "/tmp/treecast-test" {
		t.Fatalf("wrong DataDir: %s", conf.DataDir)
	}
	want := filepath.Join("/tmp/treecast-test", DefaultContactsFile)
	if conf.ContactsFile() != want {
		t.Fatalf("wrong ContactsFile: %s", conf.ContactsFile())
	}
}

func TestLogLevel(t *testing.T) {
	if LogLevel("info") != logrus.InfoLevel {
		t.Fatal("info should parse")
	}
	if LogLevel("nonsense") != logrus.DebugLevel {
		t.Fatal("unknown level should default to debug")
	}
}

func TestLoggerSingleton(t *testing.T) {
	conf := NewTestConfig(t)

	l1 := conf.Logger()
	l2 := conf.Logger()
	if l1 != l2 {
		t.Fatal("Logger should be built once")
	}
}
