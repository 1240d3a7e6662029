package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLevelFallback(t *testing.T) {
	log, c, err := New("chatty", "")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", log.GetLevel())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "diesel.log")
	log, c, err := New("debug", path)
	if err != nil {
		t.Fatal(err)
	}
	log.WithField("stage", "device ready").Debug("renderer stage entered")
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `stage="device ready"`) {
		t.Errorf("log file = %q", data)
	}
}
