package log

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetLevel(t *testing.T) {
	defer Log.SetLevel(logrus.WarnLevel)

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel(debug): %v", err)
	}
	if Log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", Log.GetLevel())
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("SetLevel(loud) should fail")
	}
}

func TestDebugSuppressedAtDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	WithFields(logrus.Fields{"path": "a.txt"}).Debug("hidden")
	WithFields(logrus.Fields{"ref": "refs/heads/master"}).Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "ref=refs/heads/master") {
		t.Errorf("warn line missing fields: %q", out)
	}
}
