package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitProductionUsesJSON(t *testing.T) {
	Init("debug", "production")
	if Log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", Log.GetLevel())
	}
	if _, ok := Log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", Log.Formatter)
	}
}

func TestInitInvalidLevelFallsBackToInfo(t *testing.T) {
	Init("loud", "development")
	if Log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", Log.GetLevel())
	}
	if _, ok := Log.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected text formatter, got %T", Log.Formatter)
	}
}
