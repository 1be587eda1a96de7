package db

import (
	"testing"

	"gorm.io/gorm/logger"
)

func TestGormLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want logger.LogLevel
	}{
		{"silent", logger.Silent},
		{"error", logger.Error},
		{"warn", logger.Warn},
		{"info", logger.Info},
		{"", logger.Silent},
		{"verbose", logger.Silent},
	}
	for _, c := range cases {
		if got := gormLogLevel(c.in); got != c.want {
			t.Errorf("gormLogLevel(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
