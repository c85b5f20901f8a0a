package trigger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromLog(t *testing.T) {
	tests := []struct {
		line  string
		level int
		ok    bool
	}{
		{line: "_userSystem.Level 4", level: 4, ok: true},
		{line: "[Game] _USERSYSTEM.level12", level: 12, ok: true},
		{line: "Playing cur level 7", level: 7, ok: true},
		{line: "<color=#00ff00>Playing   cur level</color> 3", level: 3, ok: true},
		{line: "Level 5 ended with win", level: 5, ok: true},
		{line: "<b>Level</b> 2 ended with win", level: 2, ok: true},
		{line: "Level 5 ended with loss"},
		{line: "Playing cur level 0"},
		{line: "loading assets 42%"},
		{line: ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			level, ok := LevelFromLog(tt.line)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.level, level)
		})
	}
}
