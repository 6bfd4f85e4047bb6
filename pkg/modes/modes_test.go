package modes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rankline/scorerank/pkg/modes"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name string
		mode string
		m    string
		want modes.Mode
	}{
		{"numeric osu", "", "0", modes.Osu},
		{"numeric taiko", "", "1", modes.Taiko},
		{"numeric fruits", "", "2", modes.Fruits},
		{"numeric mania", "", "3", modes.Mania},
		{"numeric out of range", "", "7", modes.Osu},
		{"numeric garbage", "", "abc", modes.Osu},
		{"m takes precedence over mode", "mania", "1", modes.Taiko},
		{"garbage m still beats valid mode", "mania", "x", modes.Osu},
		{"name taiko", "taiko", "", modes.Taiko},
		{"name fruits", "fruits", "", modes.Fruits},
		{"name mania", "mania", "", modes.Mania},
		{"name osu", "osu", "", modes.Osu},
		{"unknown name", "ctb", "", modes.Osu},
		{"both missing", "", "", modes.Osu},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, modes.Resolve(tc.mode, tc.m))
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "osu", modes.Osu.String())
	assert.Equal(t, "taiko", modes.Taiko.String())
	assert.Equal(t, "fruits", modes.Fruits.String())
	assert.Equal(t, "mania", modes.Mania.String())
	assert.Equal(t, "osu", modes.Mode(42).String())
}
