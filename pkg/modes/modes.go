package modes

// Mode is one osu! game mode. Every per-user store is partitioned by mode.
type Mode int

const (
	Osu Mode = iota
	Taiko
	Fruits
	Mania
)

// All lists every mode in scheduler order.
var All = []Mode{Osu, Taiko, Fruits, Mania}

var names = [...]string{"osu", "taiko", "fruits", "mania"}

func (m Mode) String() string {
	if m < Osu || int(m) >= len(names) {
		return "osu"
	}
	return names[m]
}

// Resolve maps the public API query parameters to a Mode. The numeric "m"
// selector ("0".."3") takes precedence over the "mode" name; anything else,
// including both parameters missing, resolves to Osu.
func Resolve(mode, m string) Mode {
	if m != "" {
		switch m {
		case "0":
			return Osu
		case "1":
			return Taiko
		case "2":
			return Fruits
		case "3":
			return Mania
		default:
			return Osu
		}
	}
	switch mode {
	case "taiko":
		return Taiko
	case "fruits":
		return Fruits
	case "mania":
		return Mania
	}
	return Osu
}
