package drivers

// buttonAlias is the HomeKit label and service label index of one button.
type buttonAlias struct {
	label string
	index int
}

// upDown reports whether the button is a raise or lower button.
func (a buttonAlias) upDown() bool {
	return a.label == "Raise" || a.label == "Lower"
}

// buttonMap maps a Pico device type and LEAP button number to its alias.
// Indexes follow the physical top-to-bottom order of the buttons.
var buttonMap = map[string]map[int]buttonAlias{
	"Pico2Button": {
		0: {"On", 1},
		2: {"Off", 2},
	},
	"Pico2ButtonRaiseLower": {
		0: {"On", 1},
		2: {"Off", 4},
		3: {"Raise", 2},
		4: {"Lower", 3},
	},
	"Pico3Button": {
		0: {"On", 1},
		1: {"Center", 2},
		2: {"Off", 3},
	},
	"Pico3ButtonRaiseLower": {
		0: {"On", 1},
		1: {"Center", 3},
		2: {"Off", 5},
		3: {"Raise", 2},
		4: {"Lower", 4},
	},
	"Pico4Button2Group": {
		1: {"Group 1 On", 1},
		2: {"Group 1 Off", 2},
		3: {"Group 2 On", 3},
		4: {"Group 2 Off", 4},
	},
	"Pico4ButtonScene": {
		1: {"Button 1", 1},
		2: {"Button 2", 2},
		3: {"Button 3", 3},
		4: {"Button 4", 4},
	},
	"Pico4ButtonZone": {
		1: {"Button 1", 1},
		2: {"Button 2", 2},
		3: {"Button 3", 3},
		4: {"Button 4", 4},
	},
}
