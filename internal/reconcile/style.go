package reconcile

import "github.com/cablewatch/cablemap/pkg/core"

// Style is the visual treatment of a fault marker.
type Style struct {
	Color  string `json:"color"`
	Radius int    `json:"radius"`
	Icon   string `json:"icon"`
}

var styles = map[core.FaultType]Style{
	core.ShuntFault:        {Color: "#f5c542", Radius: 6, Icon: "shunt"},
	core.PartialFiberBreak: {Color: "#f58a42", Radius: 7, Icon: "partial-break"},
	core.FiberBreak:        {Color: "#e0452b", Radius: 8, Icon: "fiber-break"},
	core.FullCut:           {Color: "#a3001b", Radius: 10, Icon: "full-cut"},
}

var defaultStyle = Style{Color: "#7f7f7f", Radius: 6, Icon: "fault"}

// StyleFor returns the marker style for a fault type.
func StyleFor(t core.FaultType) Style {
	if s, ok := styles[t]; ok {
		return s
	}
	return defaultStyle
}
