package scenario

// BuiltIn returns predefined cargo scripts.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"weigh-station": {
			Name:        "Weigh Station",
			Description: "Truck idles near the threshold, then takes one extra pallet and trips the overload alert.",
			Events: []Event{
				{Tick: 3, Kind: KindLoad, Tons: 1.0, Note: "extra pallet"},
			},
		},
		"delivery-route": {
			Name:        "Delivery Route",
			Description: "Loaded at the depot, overloaded at a pickup, then unloaded stop by stop.",
			Events: []Event{
				{Tick: 2, Kind: KindLoad, Tons: 4.0, Note: "depot"},
				{Tick: 10, Kind: KindLoad, Tons: 2.5, Note: "pickup"},
				{Tick: 20, Kind: KindUnload, Tons: 3.0, Note: "first drop"},
				{Tick: 30, Kind: KindUnload, Tons: 2.0, Note: "second drop"},
				{Tick: 40, Kind: KindUnload, Tons: 1.5, Note: "return to depot"},
			},
		},
	}
}
