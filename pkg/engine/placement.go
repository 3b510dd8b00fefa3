package engine

// VimInstanceName returns the site binding name for a testbed.
func VimInstanceName(site string) string {
	return "vim-instance-" + site
}

// Placement builds the unit → site bindings for a record. The result has an
// entry for every unit. With a wildcard key every unit is bound to every
// site in testbeds; otherwise a unit is bound to the sites named for it and
// left with no binding when the map does not mention it. Entries naming
// units that are not in units are ignored.
func Placement(units []string, testbeds TestbedMap) map[string][]string {
	placement := make(map[string][]string, len(units))

	if testbeds.Wildcard() {
		var bindings []string
		for _, site := range testbeds.Sites() {
			bindings = append(bindings, VimInstanceName(site))
		}
		for _, unit := range units {
			placement[unit] = append([]string{}, bindings...)
		}
		return placement
	}

	for _, unit := range units {
		bindings := []string{}
		seen := make(map[string]bool)
		for _, site := range testbeds[unit] {
			if !seen[site] {
				seen[site] = true
				bindings = append(bindings, VimInstanceName(site))
			}
		}
		placement[unit] = bindings
	}
	return placement
}
