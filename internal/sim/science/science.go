// Package science classifies where an experiment is running and builds the
// subject fingerprints stored with its results.
package science

import (
	"strings"

	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/vessel"
)

type Situation string

const (
	SrfLanded   Situation = "SrfLanded"
	SrfSplashed Situation = "SrfSplashed"
	FlyingLow   Situation = "FlyingLow"
	FlyingHigh  Situation = "FlyingHigh"
	InSpaceLow  Situation = "InSpaceLow"
	InSpaceHigh Situation = "InSpaceHigh"
)

func (s Situation) InSpace() bool { return s == InSpaceLow || s == InSpaceHigh }

// Classify maps a vehicle situation and altitude above loc to an experiment situation.
func Classify(loc catalogs.Location, sit vessel.Situation, altitude float64) Situation {
	switch sit {
	case vessel.Landed, vessel.Prelaunch:
		return SrfLanded
	case vessel.Splashed:
		return SrfSplashed
	}
	// Thresholds are inclusive upper bounds.
	switch {
	case loc.Atmosphere && altitude <= loc.FlyingAltitudeThreshold:
		return FlyingLow
	case loc.Atmosphere && altitude <= loc.AtmosphereDepth:
		return FlyingHigh
	case altitude <= loc.SpaceAltitudeThreshold:
		return InSpaceLow
	}
	return InSpaceHigh
}

// SubjectID is "<experiment>@<Body><Situation>".
func SubjectID(experimentID string, body string, s Situation) string {
	return experimentID + "@" + body + string(s)
}

// CurrentSubject returns the fingerprint for an experiment aboard v, or ""
// when the vessel's body is not in the catalog.
func CurrentSubject(experimentID string, locs catalogs.LocationCatalog, v *vessel.Vessel) string {
	if v == nil {
		return ""
	}
	loc, ok := locs.Lookup(v.Body)
	if !ok {
		return ""
	}
	return SubjectID(experimentID, loc.ID, Classify(loc, v.Situation, v.Altitude))
}

// Matches reports whether subjectID was recorded in space around body.
func Matches(subjectID, body string) bool {
	if body == "" {
		return false
	}
	return strings.Contains(strings.ToLower(subjectID), "@"+strings.ToLower(body)+"inspace")
}

// AnyMatches reports whether any of data was recorded in space around body.
func AnyMatches(data []string, body string) bool {
	for _, d := range data {
		if Matches(d, body) {
			return true
		}
	}
	return false
}

// Boring reports the home-world conditions under which running an
// experiment yields nothing: on the surface or inside the atmosphere.
func Boring(loc catalogs.Location, sit vessel.Situation, altitude float64) bool {
	if !loc.Home {
		return false
	}
	return sit.Grounded() || altitude <= loc.AtmosphereDepth
}
