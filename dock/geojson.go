package dock

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature kinds carried in the "kind" property
const (
	KindSensor    = "sensor"
	KindScan      = "scan"
	KindFootprint = "footprint"
	KindProfile   = "profile"
	KindGoal      = "goal"
)

// SceneFeatureCollection exports a snapshot as GeoJSON in the sensor frame.
// Coordinates are metres, not longitude/latitude.
func SceneFeatureCollection(snap Snapshot, tmpl *TemplateModel, threshold float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	sensor := geojson.NewFeature(orb.Point{0, 0})
	sensor.Properties["kind"] = KindSensor
	sensor.Properties["frame"] = snap.Frame
	fc.Append(sensor)

	if len(snap.Points) > 0 {
		mp := make(orb.MultiPoint, len(snap.Points))
		for i, p := range snap.Points {
			mp[i] = toOrb(p)
		}
		scan := geojson.NewFeature(mp)
		scan.Properties["kind"] = KindScan
		scan.Properties["points"] = len(snap.Points)
		fc.Append(scan)
	}

	best := snap.Best
	if best.IsSentinel() || tmpl == nil {
		return fc
	}

	pose := best.Matrix()
	footprint := geojson.NewFeature(orb.Polygon{closedRing(TransformPoints(tmpl.Footprint(), pose))})
	footprint.Properties["kind"] = KindFootprint
	footprint.Properties["score"] = best.Score
	footprint.Properties["heading"] = best.Heading
	footprint.Properties["accepted"] = !best.Degenerate && best.Score >= threshold
	footprint.Properties["converged"] = best.Converged
	fc.Append(footprint)

	profile := geojson.NewFeature(toLineString(TransformPoints(tmpl.Profile(), pose)))
	profile.Properties["kind"] = KindProfile
	fc.Append(profile)

	if g := snap.Goal; g != nil {
		goal := geojson.NewFeature(orb.Point{g.X, g.Y})
		goal.Properties["kind"] = KindGoal
		goal.Properties["heading"] = g.Heading
		if snap.Outcome != "" {
			goal.Properties["outcome"] = string(snap.Outcome)
		}
		fc.Append(goal)
	}
	return fc
}

func toLineString(pts []Point) orb.LineString {
	ls := make(orb.LineString, len(pts))
	for i, p := range pts {
		ls[i] = toOrb(p)
	}
	return ls
}

// closedRing repeats the first vertex at the end as GeoJSON rings require
func closedRing(pts []Point) orb.Ring {
	ring := orb.Ring(toLineString(pts))
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}
