package indexing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand/schema"
)

func TestGeodeticRoundTrip(t *testing.T) {
	p := GeodeticToGeocentric(40.0, -75.0, 0).normalize()
	lat, lon := GeocentricToGeodetic(p)
	require.InDelta(t, 40.0, lat, 0.01)
	require.InDelta(t, -75.0, lon, 0.01)
}

func TestToWGS84IdentityForWGS84(t *testing.T) {
	lat, lon, err := ToWGS84(10, 20, 4326)
	require.NoError(t, err)
	require.InDelta(t, 10, lat, 1e-9)
	require.InDelta(t, 20, lon, 1e-9)
}

func TestToWGS84RejectsUnknownSRID(t *testing.T) {
	_, _, err := ToWGS84(10, 20, 9999)
	require.Error(t, err)
}

func TestPointTrixelIsDeterministic(t *testing.T) {
	p := GeodeticToGeocentric(10, 20, 0).normalize()
	a := PointTrixel(p, 6)
	b := PointTrixel(p, 6)
	require.Equal(t, a, b)
	require.NotEmpty(t, a)
}

func TestTrixelizeWholeSphereCoversAllRoots(t *testing.T) {
	c := Circle{Center: Point3{X: 0, Y: 0, Z: 1}, Radius: 4} // > pi, covers sphere
	ids := Trixelize(c, 0.5)
	require.Len(t, ids, 8)
}

func TestIndexGeoPointEmitsTrixelTerm(t *testing.T) {
	spec := concreteSpec(schema.TypeGeo, "location")
	ctx := newCtx()
	v := map[string]interface{}{"lat": 40.0, "lon": -75.0}
	require.NoError(t, Dispatch(spec, v, ctx))
	require.NotEmpty(t, ctx.Doc.Terms())
}

func TestIndexGeoCircleEmitsMultipleTrixels(t *testing.T) {
	spec := concreteSpec(schema.TypeGeo, "region")
	ctx := newCtx()
	v := map[string]interface{}{"lat": 40.0, "lon": -75.0, "radius_meters": 50000.0}
	require.NoError(t, Dispatch(spec, v, ctx))
	require.NotEmpty(t, ctx.Doc.Terms())
}

func TestIndexGeoRejectsMissingCoordinates(t *testing.T) {
	spec := concreteSpec(schema.TypeGeo, "bad")
	ctx := newCtx()
	require.Error(t, Dispatch(spec, map[string]interface{}{"lat": 1.0}, ctx))
}
