package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// GRS80 ellipsoid used by NAD83.
const (
	grs80A = 6378137.0
	grs80F = 1 / 298.257222101

	// usSurveyFoot is the length of one US survey foot in metres.
	usSurveyFoot = 1200.0 / 3937.0
)

// lcc is a Lambert Conformal Conic projection with two standard parallels
// (EPSG method 9802). Angles are stored in radians, offsets in metres.
type lcc struct {
	e      float64
	lon0   float64
	n      float64
	f      float64
	rho0   float64
	x0, y0 float64
	unit   float64
}

// nyLongIsland holds the EPSG:2263 parameters.
var nyLongIsland = newLCC(
	41+2.0/60,  // first standard parallel
	40+40.0/60, // second standard parallel
	40+10.0/60, // latitude of false origin
	-74,        // longitude of false origin
	300000, 0,  // false easting/northing, metres
	usSurveyFoot, // output unit
)

func newLCC(lat1, lat2, lat0, lon0, x0, y0, unit float64) *lcc {
	e := math.Sqrt(2*grs80F - grs80F*grs80F)
	p := &lcc{e: e, lon0: rad(lon0), x0: x0, y0: y0, unit: unit}
	phi1, phi2 := rad(lat1), rad(lat2)
	m1, m2 := p.m(phi1), p.m(phi2)
	t1, t2 := p.t(phi1), p.t(phi2)
	p.n = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	p.f = m1 / (p.n * math.Pow(t1, p.n))
	p.rho0 = grs80A * p.f * math.Pow(p.t(rad(lat0)), p.n)
	return p
}

func (p *lcc) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-p.e*p.e*s*s)
}

func (p *lcc) t(phi float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-p.e*s)/(1+p.e*s), p.e/2)
}

// forward maps lon/lat degrees to projected x/y in the output unit.
func (p *lcc) forward(pt orb.Point) orb.Point {
	lon, lat := rad(pt[0]), rad(pt[1])
	rho := grs80A * p.f * math.Pow(p.t(lat), p.n)
	theta := p.n * (lon - p.lon0)
	x := p.x0 + rho*math.Sin(theta)
	y := p.y0 + p.rho0 - rho*math.Cos(theta)
	return orb.Point{x / p.unit, y / p.unit}
}

// inverse maps projected x/y back to lon/lat degrees.
func (p *lcc) inverse(pt orb.Point) orb.Point {
	dx := pt[0]*p.unit - p.x0
	dy := p.rho0 - (pt[1]*p.unit - p.y0)
	rho := math.Copysign(math.Hypot(dx, dy), p.n)
	theta := math.Atan2(dx, dy)
	if p.n < 0 {
		theta = math.Atan2(-dx, -dy)
	}
	t := math.Pow(rho/(grs80A*p.f), 1/p.n)
	lon := theta/p.n + p.lon0

	lat := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		s := math.Sin(lat)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-p.e*s)/(1+p.e*s), p.e/2))
		if math.Abs(next-lat) < 1e-12 {
			lat = next
			break
		}
		lat = next
	}
	return orb.Point{deg(lon), deg(lat)}
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
