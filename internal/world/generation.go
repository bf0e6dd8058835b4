// World generation using layered simplex noise.
// Samples elevation, rainfall, and temperature at every region and site, then
// derives terrain, territory type, strategic value, and resource yield.
package world

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/territory"
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Radius      int     `yaml:"radius" env:"FRONTLINE_WORLD_RADIUS"` // Region grid radius (3 = 37 regions)
	Seed        int64   `yaml:"seed" env:"FRONTLINE_SEED"`           // Random seed (0 = random)
	CellSize    float64 `yaml:"cell_size"`                           // Region circumradius in world units
	Jitter      float64 `yaml:"jitter"`                              // Border noise as a fraction of CellSize
	SeaLevel    float64 `yaml:"sea_level"`                           // Elevation threshold for ocean (0.0–1.0)
	MountainLvl float64 `yaml:"mountain_level"`                      // Elevation threshold for mountains (0.0–1.0)
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius:      3,
		Seed:        0,
		CellSize:    1000,
		Jitter:      0.08,
		SeaLevel:    0.25,
		MountainLvl: 0.72,
	}
}

// SmallTestConfig returns a tiny all-land world for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Radius:      1,
		Seed:        42,
		CellSize:    100,
		Jitter:      0.08,
		SeaLevel:    0,
		MountainLvl: 0.75,
	}
}

// Terrain types sampled at region centers and sites.
type Terrain uint8

const (
	TerrainPlains Terrain = iota
	TerrainForest
	TerrainMountain
	TerrainCoast
	TerrainRiver
	TerrainDesert
	TerrainSwamp
	TerrainTundra
	TerrainOcean
)

type climate struct {
	elev, rain, temp float64
}

type sampler struct {
	cfg    GenConfig
	elev   opensimplex.Noise
	rain   opensimplex.Noise
	temp   opensimplex.Noise
	border opensimplex.Noise
	extent float64
}

func newSampler(cfg GenConfig, seed int64) *sampler {
	return &sampler{
		cfg:    cfg,
		elev:   opensimplex.NewNormalized(seed),
		rain:   opensimplex.NewNormalized(seed + 1),
		temp:   opensimplex.NewNormalized(seed + 2),
		border: opensimplex.NewNormalized(seed + 3),
		extent: cfg.CellSize * math.Sqrt(3) * float64(cfg.Radius+1),
	}
}

// climateAt samples the three layers at a world-space point.
func (s *sampler) climateAt(p geom.Point) climate {
	// Three noise units per region radius.
	x := p.X / s.cfg.CellSize * 3
	y := p.Y / s.cfg.CellSize * 3

	elev := octaveNoise(s.elev, x, y, 4, 0.08, 0.5)
	rain := octaveNoise(s.rain, x, y, 3, 0.06, 0.5)
	temp := octaveNoise(s.temp, x, y, 3, 0.05, 0.5)

	// Continental shaping: reduce elevation near edges to create ocean border.
	distFromCenter := math.Sqrt(p.X*p.X+p.Y*p.Y) / s.extent
	edgeFalloff := 1.0 - math.Pow(distFromCenter, 3.5)
	if edgeFalloff < 0 {
		edgeFalloff = 0
	}
	elev *= edgeFalloff

	// Temperature decreases with elevation and distance from equator.
	temp = temp*0.6 + (1.0-math.Abs(p.Y)/s.extent)*0.3 + (1.0-elev)*0.1
	return climate{elev: elev, rain: rain, temp: temp}
}

// terrainAt derives terrain at p, marking low land next to ocean as coast.
func (s *sampler) terrainAt(p geom.Point) (Terrain, climate) {
	c := s.climateAt(p)
	t := deriveTerrain(c, s.cfg)
	if (t == TerrainPlains || t == TerrainForest) && c.elev < 0.5 && s.nearOcean(p) {
		t = TerrainCoast
	}
	return t, c
}

func (s *sampler) nearOcean(p geom.Point) bool {
	for _, q := range Corners(p, s.cfg.CellSize/2) {
		if deriveTerrain(s.climateAt(q), s.cfg) == TerrainOcean {
			return true
		}
	}
	return false
}

// jitter displaces every vertex by border noise sampled at the vertex itself,
// so neighboring regions share the same displaced corner.
func (s *sampler) jitter(poly geom.Polygon) geom.Polygon {
	amp := s.cfg.Jitter * s.cfg.CellSize
	if amp <= 0 {
		return poly
	}
	out := make(geom.Polygon, len(poly))
	for i, v := range poly {
		x := v.X / s.cfg.CellSize
		y := v.Y / s.cfg.CellSize
		dx := (s.border.Eval2(x, y) - 0.5) * 2 * amp
		dy := (s.border.Eval2(x+31.7, y-17.3) - 0.5) * 2 * amp
		out[i] = geom.Point{X: v.X + dx, Y: v.Y + dy}
	}
	return out
}

// Site offsets: the center district plus six sites toward the region corners.
var siteCompass = [6]string{"Northeast", "North", "Northwest", "Southwest", "South", "Southeast"}

// Generate creates a complete world map. Region ids come first in spiral
// order, each followed by its sites.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	s := newSampler(cfg, seed)
	rng := rand.New(rand.NewSource(seed + 200))

	m := NewMap(cfg.Radius, seed)
	coords := Spiral(cfg.Radius)
	names := generateNames(rng, len(coords))

	siteSize := cfg.CellSize / 5
	var next territory.ID

	for i, coord := range coords {
		center := coord.Center(cfg.CellSize)
		terrain, c := s.terrainAt(center)
		if terrain == TerrainOcean {
			continue
		}

		next++
		regionID := next
		m.Regions[coord] = regionID
		m.Territories = append(m.Territories, territory.Territory{
			ID:   regionID,
			Name: names[i],
			Type: territory.TypeRegion,
			Bounds: territory.Bounds{
				Polygon: s.jitter(Corners(center, cfg.CellSize)),
				Center:  center,
				Radius:  cfg.CellSize * 1.25,
			},
			StrategicValue:     strategicValue(territory.TypeRegion, c.elev),
			ResourceMultiplier: resourceYield(terrain, c),
		})

		for k := 0; k < 7; k++ {
			pos := center
			typ := territory.TypeDistrict
			name := names[i] + " Central"
			st, sc := terrain, c
			if k > 0 {
				a := math.Pi / 180 * float64(60*(k-1)+30)
				pos = geom.Point{
					X: center.X + cfg.CellSize/2*math.Cos(a),
					Y: center.Y + cfg.CellSize/2*math.Sin(a),
				}
				st, sc = s.terrainAt(pos)
				if st == TerrainOcean {
					continue
				}
				typ = siteType(st)
				name = fmt.Sprintf("%s %s %s", names[i], siteCompass[k-1], siteSuffix(typ))
			}

			next++
			m.Territories = append(m.Territories, territory.Territory{
				ID:       next,
				Name:     name,
				Type:     typ,
				ParentID: regionID,
				Bounds: territory.Bounds{
					Polygon: Corners(pos, siteSize),
					Center:  pos,
					Radius:  siteSize * 1.75,
				},
				StrategicValue:     strategicValue(typ, sc.elev),
				ResourceMultiplier: resourceYield(st, sc),
			})
		}
	}

	linkOutposts(m, cfg)
	return m
}

// deriveTerrain determines terrain type from environmental parameters.
func deriveTerrain(c climate, cfg GenConfig) Terrain {
	if c.elev < cfg.SeaLevel {
		return TerrainOcean
	}
	if c.elev > cfg.MountainLvl {
		return TerrainMountain
	}
	if c.temp < 0.25 {
		return TerrainTundra
	}
	if c.rain < 0.25 && c.temp > 0.5 {
		return TerrainDesert
	}
	if c.rain > 0.7 && c.elev < 0.45 {
		return TerrainSwamp
	}
	if c.rain > 0.55 && c.elev < 0.4 {
		return TerrainRiver
	}
	if c.rain > 0.45 && c.elev > 0.45 {
		return TerrainForest
	}
	return TerrainPlains
}

// siteType maps the terrain under a site to the territory type it becomes.
func siteType(t Terrain) territory.Type {
	switch t {
	case TerrainMountain:
		return territory.TypeMilitary
	case TerrainForest, TerrainSwamp:
		return territory.TypeIndustrial
	case TerrainDesert, TerrainTundra:
		return territory.TypeResearch
	case TerrainRiver:
		return territory.TypeEconomic
	case TerrainCoast:
		return territory.TypeOutpost
	default:
		return territory.TypeZone
	}
}

func siteSuffix(t territory.Type) string {
	switch t {
	case territory.TypeMilitary:
		return "Garrison"
	case territory.TypeIndustrial:
		return "Works"
	case territory.TypeResearch:
		return "Station"
	case territory.TypeEconomic:
		return "Exchange"
	case territory.TypeOutpost:
		return "Landing"
	default:
		return "Fields"
	}
}

// strategicValue scores a territory in [1, 10]. High ground and military
// sites weigh more.
func strategicValue(t territory.Type, elev float64) int {
	v := 1 + int(math.Round(elev*7))
	switch t {
	case territory.TypeRegion, territory.TypeMilitary:
		v += 2
	case territory.TypeDistrict, territory.TypeOutpost, territory.TypeResearch:
		v++
	}
	return min(max(v, 1), 10)
}

// resourceYield returns the resource multiplier for a terrain, always > 0.
func resourceYield(t Terrain, c climate) float64 {
	switch t {
	case TerrainPlains:
		return 0.8 + c.rain*0.4 // Rainfall boosts yield
	case TerrainForest:
		return 1.2
	case TerrainMountain:
		y := 1.0 + c.elev*0.5
		if c.elev > 0.85 {
			y += 0.3 // Rare deposits at high elevations
		}
		return y
	case TerrainCoast:
		return 0.9
	case TerrainRiver:
		return 1.1
	case TerrainSwamp:
		return 0.7
	case TerrainTundra:
		return 0.5
	case TerrainDesert:
		if c.elev > 0.5 {
			return 0.7
		}
		return 0.4
	default:
		return 1.0
	}
}

// linkOutposts adds sea lanes: every outpost is linked to the nearest outpost
// of another region within three region radii.
func linkOutposts(m *Map, cfg GenConfig) {
	var outposts []territory.Territory
	for _, t := range m.Territories {
		if t.Type == territory.TypeOutpost {
			outposts = append(outposts, t)
		}
	}

	seen := make(map[Link]bool)
	for _, a := range outposts {
		best := -1
		bestDist := cfg.CellSize * 3
		for j, b := range outposts {
			if b.ParentID == a.ParentID {
				continue
			}
			if d := geom.Dist(a.Bounds.Center, b.Bounds.Center); d < bestDist {
				best, bestDist = j, d
			}
		}
		if best < 0 {
			continue
		}
		l := Link{A: a.ID, B: outposts[best].ID}
		if l.A > l.B {
			l.A, l.B = l.B, l.A
		}
		if !seen[l] {
			seen[l] = true
			m.Links = append(m.Links, l)
		}
	}
	sort.Slice(m.Links, func(i, j int) bool {
		if m.Links[i].A != m.Links[j].A {
			return m.Links[i].A < m.Links[j].A
		}
		return m.Links[i].B < m.Links[j].B
	})
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// generateNames produces procedural region names by combining syllables.
func generateNames(rng *rand.Rand, count int) []string {
	prefixes := []string{
		"Iron", "Green", "Ash", "Stone", "Mill", "Cross", "Black",
		"Silver", "Red", "White", "Dark", "Bright", "High", "Low",
		"Old", "New", "Far", "Deep", "Long", "Broad", "Gold", "Frost",
		"Storm", "Thorn", "Elm", "Oak", "Pine", "Copper", "River",
	}
	suffixes := []string{
		"haven", "ford", "hollow", "wick", "bridge", "gate", "keep",
		"stead", "wood", "field", "dale", "crest", "vale", "port",
		"town", "bury", "marsh", "well", "brook", "cliff", "moor",
		"ridge", "watch", "fall", "rest", "point", "reach", "helm",
	}

	used := make(map[string]bool)
	names := make([]string, 0, count)
	capacity := len(prefixes) * len(suffixes)

	for len(names) < count {
		name := prefixes[rng.Intn(len(prefixes))] + suffixes[rng.Intn(len(suffixes))]
		if len(used) >= capacity {
			name = fmt.Sprintf("%s %d", name, len(names))
		}
		if !used[name] {
			used[name] = true
			names = append(names, name)
		}
	}

	return names
}
