package ocr

import (
	"sort"

	clipper "github.com/ctessum/go.clipper"

	"github.com/autolabel-ai/go-autolabel/models/model"
	"github.com/autolabel-ai/go-autolabel/results"
)

// unclipRatio controls how far detected regions are expanded before
// cropping, matching the engine's tight score-map contours.
const unclipRatio = 1.5

type params struct {
	textThreshold float32
	lowText       float32
	linkThreshold float32
	widthThs      float32
	heightThs     float32
	minSize       int
}

func detectParams(opts model.PredictOptions) params {
	p := params{
		textThreshold: opts.TextThreshold,
		lowText:       opts.LowText,
		linkThreshold: opts.LinkThreshold,
		widthThs:      opts.WidthThs,
		heightThs:     opts.HeightThs,
		minSize:       opts.MinSize,
	}
	if p.textThreshold <= 0 {
		p.textThreshold = 0.7
	}
	if p.lowText <= 0 {
		p.lowText = 0.4
	}
	if p.linkThreshold <= 0 {
		p.linkThreshold = 0.4
	}
	if p.widthThs <= 0 {
		p.widthThs = 0.5
	}
	if p.heightThs <= 0 {
		p.heightThs = 0.5
	}
	if p.minSize <= 0 {
		p.minSize = 10
	}
	return p
}

// decodeRegions segments the region/affinity score maps into text region
// quads in original-image coordinates. maps is mapSize x mapSize x 2 with
// the region score first per pixel.
func decodeRegions(maps []float32, p params, imgWidth, imgHeight int) [][4]results.Point {
	// Low-text region pixels seed components; affinity pixels above the
	// link threshold join adjacent characters into one word region.
	mask := make([]bool, mapSize*mapSize)
	for i := 0; i < mapSize*mapSize; i++ {
		region := maps[i*2]
		affinity := maps[i*2+1]
		mask[i] = region > p.lowText || affinity > p.linkThreshold
	}

	// The detector input is square, so map coordinates scale back per axis.
	xScale := float32(imgWidth) / float32(mapSize)
	yScale := float32(imgHeight) / float32(mapSize)

	var quads [][4]results.Point
	visited := make([]bool, mapSize*mapSize)
	var stack []int

	for start := 0; start < mapSize*mapSize; start++ {
		if visited[start] || !mask[start] {
			continue
		}

		minX, minY := mapSize, mapSize
		maxX, maxY := 0, 0
		peak := float32(0)

		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			x, y := i%mapSize, i/mapSize
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			if maps[i*2] > peak {
				peak = maps[i*2]
			}

			for _, n := range neighbors(x, y) {
				if !visited[n] && mask[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}

		// Components without a confident region pixel are affinity noise.
		if peak < p.textThreshold {
			continue
		}

		x0, y0, x1, y1 := unclip(
			float32(minX)*xScale, float32(minY)*yScale,
			float32(maxX+1)*xScale, float32(maxY+1)*yScale,
		)
		x0, y0 = clamp(x0, 0, float32(imgWidth)), clamp(y0, 0, float32(imgHeight))
		x1, y1 = clamp(x1, 0, float32(imgWidth)), clamp(y1, 0, float32(imgHeight))

		if x1-x0 < float32(p.minSize) || y1-y0 < float32(p.minSize) {
			continue
		}

		quads = append(quads, [4]results.Point{
			{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1},
		})
	}

	// Reading order: top to bottom, then left to right.
	sort.SliceStable(quads, func(i, j int) bool {
		if quads[i][0][1] != quads[j][0][1] {
			return quads[i][0][1] < quads[j][0][1]
		}
		return quads[i][0][0] < quads[j][0][0]
	})
	return quads
}

func neighbors(x, y int) []int {
	var out []int
	if x > 0 {
		out = append(out, y*mapSize+x-1)
	}
	if x < mapSize-1 {
		out = append(out, y*mapSize+x+1)
	}
	if y > 0 {
		out = append(out, (y-1)*mapSize+x)
	}
	if y < mapSize-1 {
		out = append(out, (y+1)*mapSize+x)
	}
	return out
}

// unclip expands a rectangle by the polygon-offset distance
// area * ratio / perimeter, the standard DB/CRAFT expansion.
func unclip(x0, y0, x1, y1 float32) (float32, float32, float32, float32) {
	w := x1 - x0
	h := y1 - y0
	if w <= 0 || h <= 0 {
		return x0, y0, x1, y1
	}
	distance := float64(w*h) * unclipRatio / float64(2*(w+h))

	path := clipper.Path{
		&clipper.IntPoint{X: clipper.CInt(x0), Y: clipper.CInt(y0)},
		&clipper.IntPoint{X: clipper.CInt(x1), Y: clipper.CInt(y0)},
		&clipper.IntPoint{X: clipper.CInt(x1), Y: clipper.CInt(y1)},
		&clipper.IntPoint{X: clipper.CInt(x0), Y: clipper.CInt(y1)},
	}
	co := clipper.NewClipperOffset()
	co.AddPath(path, clipper.JtRound, clipper.EtClosedPolygon)
	solution := co.Execute(distance)
	if len(solution) == 0 {
		return x0, y0, x1, y1
	}

	ox0, oy0 := x1, y1
	ox1, oy1 := x0, y0
	for _, pt := range solution[0] {
		x, y := float32(pt.X), float32(pt.Y)
		if x < ox0 {
			ox0 = x
		}
		if x > ox1 {
			ox1 = x
		}
		if y < oy0 {
			oy0 = y
		}
		if y > oy1 {
			oy1 = y
		}
	}
	return ox0, oy0, ox1, oy1
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mergeParagraphs joins texts whose boxes sit on the same line into a
// single entry, left to right. Two texts share a line when their vertical
// centers are within heightThs of the taller box and the horizontal gap is
// within widthThs of it.
func mergeParagraphs(texts []results.Text, widthThs, heightThs float32, imgWidth, imgHeight int) []results.Text {
	var merged []results.Text
	used := make([]bool, len(texts))

	for i := range texts {
		if used[i] {
			continue
		}
		group := []results.Text{texts[i]}
		used[i] = true

		for {
			extended := false
			for j := range texts {
				if used[j] {
					continue
				}
				for _, g := range group {
					if sameLine(g, texts[j], widthThs, heightThs) {
						group = append(group, texts[j])
						used[j] = true
						extended = true
						break
					}
				}
			}
			if !extended {
				break
			}
		}

		merged = append(merged, joinGroup(group, imgWidth, imgHeight))
	}
	return merged
}

func sameLine(a, b results.Text, widthThs, heightThs float32) bool {
	ha := a.BBox.H()
	if b.BBox.H() > ha {
		ha = b.BBox.H()
	}

	centerA := a.BBox.Y() + a.BBox.H()/2
	centerB := b.BBox.Y() + b.BBox.H()/2
	if abs32(centerA-centerB) > heightThs*ha {
		return false
	}

	gap := b.BBox.X() - (a.BBox.X() + a.BBox.W())
	if b.BBox.X() < a.BBox.X() {
		gap = a.BBox.X() - (b.BBox.X() + b.BBox.W())
	}
	return gap <= widthThs*ha
}

func joinGroup(group []results.Text, imgWidth, imgHeight int) results.Text {
	if len(group) == 1 {
		return group[0]
	}

	sort.SliceStable(group, func(i, j int) bool {
		return group[i].BBox.X() < group[j].BBox.X()
	})

	x0, y0 := group[0].BBox.X(), group[0].BBox.Y()
	x1 := x0 + group[0].BBox.W()
	y1 := y0 + group[0].BBox.H()
	joined := group[0].Text
	conf := group[0].Confidence

	for _, t := range group[1:] {
		joined += " " + t.Text
		if t.Confidence < conf {
			conf = t.Confidence
		}
		if t.BBox.X() < x0 {
			x0 = t.BBox.X()
		}
		if t.BBox.Y() < y0 {
			y0 = t.BBox.Y()
		}
		if v := t.BBox.X() + t.BBox.W(); v > x1 {
			x1 = v
		}
		if v := t.BBox.Y() + t.BBox.H(); v > y1 {
			y1 = v
		}
	}

	quad := [4]results.Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
	return results.NewText(joined, conf, quad, imgWidth, imgHeight)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
