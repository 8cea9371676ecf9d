package pixel

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"sort"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

const (
	cmMaxSide      = 512
	cmMaxKeypoints = 1000
	cmHarrisK      = 0.04
	cmPatchRadius  = 15
	cmBorder       = cmPatchRadius + 3
	cmMinOffset    = 16
	cmRatio        = 0.8
	cmMaxHamming   = 64
	cmBin          = 4
	cmMinCluster   = 6
	cmNMSRadius    = 2
)

type keypoint struct {
	x, y int
	r    float64
}

type descriptor [4]uint64

// briefPairs are the sampling pairs of the BRIEF-256 descriptor. The seed is
// fixed so descriptors are reproducible across runs.
var briefPairs = func() (p [256][4]int) {
	rng := rand.New(rand.NewPCG(0x5EED, 0xB41EF))
	for i := range p {
		for j := range p[i] {
			p[i][j] = rng.IntN(2*cmPatchRadius+1) - cmPatchRadius
		}
	}
	return p
}()

// harrisKeypoints returns the strongest corners after non-maximum
// suppression, ordered by response then position.
func harrisKeypoints(p *plane) []keypoint {
	w, h := p.w, p.h
	if w < 2*cmBorder+1 || h < 2*cmBorder+1 {
		return nil
	}
	xx, yy, xy := newPlane(w, h), newPlane(w, h), newPlane(w, h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := (p.at(x+1, y-1) + 2*p.at(x+1, y) + p.at(x+1, y+1)) - (p.at(x-1, y-1) + 2*p.at(x-1, y) + p.at(x-1, y+1))
			gy := (p.at(x-1, y+1) + 2*p.at(x, y+1) + p.at(x+1, y+1)) - (p.at(x-1, y-1) + 2*p.at(x, y-1) + p.at(x+1, y-1))
			xx.set(x, y, gx*gx)
			yy.set(x, y, gy*gy)
			xy.set(x, y, gx*gy)
		}
	}
	xx, yy, xy = xx.boxBlur(2), yy.boxBlur(2), xy.boxBlur(2)

	resp := newPlane(w, h)
	maxR := 0.0
	for i := range resp.pix {
		a, b, c := xx.pix[i], yy.pix[i], xy.pix[i]
		r := a*b - c*c - cmHarrisK*(a+b)*(a+b)
		resp.pix[i] = r
		maxR = math.Max(maxR, r)
	}
	if maxR <= 0 {
		return nil
	}
	floor := 0.01 * maxR

	var kps []keypoint
	for y := cmBorder; y < h-cmBorder; y++ {
		for x := cmBorder; x < w-cmBorder; x++ {
			r := resp.at(x, y)
			if r <= floor || !localMax(resp, x, y, r) {
				continue
			}
			kps = append(kps, keypoint{x: x, y: y, r: r})
		}
	}
	sort.Slice(kps, func(i, j int) bool {
		if kps[i].r != kps[j].r {
			return kps[i].r > kps[j].r
		}
		if kps[i].y != kps[j].y {
			return kps[i].y < kps[j].y
		}
		return kps[i].x < kps[j].x
	})
	if len(kps) > cmMaxKeypoints {
		kps = kps[:cmMaxKeypoints]
	}
	return kps
}

// localMax treats equal neighbours earlier in raster order as winners.
func localMax(resp *plane, x, y int, r float64) bool {
	for dy := -cmNMSRadius; dy <= cmNMSRadius; dy++ {
		for dx := -cmNMSRadius; dx <= cmNMSRadius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := resp.at(x+dx, y+dy)
			if n > r || (n == r && (dy < 0 || (dy == 0 && dx < 0))) {
				return false
			}
		}
	}
	return true
}

func brief(blurred *plane, k keypoint) descriptor {
	var d descriptor
	for i, pr := range briefPairs {
		a := blurred.at(k.x+pr[0], k.y+pr[1])
		b := blurred.at(k.x+pr[2], k.y+pr[3])
		if a < b {
			d[i/64] |= 1 << (i % 64)
		}
	}
	return d
}

func hamming(a, b descriptor) int {
	n := 0
	for i := range a {
		n += bits.OnesCount64(a[i] ^ b[i])
	}
	return n
}

// detectCopyMove matches keypoints against the rest of the same image and
// clusters the match offsets; a dense cluster means a cloned region.
func detectCopyMove(p *plane) Detection {
	d := Detection{Detector: "copy-move", Kind: document.KindCopyMove}
	p = p.downscale(cmMaxSide)
	kps := harrisKeypoints(p)
	if len(kps) < cmMinCluster*2 {
		return d
	}
	blurred := p.boxBlur(2)
	descs := make([]descriptor, len(kps))
	for i, k := range kps {
		descs[i] = brief(blurred, k)
	}

	type pair struct{ a, b int }
	seen := make(map[pair]bool)
	clusters := make(map[[2]int]int)
	for i := range kps {
		best, second, bj := math.MaxInt, math.MaxInt, -1
		for j := range kps {
			if i == j {
				continue
			}
			dx, dy := kps[j].x-kps[i].x, kps[j].y-kps[i].y
			if dx*dx+dy*dy < cmMinOffset*cmMinOffset {
				continue
			}
			hd := hamming(descs[i], descs[j])
			if hd < best {
				best, second, bj = hd, best, j
			} else if hd < second {
				second = hd
			}
		}
		if bj < 0 || best > cmMaxHamming || float64(best) >= cmRatio*float64(second) {
			continue
		}
		key := pair{min(i, bj), max(i, bj)}
		if seen[key] {
			continue
		}
		seen[key] = true

		a, b := kps[key.a], kps[key.b]
		dx, dy := b.x-a.x, b.y-a.y
		if dx < 0 || (dx == 0 && dy < 0) {
			dx, dy = -dx, -dy
		}
		bin := [2]int{int(math.Floor(float64(dx) / cmBin)), int(math.Floor(float64(dy) / cmBin))}
		clusters[bin]++
	}

	largest, at := 0, [2]int{}
	for bin, n := range clusters {
		if n > largest || (n == largest && (bin[0] < at[0] || (bin[0] == at[0] && bin[1] < at[1]))) {
			largest, at = n, bin
		}
	}
	if largest >= cmMinCluster {
		d.Confidence = clamp01(0.4 + 0.05*float64(largest-cmMinCluster))
		d.Detail = fmt.Sprintf("%d keypoint matches share offset ~(%d,%d) px", largest, at[0]*cmBin, at[1]*cmBin)
	}
	return d
}
