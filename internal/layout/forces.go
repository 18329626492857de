package layout

import "math"

// labelNudge is the share of the vertical gap applied to overlapping labels.
const labelNudge = 1.0 / 32

// tick advances the simulation once and reports whether it should continue.
// Forces only accumulate velocity; positions change in integrate.
func (s *Simulation) tick() bool {
	s.alpha -= s.alpha * s.decay

	s.applyLinks()
	s.applyManyBody()
	s.applyCollision()
	s.applyLabelCollision()
	s.applyCentering()
	s.recordStats()
	s.integrate()

	s.ticks++
	return !s.converged()
}

func (s *Simulation) converged() bool {
	p := s.params
	if s.alpha < p.AlphaMin {
		return true
	}
	return s.ticks > p.MinTicks && s.maxVX < p.VelocityThreshold && s.maxVY < p.VelocityThreshold
}

// applyLinks pulls the endpoints of every edge toward the rest length,
// moving the lower-degree endpoint more.
func (s *Simulation) applyLinks() {
	for k, e := range s.edges {
		if e.Source == e.Target {
			continue
		}
		src, tgt := &s.nodes[e.Source], &s.nodes[e.Target]

		dx := tgt.X + tgt.VX - src.X - src.VX
		if dx == 0 {
			dx = jiggle(s.rng)
		}
		dy := tgt.Y + tgt.VY - src.Y - src.VY
		if dy == 0 {
			dy = jiggle(s.rng)
		}

		l := math.Sqrt(dx*dx + dy*dy)
		l = (l - s.params.RestLength) / l * s.alpha * s.strength[k]
		dx *= l
		dy *= l

		b := s.bias[k]
		tgt.VX -= dx * b
		tgt.VY -= dy * b
		src.VX += dx * (1 - b)
		src.VY += dy * (1 - b)
	}
}

// applyManyBody repels every node from every other node. Each ordered pair
// contributes once, to its first node.
func (s *Simulation) applyManyBody() {
	charge := s.params.Charge * s.alpha
	min2 := s.params.MinDistance2

	for i := range s.nodes {
		n := &s.nodes[i]
		for j := range s.nodes {
			if i == j {
				continue
			}
			other := &s.nodes[j]

			dx := other.X - n.X
			dy := other.Y - n.Y
			l := dx*dx + dy*dy
			if dx == 0 {
				dx = jiggle(s.rng)
				l += dx * dx
			}
			if dy == 0 {
				dy = jiggle(s.rng)
				l += dy * dy
			}
			if l < min2 {
				l = math.Sqrt(min2 * l)
			}

			n.VX += dx * charge / l
			n.VY += dy * charge / l
		}
	}
}

// applyCollision separates nodes whose circles overlap once projected one
// tick ahead. Nodes share one radius, so each takes half the correction.
func (s *Simulation) applyCollision() {
	r := 2 * s.params.CollideRadius
	if r <= 0 {
		return
	}
	const weight = 0.5

	for i := range s.nodes {
		a := &s.nodes[i]
		for j := i + 1; j < len(s.nodes); j++ {
			b := &s.nodes[j]

			dx := a.X + a.VX - b.X - b.VX
			dy := a.Y + a.VY - b.Y - b.VY
			l := dx*dx + dy*dy
			if l >= r*r {
				continue
			}
			if dx == 0 {
				dx = jiggle(s.rng)
				l += dx * dx
			}
			if dy == 0 {
				dy = jiggle(s.rng)
				l += dy * dy
			}

			l = math.Sqrt(l)
			l = (r - l) / l
			dx *= l
			dy *= l

			a.VX += dx * weight
			a.VY += dy * weight
			b.VX -= dx * (1 - weight)
			b.VY -= dy * (1 - weight)
		}
	}
}

// applyLabelCollision pushes apart, vertically, nodes whose label boxes
// overlap on both axes.
func (s *Simulation) applyLabelCollision() {
	for i := range s.nodes {
		a := &s.nodes[i]
		for j := i + 1; j < len(s.nodes); j++ {
			b := &s.nodes[j]

			if math.Abs(a.X-b.X) >= (a.Width+b.Width)/2 {
				continue
			}
			if math.Abs(a.Y-b.Y) >= (a.Height+b.Height)/2 {
				continue
			}

			var nudge float64
			if dy := a.Y - b.Y; dy != 0 {
				nudge = dy * labelNudge
			} else {
				nudge = jiggle(s.rng)
			}
			a.VY += nudge
			b.VY -= nudge
		}
	}
}

// applyCentering pulls every node toward the origin.
func (s *Simulation) applyCentering() {
	kx := s.params.CenterX * s.alpha
	ky := s.params.CenterY * s.alpha
	for i := range s.nodes {
		n := &s.nodes[i]
		n.VX -= n.X * kx
		n.VY -= n.Y * ky
	}
}

func (s *Simulation) recordStats() {
	s.maxVX, s.maxVY = 0, 0
	for _, n := range s.nodes {
		s.maxVX = math.Max(s.maxVX, math.Abs(n.VX))
		s.maxVY = math.Max(s.maxVY, math.Abs(n.VY))
	}
}

// integrate applies velocities. A pinned node is held at its pin and
// reheats the simulation.
func (s *Simulation) integrate() {
	decay := s.params.VelocityDecay
	for i := range s.nodes {
		n := &s.nodes[i]
		if n.Pinned {
			n.X, n.Y = n.FX, n.FY
			n.VX, n.VY = 0, 0
			s.alpha = 1
			continue
		}
		n.VX *= decay
		n.VY *= decay
		n.X += n.VX
		n.Y += n.VY
	}
}
