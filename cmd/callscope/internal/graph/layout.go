// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
)

// ErrInvalidLayout is returned by Start for unusable physics settings.
var ErrInvalidLayout = errors.New("invalid layout configuration")

// Point is a position in layout space. Units are pixels.
type Point struct {
	X, Y float64
}

// =============================================================================
// Engine
// =============================================================================

// Engine starts layout simulations.
type Engine interface {
	// Start positions the nodes of ix inside a width x height pixel area
	// and begins converging them in the background.
	Start(ix *Index, width, height float64) (Layout, error)
}

// Layout is one running simulation.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Layout interface {
	// Stabilized is closed once the simulation has converged. It is
	// never closed if the layout is stopped first.
	Stabilized() <-chan struct{}

	// Positions returns a snapshot indexed like Index.Nodes.
	Positions() []Point

	// Stop ends the simulation and waits for it to exit. Idempotent.
	Stop()
}

// LayoutConfig holds the physics settings of the force-directed engine.
type LayoutConfig struct {
	// Repulsion scales the inverse-square push between every node pair.
	// Default: 2000
	Repulsion float64 `yaml:"repulsion"`

	// SpringLength is the rest length of an edge spring.
	// Default: 95
	SpringLength float64 `yaml:"spring_length"`

	// SpringConstant is the edge spring stiffness.
	// Default: 0.04
	SpringConstant float64 `yaml:"spring_constant"`

	// CentralGravity pulls nodes toward the area center.
	// Default: 0.01
	CentralGravity float64 `yaml:"central_gravity"`

	// Damping is the fraction of velocity lost per step, in (0, 1).
	// Default: 0.09
	Damping float64 `yaml:"damping"`

	// MinVelocity is the speed below which every node counts as at rest.
	// Default: 0.75
	MinVelocity float64 `yaml:"min_velocity"`

	// MaxIterations bounds the simulation. Reaching it also counts as
	// stabilization.
	// Default: 1000
	MaxIterations int `yaml:"max_iterations"`

	// StepDelay pauses between steps so partial layouts are visible.
	// Default: 0
	StepDelay time.Duration `yaml:"step_delay"`
}

// DefaultLayoutConfig returns the default physics settings.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		Repulsion:      2000,
		SpringLength:   95,
		SpringConstant: 0.04,
		CentralGravity: 0.01,
		Damping:        0.09,
		MinVelocity:    0.75,
		MaxIterations:  1000,
	}
}

// Validate checks the settings.
func (c LayoutConfig) Validate() error {
	switch {
	case c.Repulsion < 0:
		return fmt.Errorf("%w: repulsion must be >= 0", ErrInvalidLayout)
	case c.SpringLength <= 0:
		return fmt.Errorf("%w: spring_length must be > 0", ErrInvalidLayout)
	case c.SpringConstant < 0:
		return fmt.Errorf("%w: spring_constant must be >= 0", ErrInvalidLayout)
	case c.Damping <= 0 || c.Damping >= 1:
		return fmt.Errorf("%w: damping must be in (0, 1)", ErrInvalidLayout)
	case c.MaxIterations <= 0:
		return fmt.Errorf("%w: max_iterations must be > 0", ErrInvalidLayout)
	}
	return nil
}

// ForceEngine runs a force-directed simulation on its own goroutine.
type ForceEngine struct {
	Config LayoutConfig
}

// NewForceEngine creates an engine with cfg.
func NewForceEngine(cfg LayoutConfig) *ForceEngine {
	return &ForceEngine{Config: cfg}
}

// Start seeds the nodes on a circle around the area center and starts
// the simulation.
//
// # Outputs
//
//   - Layout: The running simulation.
//   - error: ErrInvalidLayout for bad settings or a degenerate area.
func (e *ForceEngine) Start(ix *Index, width, height float64) (Layout, error) {
	if err := e.Config.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: area %.0fx%.0f", ErrInvalidLayout, width, height)
	}

	s := &simulation{
		cfg:        e.Config,
		center:     Point{X: width / 2, Y: height / 2},
		pos:        seedCircle(ix.Len(), width, height),
		vel:        make([]Point, ix.Len()),
		stabilized: make(chan struct{}),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, edge := range ix.Edges() {
		s.springs = append(s.springs, [2]int{ix.Position(edge.From), ix.Position(edge.To)})
	}
	s.snapshot = append([]Point(nil), s.pos...)

	// A panic leaves the partial layout in place; the caller's timeout
	// reports it.
	util.SafeGo(s.run, nil)
	return s, nil
}

// seedCircle places n points evenly on a circle.
func seedCircle(n int, width, height float64) []Point {
	pts := make([]Point, n)
	if n == 0 {
		return pts
	}
	cx, cy := width/2, height/2
	if n == 1 {
		pts[0] = Point{cx, cy}
		return pts
	}
	radius := math.Min(width, height) / 3
	for i := range pts {
		angle := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = Point{X: cx + radius*math.Cos(angle), Y: cy + radius*math.Sin(angle)}
	}
	return pts
}

// =============================================================================
// Simulation
// =============================================================================

type simulation struct {
	cfg     LayoutConfig
	center  Point
	pos     []Point
	vel     []Point
	springs [][2]int

	mu       sync.RWMutex
	snapshot []Point

	stabilized chan struct{}
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

func (s *simulation) Stabilized() <-chan struct{} { return s.stabilized }

func (s *simulation) Positions() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Point(nil), s.snapshot...)
}

func (s *simulation) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *simulation) run() {
	defer close(s.done)

	for i := 0; i < s.cfg.MaxIterations; i++ {
		select {
		case <-s.stop:
			return
		default:
		}

		speed := s.step()
		s.publish()
		if speed < s.cfg.MinVelocity {
			break
		}
		if s.cfg.StepDelay > 0 {
			select {
			case <-s.stop:
				return
			case <-time.After(s.cfg.StepDelay):
			}
		}
	}
	close(s.stabilized)
}

func (s *simulation) publish() {
	s.mu.Lock()
	copy(s.snapshot, s.pos)
	s.mu.Unlock()
}

// step advances the simulation once and returns the fastest node speed.
func (s *simulation) step() float64 {
	n := len(s.pos)
	force := make([]Point, n)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := s.pos[i].X - s.pos[j].X
			dy := s.pos[i].Y - s.pos[j].Y
			dist2 := dx*dx + dy*dy
			if dist2 < 0.01 {
				// Coincident nodes get a deterministic nudge apart.
				dx, dy, dist2 = float64(i-j), 1, float64((i-j)*(i-j))+1
			}
			dist := math.Sqrt(dist2)
			f := s.cfg.Repulsion / dist2
			fx, fy := f*dx/dist, f*dy/dist
			force[i].X += fx
			force[i].Y += fy
			force[j].X -= fx
			force[j].Y -= fy
		}
	}

	for _, sp := range s.springs {
		a, b := sp[0], sp[1]
		if a == b {
			continue
		}
		dx := s.pos[b].X - s.pos[a].X
		dy := s.pos[b].Y - s.pos[a].Y
		dist := math.Max(math.Hypot(dx, dy), 0.1)
		f := s.cfg.SpringConstant * (dist - s.cfg.SpringLength)
		fx, fy := f*dx/dist, f*dy/dist
		force[a].X += fx
		force[a].Y += fy
		force[b].X -= fx
		force[b].Y -= fy
	}

	var fastest float64
	for i := range s.pos {
		force[i].X -= s.cfg.CentralGravity * (s.pos[i].X - s.center.X)
		force[i].Y -= s.cfg.CentralGravity * (s.pos[i].Y - s.center.Y)

		v := Point{
			X: (s.vel[i].X + force[i].X) * (1 - s.cfg.Damping),
			Y: (s.vel[i].Y + force[i].Y) * (1 - s.cfg.Damping),
		}
		speed := math.Hypot(v.X, v.Y)
		if speed > maxSpeed {
			v.X, v.Y = v.X*maxSpeed/speed, v.Y*maxSpeed/speed
			speed = maxSpeed
		}
		s.vel[i] = v
		s.pos[i].X += v.X
		s.pos[i].Y += v.Y
		fastest = math.Max(fastest, speed)
	}
	return fastest
}

// maxSpeed caps per-step movement so large forces cannot fling nodes.
const maxSpeed = 50
