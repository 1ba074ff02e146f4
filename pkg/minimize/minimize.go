// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package minimize shrinks a captured command stream to the packets needed to
// reproduce some behavior, such as a GPU hang or a rejected submission.
//
// The search is delta debugging over whole packets: packet boundaries are
// never split, so every trial is a well-formed stream. A packet and the NOP
// packets that follow it, which carry its relocations, are kept or removed
// together.
package minimize

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/r600cs/r600cs/pkg/log"
	"github.com/r600cs/r600cs/pkg/pm4"
	"golang.org/x/sync/errgroup"
)

// ErrNotInteresting is returned when the unmodified input does not satisfy
// the oracle.
var ErrNotInteresting = errors.New("input is not interesting")

// Oracle decides whether a trial stream still shows the behavior of interest.
// Interesting may be called concurrently.
type Oracle interface {
	Interesting(ctx context.Context, words []uint32) (bool, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, words []uint32) (bool, error)

// Interesting implements Oracle.Interesting.
func (f OracleFunc) Interesting(ctx context.Context, words []uint32) (bool, error) {
	return f(ctx, words)
}

// Options configure Minimize.
type Options struct {
	// Parallelism is the maximum number of concurrent trials. Zero means
	// GOMAXPROCS.
	Parallelism int

	// Keep lists indices of packets in the input that are never removed,
	// along with the packet or relocation NOPs they are grouped with.
	Keep []int

	// ProgressInterval limits how often progress is logged. Zero means one
	// second.
	ProgressInterval time.Duration
}

// Result is the outcome of a minimization.
type Result struct {
	// Words is the minimized stream.
	Words []uint32

	// Packets is the number of packets in Words.
	Packets int

	// Trials is the number of times the oracle was consulted, including the
	// initial check of the input.
	Trials int
}

type minimizer struct {
	pkts     []pm4.Packet
	units    [][]int      // packet indices, in input order
	keep     map[int]bool // unit indices
	oracle   Oracle
	parallel int
	progress log.Logger
	trials   int
}

// Minimize returns the smallest stream it can find, made of a subset of the
// packets of words in their original order, that oracle still finds
// interesting. words must decode completely.
func Minimize(ctx context.Context, words []uint32, oracle Oracle, opts Options) (Result, error) {
	pkts, err := pm4.Decode(words)
	if err != nil {
		return Result{}, fmt.Errorf("decoding input: %w", err)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = time.Second
	}
	m := &minimizer{
		pkts:     pkts,
		units:    units(pkts),
		keep:     make(map[int]bool),
		oracle:   oracle,
		parallel: opts.Parallelism,
		progress: log.RateLimitedLogger(log.Log(), opts.ProgressInterval),
	}
	unitOf := make([]int, len(pkts))
	for u, idx := range m.units {
		for _, i := range idx {
			unitOf[i] = u
		}
	}
	for _, i := range opts.Keep {
		if i < 0 || i >= len(pkts) {
			return Result{}, fmt.Errorf("kept packet %d out of range [0, %d)", i, len(pkts))
		}
		m.keep[unitOf[i]] = true
	}

	var candidates []int
	for u := range m.units {
		if !m.keep[u] {
			candidates = append(candidates, u)
		}
	}

	first, err := m.try(ctx, [][]int{candidates})
	if err != nil {
		return Result{}, err
	}
	if first < 0 {
		return Result{}, ErrNotInteresting
	}

	candidates, err = m.ddmin(ctx, candidates)
	if err != nil {
		return Result{}, err
	}
	out, err := m.build(candidates)
	if err != nil {
		return Result{}, err
	}
	n := len(m.packets(candidates))
	log.Infof("Minimized %d packets to %d in %d trials", len(pkts), n, m.trials)
	return Result{
		Words:   out,
		Packets: n,
		Trials:  m.trials,
	}, nil
}

// units groups pkts into removal units: each packet other than a NOP,
// together with the NOPs that immediately follow it. NOPs at the start of the
// stream form a unit of their own.
func units(pkts []pm4.Packet) [][]int {
	var us [][]int
	for i, p := range pkts {
		if p.Header.Op() == pm4.NOP && len(us) > 0 {
			us[len(us)-1] = append(us[len(us)-1], i)
			continue
		}
		us = append(us, []int{i})
	}
	return us
}

// ddmin removes candidates until no single part at the finest granularity can
// be removed.
func (m *minimizer) ddmin(ctx context.Context, candidates []int) ([]int, error) {
	n := 2
	for len(candidates) > 0 {
		n = min(n, len(candidates))
		parts := split(candidates, n)
		complements := make([][]int, len(parts))
		for i := range parts {
			complements[i] = without(candidates, parts[i])
		}
		m.progress.Infof("Minimizing: %d removable packets, granularity %d, %d trials so far", len(candidates), n, m.trials)

		i, err := m.try(ctx, complements)
		if err != nil {
			return nil, err
		}
		if i >= 0 {
			candidates = complements[i]
			n = max(n-1, 2)
			continue
		}
		if n >= len(candidates) {
			break
		}
		n = min(2*n, len(candidates))
	}
	return candidates, nil
}

// try runs the oracle on each trial, at most m.parallel at a time, and returns
// the index of the first interesting one or -1.
func (m *minimizer) try(ctx context.Context, trials [][]int) (int, error) {
	results := make([]bool, len(trials))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)
	for i, t := range trials {
		words, err := m.build(t)
		if err != nil {
			return -1, err
		}
		g.Go(func() error {
			ok, err := m.oracle.Interesting(gctx, words)
			if err != nil {
				return fmt.Errorf("trial with %d units: %w", len(t)+len(m.keep), err)
			}
			results[i] = ok
			return nil
		})
	}
	err := g.Wait()
	m.trials += len(trials)
	if err != nil {
		return -1, err
	}
	return slices.Index(results, true), nil
}

// packets returns the packet indices of the kept units and candidates, in
// input order.
func (m *minimizer) packets(candidates []int) []int {
	us := make([]int, 0, len(candidates)+len(m.keep))
	us = append(us, candidates...)
	for u := range m.keep {
		us = append(us, u)
	}
	slices.Sort(us)

	var idx []int
	for _, u := range us {
		idx = append(idx, m.units[u]...)
	}
	return idx
}

// build flattens the kept units and candidates, in input order, and decodes
// the result again to check the packet boundaries survived.
func (m *minimizer) build(candidates []int) ([]uint32, error) {
	idx := m.packets(candidates)
	pkts := make([]pm4.Packet, len(idx))
	for i, j := range idx {
		pkts[i] = m.pkts[j]
	}
	words := pm4.Encode(pkts)
	if got, err := pm4.Decode(words); err != nil || len(got) != len(pkts) {
		return nil, fmt.Errorf("trial stream does not decode to %d packets: %d decoded, err=%v", len(pkts), len(got), err)
	}
	return words, nil
}

// split divides s into n contiguous parts whose sizes differ by at most one.
func split(s []int, n int) [][]int {
	parts := make([][]int, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, s[i*len(s)/n:(i+1)*len(s)/n])
	}
	return parts
}

// without returns s minus the contiguous subslice part.
func without(s, part []int) []int {
	out := make([]int, 0, len(s)-len(part))
	for _, v := range s {
		if !slices.Contains(part, v) {
			out = append(out, v)
		}
	}
	return out
}
