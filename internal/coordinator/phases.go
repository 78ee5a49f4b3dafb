package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"DistWordCount/internal/layout"
	"DistWordCount/internal/remote"
	"DistWordCount/internal/types"
)

// fanOut runs every chain on its own goroutine and joins them all. Only
// failures to start a process are returned.
func fanOut(ctx context.Context, chains []*remote.Chain) error {
	var wg sync.WaitGroup
	errs := make([]error, len(chains))

	for i, c := range chains {
		wg.Add(1)
		go func(i int, c *remote.Chain) {
			defer wg.Done()
			errs[i] = c.Run(ctx)
		}(i, c)
	}

	wg.Wait()
	return errors.Join(errs...)
}

func relSplit(s types.Split) string {
	return layout.Relative(layout.SplitsDir, layout.SplitName(s.Index))
}

// step is one labelled command of a chain.
type step struct {
	label string
	cmd   remote.Command
}

func (o *Orchestrator) chain(phase types.Phase, m types.Machine, steps ...step) (*remote.Chain, error) {
	c := o.newChain(phase, m)
	for _, s := range steps {
		if err := c.Add(s.label, s.cmd, o.opts.StepTimeout); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// mapChains drops the shuffles a machine received in an earlier run, ships
// it its splits and the manifest, then maps every split. No push reaches a
// machine before the MAP barrier, so the clearing cannot race with SHUFFLE.
func (o *Orchestrator) mapChains() ([]*remote.Chain, error) {
	t := o.opts.Transport
	tree := o.opts.Remote
	var chains []*remote.Chain

	for _, a := range o.Assignments() {
		host := string(a.Machine)

		steps := []step{
			{"clear received shuffles", t.Remove(host, tree.Received())},
			{"mkdir splits", t.Mkdir(host, tree.Splits())},
		}
		for _, s := range a.Splits {
			steps = append(steps, step{
				fmt.Sprintf("copy split %d", s.Index),
				t.Copy(false, t.Location(host, tree.SplitFile(s.Index)), s.Path),
			})
		}
		steps = append(steps, step{"copy machines", t.Copy(false, t.Location(host, tree.Machines()), o.opts.Local.UsedMachines())})
		for _, s := range a.Splits {
			steps = append(steps, step{
				fmt.Sprintf("map split %d", s.Index),
				t.Exec(host, tree.Base, o.worker("0", relSplit(s))),
			})
		}

		c, err := o.chain(types.PhaseMap, a.Machine, steps...)
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return chains, nil
}

// shuffleChains runs one shuffle per machine over all of its map outputs.
func (o *Orchestrator) shuffleChains() ([]*remote.Chain, error) {
	var chains []*remote.Chain

	for _, a := range o.Assignments() {
		mapFiles := make([]string, 0, len(a.Splits))
		for _, s := range a.Splits {
			m, err := layout.MapFileFor(relSplit(s))
			if err != nil {
				return nil, err
			}
			mapFiles = append(mapFiles, m)
		}

		cmd := o.opts.Transport.Exec(string(a.Machine), o.opts.Remote.Base, o.worker("1", mapFiles...))
		c, err := o.chain(types.PhaseShuffle, a.Machine, step{"shuffle", cmd})
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return chains, nil
}

// reduceChains runs the reduce on every machine.
func (o *Orchestrator) reduceChains() ([]*remote.Chain, error) {
	var chains []*remote.Chain

	for _, a := range o.Assignments() {
		cmd := o.opts.Transport.Exec(string(a.Machine), o.opts.Remote.Base, o.worker("2"))
		c, err := o.chain(types.PhaseReduce, a.Machine, step{"reduce", cmd})
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return chains, nil
}
