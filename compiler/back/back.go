// Package back drives a function through the whole backend: validation,
// instruction selection, liveness, register allocation and lowering.
package back

import (
	"context"

	"golang.org/x/sync/errgroup"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/jfabienke/NeXTRust/compiler/ir"
	"github.com/jfabienke/NeXTRust/compiler/live"
	"github.com/jfabienke/NeXTRust/compiler/lower"
	"github.com/jfabienke/NeXTRust/compiler/mach"
	"github.com/jfabienke/NeXTRust/compiler/regalloc"
	"github.com/jfabienke/NeXTRust/compiler/sel"
)

type (
	Compiler struct {
		cfg mach.Config
	}
)

func New(cfg mach.Config) *Compiler {
	return &Compiler{cfg: cfg}
}

// CompileFunc lowers one function to machine code.
func (c *Compiler) CompileFunc(ctx context.Context, f *ir.Func) (_ *mach.Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile func", "name", f.Name)
	defer tr.Finish("err", &err)

	err = ir.Validate(f)
	if err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	if len(f.In) > len(c.cfg.ArgRegs) {
		return nil, errors.Wrap(sel.ErrUnsupportedOperation, "%d parameters, %d argument registers", len(f.In), len(c.cfg.ArgRegs))
	}

	blocks, err := sel.New(c.cfg).Func(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "select")
	}

	ivs := live.Func(ctx, blocks)

	// incoming arguments arrive pinned to the convention registers
	for i, r := range f.In {
		vr := mach.V(int(r))

		for j := range ivs {
			if ivs[j].Reg == vr {
				ivs[j].Fixed = c.cfg.ArgRegs[i]
				break
			}
		}
	}

	res, err := regalloc.New(c.cfg).Func(ctx, blocks, ivs)
	if err != nil {
		return nil, errors.Wrap(err, "allocate")
	}

	mf, err := lower.Func(ctx, c.cfg, f.Name, blocks, res.Frame)
	if err != nil {
		return nil, errors.Wrap(err, "lower")
	}

	return mf, nil
}

// CompilePackage compiles functions independently and in parallel,
// keeping the input order in the result.
func (c *Compiler) CompilePackage(ctx context.Context, path string, fns []*ir.Func) (_ *mach.Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile package", "path", path, "funcs", len(fns))
	defer tr.Finish("err", &err)

	p := &mach.Program{
		Path:  path,
		Funcs: make([]*mach.Func, len(fns)),
	}

	g, ctx := errgroup.WithContext(ctx)

	for i, f := range fns {
		i, f := i, f

		g.Go(func() (err error) {
			p.Funcs[i], err = c.CompileFunc(ctx, f)
			if err != nil {
				return errors.Wrap(err, "func %v", f.Name)
			}

			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		return nil, err
	}

	return p, nil
}
