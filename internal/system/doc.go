// Package system assembles component trees and evaluates them.
//
// A model is declared through a [Builder]: components ([Node]) own ports,
// loose inward/outward variables and internal variables, expose children's
// variables through pulling (a true alias, the parent and the child share one
// storage slot) and wire variables together with connections (a copy made
// just before the destination's reader runs). Nodes also declare solver
// unknowns, residual equations and transient states.
//
// [Builder.Build] validates the whole tree and returns a frozen [Assembly].
// After that the structure never changes; only values do.
//
// # Evaluation Order
//
// Compute nodes are numbered children first, in declaration order. A
// dependency edge W→C exists when C reads a value W writes, directly through
// an alias or through a connection. A depth first walk marks edges that
// close a cycle as feedback edges; the remaining edges are sorted
// topologically with the lowest number first. A feedback edge reads the value
// its source left from the previous pass.
//
// # Example
//
//	b := system.NewBuilder("sys")
//	cpu := b.Root().Child("cpu").
//		Inward("use", "", system.Value(1)).
//		Outward("Q_out", "W").
//		Compute(func(v *system.Vars) error {
//			v.Set("Q_out", 20*v.Get("use"))
//			return nil
//		})
//	asm, err := b.Build()
package system
