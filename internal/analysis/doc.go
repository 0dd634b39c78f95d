// Package analysis characterises recorded trajectories.
//
//   - [Summarize]: range, mean and spread of a column
//   - [SettlingTime]: when a column stops leaving a band around its final value
//   - [Spectrum]: one-sided amplitude spectrum of a uniformly sampled column
//   - [PhasePortrait]: one column plotted against another
//
// A transient run that reached equilibrium settles; one that oscillates shows
// a dominant frequency:
//
//	ts, ok := analysis.SettlingTime(traj, "T_cpu", 0.02)
//	if !ok {
//	    spec, _ := analysis.Spectrum(traj, "T_cpu")
//	    fmt.Println(spec.Dominant())
//	}
package analysis
